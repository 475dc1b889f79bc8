package staff

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Department maps to the department table.
type Department struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Location  *string   `db:"location" json:"location,omitempty"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Doctor maps to the doctor table. UserID links the row to the staff
// account carried in access tokens.
type Doctor struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	UserID          *uuid.UUID      `db:"user_id" json:"user_id,omitempty"`
	Name            string          `db:"name" json:"name"`
	DepartmentID    uuid.UUID       `db:"department_id" json:"department_id"`
	Title           *string         `db:"title" json:"title,omitempty"`
	RegistrationFee decimal.Decimal `db:"registration_fee" json:"registration_fee"`
	IsActive        bool            `db:"is_active" json:"is_active"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}
