package medicine

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/his/his/internal/platform/auth"
)

// BasicView is what nurses and cashiers see.
type BasicView struct {
	ID            uuid.UUID       `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Specification *string         `json:"specification,omitempty"`
	Unit          string          `json:"unit"`
	RetailPrice   decimal.Decimal `json:"retail_price"`
}

// DoctorView adds prescribing details and availability. It carries no
// purchase price and no stock bounds.
type DoctorView struct {
	BasicView
	GenericName    *string     `json:"generic_name,omitempty"`
	DosageForm     *string     `json:"dosage_form,omitempty"`
	Manufacturer   *string     `json:"manufacturer,omitempty"`
	Category       *string     `json:"category,omitempty"`
	StockQuantity  int         `json:"stock_quantity"`
	StockStatus    StockStatus `json:"stock_status"`
	IsPrescription bool        `json:"is_prescription"`
}

type PharmacistView struct {
	DoctorView
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	MinStock      int             `json:"min_stock"`
	MaxStock      int             `json:"max_stock"`
	IsActive      bool            `json:"is_active"`
}

func NewBasicView(m *Medicine) BasicView {
	return BasicView{
		ID:            m.ID,
		Code:          m.Code,
		Name:          m.Name,
		Specification: m.Specification,
		Unit:          m.Unit,
		RetailPrice:   m.RetailPrice,
	}
}

func NewDoctorView(m *Medicine) DoctorView {
	return DoctorView{
		BasicView:      NewBasicView(m),
		GenericName:    m.GenericName,
		DosageForm:     m.DosageForm,
		Manufacturer:   m.Manufacturer,
		Category:       m.Category,
		StockQuantity:  m.StockQuantity,
		StockStatus:    StockStatusOf(m),
		IsPrescription: m.IsPrescription,
	}
}

func NewPharmacistView(m *Medicine) PharmacistView {
	return PharmacistView{
		DoctorView:    NewDoctorView(m),
		PurchasePrice: m.PurchasePrice,
		MinStock:      m.MinStock,
		MaxStock:      m.MaxStock,
		IsActive:      m.IsActive,
	}
}

// ViewFor picks the projection for the caller's most privileged role.
// Admins get the pharmacist view.
func ViewFor(m *Medicine, caller auth.Caller) interface{} {
	switch {
	case caller.HasRole(auth.RolePharmacist):
		return NewPharmacistView(m)
	case caller.HasRole(auth.RoleDoctor):
		return NewDoctorView(m)
	default:
		return NewBasicView(m)
	}
}
