package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/his/his/internal/platform/db"
	"github.com/his/his/internal/platform/middleware"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type pgRecorder struct{ pool *pgxpool.Pool }

// NewPGRecorder writes events to the audit_log table.
func NewPGRecorder(pool *pgxpool.Pool) Recorder {
	return &pgRecorder{pool: pool}
}

func (r *pgRecorder) conn(ctx context.Context) execer {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *pgRecorder) Record(ctx context.Context, e Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RequestID == "" {
		e.RequestID = middleware.RequestIDFromContext(ctx)
	}
	var detail []byte
	if len(e.Detail) > 0 {
		var err error
		if detail, err = json.Marshal(e.Detail); err != nil {
			return fmt.Errorf("marshal audit detail: %w", err)
		}
	}
	var actor *uuid.UUID
	if e.ActorID != uuid.Nil {
		actor = &e.ActorID
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_log (id, action, entity_type, entity_id, actor_id, actor_role, detail, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.Action, e.EntityType, e.EntityID, actor, e.ActorRole, detail, e.RequestID, e.At)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
