// Package serial allocates per-day sequence numbers for document numbers
// (REG, RX, CH, P, MR) and doctor queues.
package serial

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/his/his/internal/platform/clock"
	"github.com/his/his/internal/platform/db"
)

const (
	Registration  = "REG"
	Prescription  = "RX"
	Charge        = "CH"
	Patient       = "P"
	MedicalRecord = "MR"
)

// Generator returns the next value of a counter that restarts at 1 every
// business day.
type Generator interface {
	Next(ctx context.Context, key string, day time.Time) (int, error)
}

// Number formats a document number such as RX202403020001.
func Number(prefix string, day time.Time, n int) string {
	return fmt.Sprintf("%s%s%04d", prefix, clock.Compact(day), n)
}

// NextNumber allocates the next value for prefix and formats it.
func NextNumber(ctx context.Context, g Generator, prefix string, day time.Time) (string, error) {
	n, err := g.Next(ctx, prefix, day)
	if err != nil {
		return "", err
	}
	return Number(prefix, day, n), nil
}

// QueueKey is the counter key for a doctor's queue.
func QueueKey(doctorID fmt.Stringer) string {
	return "Q:" + doctorID.String()
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type pgGenerator struct{ pool *pgxpool.Pool }

// NewPG keeps counters in daily_serial. The row lock taken by the upsert is
// held by the caller's transaction, so numbers are gap-free per commit.
func NewPG(pool *pgxpool.Pool) Generator {
	return &pgGenerator{pool: pool}
}

func (g *pgGenerator) conn(ctx context.Context) queryRower {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return g.pool
}

func (g *pgGenerator) Next(ctx context.Context, key string, day time.Time) (int, error) {
	var n int
	err := g.conn(ctx).QueryRow(ctx, `
		INSERT INTO daily_serial (prefix, day, value) VALUES ($1, $2, 1)
		ON CONFLICT (prefix, day) DO UPDATE SET value = daily_serial.value + 1
		RETURNING value`,
		key, clock.StartOfDay(day).Format(clock.DayLayout)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next serial %s: %w", key, err)
	}
	return n, nil
}

// Memory is an in-process Generator for tests and tooling.
type Memory struct {
	mu   sync.Mutex
	next map[string]int
}

func NewMemory() *Memory {
	return &Memory{next: make(map[string]int)}
}

func (m *Memory) Next(_ context.Context, key string, day time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key + "|" + clock.Compact(day)
	m.next[k]++
	return m.next[k], nil
}
