package serial

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemory_RestartsEachDay(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	day1 := time.Date(2024, 3, 2, 9, 0, 0, 0, time.Local)
	day2 := day1.AddDate(0, 0, 1)

	for want := 1; want <= 3; want++ {
		n, _ := m.Next(ctx, Prescription, day1)
		if n != want {
			t.Fatalf("expected %d, got %d", want, n)
		}
	}
	if n, _ := m.Next(ctx, Prescription, day2); n != 1 {
		t.Errorf("expected counter to restart on a new day, got %d", n)
	}
	if n, _ := m.Next(ctx, Charge, day1); n != 1 {
		t.Errorf("expected independent counters per prefix, got %d", n)
	}
}

func TestNextNumber(t *testing.T) {
	m := NewMemory()
	day := time.Date(2024, 3, 2, 9, 0, 0, 0, time.Local)
	no, err := NextNumber(context.Background(), m, Registration, day)
	if err != nil {
		t.Fatal(err)
	}
	if no != "REG202403020001" {
		t.Errorf("unexpected number %s", no)
	}
	if Number(Charge, day, 12) != "CH202403020012" {
		t.Errorf("unexpected padded number %s", Number(Charge, day, 12))
	}
}

func TestQueueKey(t *testing.T) {
	id := uuid.MustParse("7d6c1f1e-0000-4000-8000-000000000001")
	if QueueKey(id) != "Q:7d6c1f1e-0000-4000-8000-000000000001" {
		t.Errorf("unexpected key %s", QueueKey(id))
	}
}
