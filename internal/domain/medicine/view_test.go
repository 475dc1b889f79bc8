package medicine

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/his/his/internal/platform/auth"
)

func TestStockStatusOf(t *testing.T) {
	tests := []struct {
		stock, min int
		want       StockStatus
	}{
		{0, 0, StockOut},
		{0, 5, StockOut},
		{1, 5, StockLow},
		{5, 5, StockLow},
		{6, 5, StockIn},
		{1, 0, StockIn},
	}
	for _, tt := range tests {
		got := StockStatusOf(&Medicine{StockQuantity: tt.stock, MinStock: tt.min})
		if got != tt.want {
			t.Errorf("StockStatusOf(stock=%d, min=%d) = %s, want %s", tt.stock, tt.min, got, tt.want)
		}
	}
}

func TestViewFor_HidesPurchasePrice(t *testing.T) {
	m := &Medicine{
		ID:            uuid.New(),
		Code:          "AMX",
		Name:          "Amoxicillin",
		Unit:          "box",
		RetailPrice:   decimal.RequireFromString("12.50"),
		PurchasePrice: decimal.RequireFromString("7.80"),
		StockQuantity: 40,
		MinStock:      10,
		MaxStock:      200,
	}

	tests := []struct {
		role         string
		wantPurchase bool
		wantStock    bool
	}{
		{auth.RolePharmacist, true, true},
		{auth.RoleAdmin, true, true},
		{auth.RoleDoctor, false, true},
		{auth.RoleNurse, false, false},
		{auth.RoleCashier, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			b, err := json.Marshal(ViewFor(m, auth.Caller{Roles: []string{tt.role}}))
			if err != nil {
				t.Fatal(err)
			}
			body := string(b)
			if got := strings.Contains(body, "purchase_price"); got != tt.wantPurchase {
				t.Errorf("purchase_price present=%v, want %v: %s", got, tt.wantPurchase, body)
			}
			if got := strings.Contains(body, "stock_quantity"); got != tt.wantStock {
				t.Errorf("stock_quantity present=%v, want %v: %s", got, tt.wantStock, body)
			}
			if strings.Contains(body, "min_stock") != tt.wantPurchase {
				t.Errorf("stock bounds visibility mismatch: %s", body)
			}
		})
	}
}
