package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"calzado/backend/internal/domain"
	"calzado/backend/internal/store"
)

func TestRegisterSaleDecrementsInventory(t *testing.T) {
	databaseURL := os.Getenv("CALZADO_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set CALZADO_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	internalCode := fmt.Sprintf("BOT-IT-%d", stamp)

	var (
		variantID   int64
		batchID     int64
		locationID  int64
		inventoryID int64
		saleID      int64
	)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_lines WHERE sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_movements WHERE batch_id = $1`, batchID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory WHERE batch_id = $1`, batchID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM produced_batches WHERE id = $1`, batchID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM locations WHERE id = $1`, locationID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM variants WHERE id = $1`, variantID)
	})

	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO variants (internal_code, shoe_type, last_type, segment, description, active, created_at)
		VALUES ($1, 'bota', 'clasica', 'caballero', 'integration seed', true, now())
		RETURNING id
	`, internalCode).Scan(&variantID); err != nil {
		t.Fatalf("insert variant: %v", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO produced_batches (
			variant_id, leather, leather_color, sole, lining, size_range,
			pairs_per_dozen, unit_cost, suggested_price, production_date,
			total_pairs, received_pairs, notes, created_at
		)
		VALUES ($1, 'nobuck', 'negro', 'caucho', 'textil', '38-43', 12, 40.00, 65.00, now(), 24, 24, null, now())
		RETURNING id
	`, variantID).Scan(&batchID); err != nil {
		t.Fatalf("insert batch: %v", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO locations (name, active) VALUES ('Almacén IT', true)
		RETURNING id
	`).Scan(&locationID); err != nil {
		t.Fatalf("insert location: %v", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO inventory (batch_id, location_id, stock_class, pairs, updated_at)
		VALUES ($1, $2, $3, 24, now())
		RETURNING id
	`, batchID, locationID, domain.StockGeneral).Scan(&inventoryID); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	at := time.Now().UTC()
	sale, account, err := s.RegisterSale(ctx, store.SaleInsert{
		Kind:         domain.SaleKindRegular,
		CustomerName: "Cliente IT",
		Lines: []store.SaleLineInsert{
			{
				InventoryID: inventoryID,
				BatchID:     batchID,
				Pairs:       6,
				UnitPrice:   decimal.RequireFromString("65.00"),
				Subtotal:    decimal.RequireFromString("390.00"),
			},
		},
		Total:         decimal.RequireFromString("390.00"),
		PaymentStatus: domain.SalePaid,
		PaymentMethod: "efectivo",
		SoldBy:        "integration",
		At:            at,
	})
	if err != nil {
		t.Fatalf("register sale: %v", err)
	}
	if account != nil {
		t.Fatalf("expected no receivable account for a paid sale, got %s", account.AccountCode)
	}
	saleID = sale.ID

	var pairs int
	if err := s.db.QueryRowContext(ctx, `
		SELECT pairs FROM inventory WHERE id = $1
	`, inventoryID).Scan(&pairs); err != nil {
		t.Fatalf("query inventory: %v", err)
	}
	if pairs != 18 {
		t.Fatalf("expected 18 pairs after sale, got %d", pairs)
	}

	var lineCode string
	if err := s.db.QueryRowContext(ctx, `
		SELECT internal_code FROM sale_lines WHERE sale_id = $1
	`, saleID).Scan(&lineCode); err != nil {
		t.Fatalf("query sale line: %v", err)
	}
	if lineCode != internalCode {
		t.Fatalf("expected line snapshot code %s, got %s", internalCode, lineCode)
	}

	var movementKind string
	if err := s.db.QueryRowContext(ctx, `
		SELECT kind FROM stock_movements WHERE batch_id = $1
	`, batchID).Scan(&movementKind); err != nil {
		t.Fatalf("query movement: %v", err)
	}
	if movementKind != domain.MovementSale {
		t.Fatalf("expected movement kind %s, got %s", domain.MovementSale, movementKind)
	}
}
