package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"calzado/backend/internal/domain"
	"calzado/backend/internal/store"
	"calzado/backend/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded()
	return New(repo, 30, true), repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func sellerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "vendedor", Role: "vendedor"})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// stockAt returns the general-class pair count of a batch at a location.
func stockAt(t *testing.T, svc *Service, batchID, locationID int64) int {
	t.Helper()
	views, err := svc.ListInventory(context.Background(), locationID, batchID)
	if err != nil {
		t.Fatalf("list inventory: %v", err)
	}
	for _, v := range views {
		if v.StockClass == domain.StockGeneral {
			return v.Pairs
		}
	}
	return 0
}

func TestRegisterSaleComputesTotalsAndDecrementsStock(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := sellerCtx()

	// Seeded inventory 1: batch 1 with 60 pairs at location 1.
	resp, err := svc.RegisterSale(ctx, domain.SaleRegisterRequest{
		CustomerName: "Cliente Mostrador",
		Lines: []domain.SaleLineRequest{
			{InventoryID: 1, BatchID: 1, Pairs: 12, UnitPrice: dec("65.00"), LineDiscount: dec("10.00")},
		},
		GlobalDiscount: dec("20.00"),
		PaymentStatus:  domain.SalePaid,
		PaymentMethod:  "efectivo",
	})
	if err != nil {
		t.Fatalf("register sale: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected success response")
	}
	// 12 * 65 - 10 - 20 = 750
	if resp.Total.StringFixed(2) != "750.00" {
		t.Fatalf("expected total 750.00, got %s", resp.Total)
	}
	wantPrefix := "V" + time.Now().UTC().Format("20060102") + "-"
	if !strings.HasPrefix(resp.SaleCode, wantPrefix) {
		t.Fatalf("expected sale code prefix %s, got %s", wantPrefix, resp.SaleCode)
	}
	if resp.AccountCode != "" {
		t.Fatalf("paid sale must not open an account, got %s", resp.AccountCode)
	}

	if got := stockAt(t, svc, 1, 1); got != 48 {
		t.Fatalf("expected 48 pairs left, got %d", got)
	}

	sale, err := svc.GetSale(ctx, resp.SaleCode)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if len(sale.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(sale.Lines))
	}
	line := sale.Lines[0]
	if line.InternalCode != "BOT-CAB-001" {
		t.Fatalf("expected snapshot code BOT-CAB-001, got %s", line.InternalCode)
	}
	// 12 pairs at 12 per dozen.
	if line.Dozens.StringFixed(2) != "1.00" {
		t.Fatalf("expected 1.00 dozens, got %s", line.Dozens)
	}
	if line.Subtotal.StringFixed(2) != "770.00" {
		t.Fatalf("expected line subtotal 770.00, got %s", line.Subtotal)
	}
}

func TestRegisterSaleInsufficientStockLeavesStateUntouched(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := sellerCtx()

	// Line 1 is valid, line 2 asks for more than the 30 pairs seeded.
	_, err := svc.RegisterSale(ctx, domain.SaleRegisterRequest{
		CustomerName: "Cliente Mostrador",
		Lines: []domain.SaleLineRequest{
			{InventoryID: 1, BatchID: 1, Pairs: 10, UnitPrice: dec("65.00")},
			{InventoryID: 2, BatchID: 2, Pairs: 999, UnitPrice: dec("72.00")},
		},
		PaymentStatus: domain.SalePaid,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected typed stock error, got %T", err)
	}
	if stockErr.Line != 2 {
		t.Fatalf("expected failure on line 2, got line %d", stockErr.Line)
	}

	// The valid first line must not have been applied.
	if got := stockAt(t, svc, 1, 1); got != 60 {
		t.Fatalf("expected untouched stock of 60, got %d", got)
	}
	if got := stockAt(t, svc, 2, 1); got != 30 {
		t.Fatalf("expected untouched stock of 30, got %d", got)
	}
}

func TestRegisterSaleCreditOpensAccountWithInitialPayment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := sellerCtx()

	customerID := int64(1)
	resp, err := svc.RegisterSale(ctx, domain.SaleRegisterRequest{
		CustomerID: &customerID,
		Lines: []domain.SaleLineRequest{
			{InventoryID: 2, BatchID: 2, Pairs: 12, UnitPrice: dec("72.00")},
		},
		PaymentStatus:  domain.SaleCredit,
		InitialPayment: dec("100.00"),
	})
	if err != nil {
		t.Fatalf("register credit sale: %v", err)
	}
	if !strings.HasPrefix(resp.AccountCode, "CXC") {
		t.Fatalf("expected CXC account code, got %q", resp.AccountCode)
	}

	sale, err := svc.GetSale(ctx, resp.SaleCode)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	// An initial payment against an open balance records the sale as partial.
	if sale.PaymentStatus != domain.SalePartial {
		t.Fatalf("expected status parcial, got %s", sale.PaymentStatus)
	}
	if sale.CustomerName != "Comercial Pacheco" {
		t.Fatalf("expected customer name from registry, got %q", sale.CustomerName)
	}

	accounts, err := svc.ListAccounts(ctx, "", customerID, 10)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}
	acc := accounts[0]
	if acc.Total.StringFixed(2) != "864.00" {
		t.Fatalf("expected account total 864.00, got %s", acc.Total)
	}
	if acc.BalanceDue.StringFixed(2) != "764.00" {
		t.Fatalf("expected balance 764.00, got %s", acc.BalanceDue)
	}
	if len(acc.Payments) != 1 {
		t.Fatalf("expected the initial payment on the account, got %d payments", len(acc.Payments))
	}
	if !strings.HasPrefix(acc.Payments[0].PaymentCode, "PG") {
		t.Fatalf("expected PG payment code, got %s", acc.Payments[0].PaymentCode)
	}
	if acc.NeedsFollowUp {
		t.Fatal("registered customer must not require follow-up")
	}
	// Customer credit days (30) drive the due date.
	wantDue := acc.IssueDate.AddDate(0, 0, 30)
	if !acc.DueDate.Equal(wantDue) {
		t.Fatalf("expected due date %s, got %s", wantDue, acc.DueDate)
	}
}

func TestRegisterSaleCreditFullyCoveredSettlesImmediately(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := sellerCtx()

	customerID := int64(1)
	resp, err := svc.RegisterSale(ctx, domain.SaleRegisterRequest{
		CustomerID: &customerID,
		Lines: []domain.SaleLineRequest{
			{InventoryID: 2, BatchID: 2, Pairs: 2, UnitPrice: dec("72.00")},
		},
		PaymentStatus:  domain.SaleCredit,
		InitialPayment: dec("144.00"),
	})
	if err != nil {
		t.Fatalf("register sale: %v", err)
	}
	if resp.AccountCode != "" {
		t.Fatalf("fully covered sale must not open an account, got %s", resp.AccountCode)
	}
	sale, err := svc.GetSale(ctx, resp.SaleCode)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if sale.PaymentStatus != domain.SalePaid {
		t.Fatalf("expected status pagado, got %s", sale.PaymentStatus)
	}
}

func TestRegisterSaleRejectsExcessDiscount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := sellerCtx()

	_, err := svc.RegisterSale(ctx, domain.SaleRegisterRequest{
		CustomerName: "Cliente Mostrador",
		Lines: []domain.SaleLineRequest{
			{InventoryID: 1, BatchID: 1, Pairs: 1, UnitPrice: dec("65.00")},
		},
		GlobalDiscount: dec("100.00"),
		PaymentStatus:  domain.SalePaid,
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for excess discount, got %v", err)
	}
	if got := stockAt(t, svc, 1, 1); got != 60 {
		t.Fatalf("expected untouched stock, got %d", got)
	}
}

func TestRegisterSaleRejectsInitialPaymentOnSettledSale(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := sellerCtx()

	_, err := svc.RegisterSale(ctx, domain.SaleRegisterRequest{
		CustomerName: "Cliente Mostrador",
		Lines: []domain.SaleLineRequest{
			{InventoryID: 1, BatchID: 1, Pairs: 1, UnitPrice: dec("65.00")},
		},
		PaymentStatus:  domain.SalePaid,
		InitialPayment: dec("10.00"),
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRegisterSaleUnknownCustomerCredit(t *testing.T) {
	repo := memory.NewSeeded()
	strict := New(repo, 30, false)
	ctx := sellerCtx()

	req := domain.SaleRegisterRequest{
		CustomerName: "Cliente Nuevo",
		Lines: []domain.SaleLineRequest{
			{InventoryID: 1, BatchID: 1, Pairs: 2, UnitPrice: dec("65.00")},
		},
		PaymentStatus: domain.SaleCredit,
	}
	if _, err := strict.RegisterSale(ctx, req); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected credit rejection without a registered customer, got %v", err)
	}

	relaxed := New(repo, 30, true)
	resp, err := relaxed.RegisterSale(ctx, req)
	if err != nil {
		t.Fatalf("register sale: %v", err)
	}
	if resp.AccountCode == "" {
		t.Fatal("expected an account to be opened")
	}
	accounts, err := relaxed.ListAccounts(ctx, domain.AccountPending, 0, 10)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(accounts) != 1 || !accounts[0].NeedsFollowUp {
		t.Fatalf("expected a pending account flagged for follow-up, got %+v", accounts)
	}
}

func TestSaleCodesSequencePerFamily(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := sellerCtx()

	line := []domain.SaleLineRequest{
		{InventoryID: 3, BatchID: 3, Pairs: 1, UnitPrice: dec("45.00")},
	}
	first, err := svc.RegisterSale(ctx, domain.SaleRegisterRequest{CustomerName: "A", Lines: line, PaymentStatus: domain.SalePaid})
	if err != nil {
		t.Fatalf("first sale: %v", err)
	}
	second, err := svc.RegisterSale(ctx, domain.SaleRegisterRequest{CustomerName: "B", Lines: line, PaymentStatus: domain.SalePaid})
	if err != nil {
		t.Fatalf("second sale: %v", err)
	}
	direct, err := svc.RegisterDirectSale(ctx, domain.SaleRegisterRequest{CustomerName: "C", Lines: line, PaymentStatus: domain.SalePaid})
	if err != nil {
		t.Fatalf("direct sale: %v", err)
	}

	day := time.Now().UTC().Format("20060102")
	if want := "V" + day + "-001"; first.SaleCode != want {
		t.Fatalf("expected %s, got %s", want, first.SaleCode)
	}
	if want := "V" + day + "-002"; second.SaleCode != want {
		t.Fatalf("expected %s, got %s", want, second.SaleCode)
	}
	// The direct family sequences independently of the regular one.
	if want := "VD" + day + "-001"; direct.SaleCode != want {
		t.Fatalf("expected %s, got %s", want, direct.SaleCode)
	}
}

func TestCheckInCappedByProducedTotal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminCtx()

	// Batch 1 produced 120 pairs and the seed already checked in 60.
	if _, err := svc.CheckIn(ctx, domain.CheckInRequest{BatchID: 1, LocationID: 1, Pairs: 61}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected cap rejection, got %v", err)
	}

	rec, err := svc.CheckIn(ctx, domain.CheckInRequest{BatchID: 1, LocationID: 1, Pairs: 60})
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if rec.Pairs != 120 {
		t.Fatalf("expected 120 pairs on hand, got %d", rec.Pairs)
	}

	batch, err := svc.GetBatch(ctx, 1)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if batch.ReceivedPairs != 120 {
		t.Fatalf("expected 120 received pairs, got %d", batch.ReceivedPairs)
	}
}

func TestTransferMovesStockBetweenLocations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminCtx()

	if err := svc.Transfer(ctx, domain.TransferRequest{BatchID: 1, FromLocationID: 1, ToLocationID: 2, Pairs: 10}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := stockAt(t, svc, 1, 1); got != 50 {
		t.Fatalf("expected 50 at source, got %d", got)
	}
	if got := stockAt(t, svc, 1, 2); got != 10 {
		t.Fatalf("expected 10 at destination, got %d", got)
	}

	// Both legs of the transfer share one reference id.
	movements, err := svc.ListMovements(ctx, 1, 10)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	var out, in *domain.StockMovement
	for i := range movements {
		switch movements[i].Kind {
		case domain.MovementTransferOut:
			out = &movements[i]
		case domain.MovementTransferIn:
			in = &movements[i]
		}
	}
	if out == nil || in == nil {
		t.Fatalf("expected both transfer movements, got %+v", movements)
	}
	if out.Reference == "" || out.Reference != in.Reference {
		t.Fatalf("expected shared transfer reference, got %q and %q", out.Reference, in.Reference)
	}

	if err := svc.Transfer(ctx, domain.TransferRequest{BatchID: 1, FromLocationID: 1, ToLocationID: 2, Pairs: 999}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestCreditReturnAddsGeneralStock(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminCtx()

	rec, err := svc.CreditReturn(ctx, domain.CreditReturnRequest{BatchID: 1, LocationID: 1, Pairs: 4, Reason: "cambio de talla"})
	if err != nil {
		t.Fatalf("credit return: %v", err)
	}
	if rec.Pairs != 64 {
		t.Fatalf("expected 64 pairs after return, got %d", rec.Pairs)
	}
	if rec.StockClass != domain.StockGeneral {
		t.Fatalf("returns go to general stock, got %s", rec.StockClass)
	}
}

func TestRegisterPaymentSettlesAccount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := sellerCtx()

	customerID := int64(1)
	if _, err := svc.RegisterSale(ctx, domain.SaleRegisterRequest{
		CustomerID: &customerID,
		Lines: []domain.SaleLineRequest{
			{InventoryID: 2, BatchID: 2, Pairs: 2, UnitPrice: dec("72.00")},
		},
		PaymentStatus: domain.SaleCredit,
	}); err != nil {
		t.Fatalf("register credit sale: %v", err)
	}

	accounts, err := svc.ListAccounts(ctx, domain.AccountPending, customerID, 10)
	if err != nil || len(accounts) != 1 {
		t.Fatalf("expected 1 pending account (err=%v)", err)
	}
	accountID := accounts[0].ID

	if _, err := svc.RegisterPayment(ctx, accountID, domain.PaymentRequest{Amount: dec("999.00")}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected overpayment rejection, got %v", err)
	}

	pay1, err := svc.RegisterPayment(ctx, accountID, domain.PaymentRequest{Amount: dec("44.00"), Method: "yape"})
	if err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if pay1.BalanceDue.StringFixed(2) != "100.00" {
		t.Fatalf("expected balance 100.00, got %s", pay1.BalanceDue)
	}
	if pay1.Status != domain.AccountPending {
		t.Fatalf("expected account still pending, got %s", pay1.Status)
	}

	pay2, err := svc.RegisterPayment(ctx, accountID, domain.PaymentRequest{Amount: dec("100.00")})
	if err != nil {
		t.Fatalf("final payment: %v", err)
	}
	if pay2.Status != domain.AccountPaid {
		t.Fatalf("expected settled account, got %s", pay2.Status)
	}
	if !pay2.BalanceDue.IsZero() {
		t.Fatalf("expected zero balance, got %s", pay2.BalanceDue)
	}

	if _, err := svc.RegisterPayment(ctx, accountID, domain.PaymentRequest{Amount: dec("1.00")}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected settled account to reject payments, got %v", err)
	}
	if _, err := svc.RegisterPayment(ctx, accountID, domain.PaymentRequest{Amount: dec("1.00"), Method: "bitcoin"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected unknown method rejection, got %v", err)
	}
}

func TestMarkOverdueAccountsSweep(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := sellerCtx()

	customerID := int64(1)
	if _, err := svc.RegisterSale(ctx, domain.SaleRegisterRequest{
		CustomerID: &customerID,
		Lines: []domain.SaleLineRequest{
			{InventoryID: 2, BatchID: 2, Pairs: 2, UnitPrice: dec("72.00")},
		},
		PaymentStatus: domain.SaleCredit,
	}); err != nil {
		t.Fatalf("register credit sale: %v", err)
	}

	// As of today nothing is overdue.
	marked, err := repo.MarkOverdueAccounts(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if marked != 0 {
		t.Fatalf("expected no accounts marked, got %d", marked)
	}

	// Past the 30 credit days the account flips to vencido.
	marked, err = repo.MarkOverdueAccounts(context.Background(), time.Now().UTC().AddDate(0, 0, 31))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if marked != 1 {
		t.Fatalf("expected 1 account marked, got %d", marked)
	}

	overdue, err := svc.ListAccounts(ctx, domain.AccountOverdue, 0, 10)
	if err != nil {
		t.Fatalf("list overdue: %v", err)
	}
	if len(overdue) != 1 {
		t.Fatalf("expected 1 overdue account, got %d", len(overdue))
	}
}

func TestDailySummaryAggregatesByMethodAndStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := sellerCtx()

	line := func(pairs int) []domain.SaleLineRequest {
		return []domain.SaleLineRequest{{InventoryID: 3, BatchID: 3, Pairs: pairs, UnitPrice: dec("45.00")}}
	}
	if _, err := svc.RegisterSale(ctx, domain.SaleRegisterRequest{CustomerName: "A", Lines: line(2), PaymentStatus: domain.SalePaid, PaymentMethod: "efectivo"}); err != nil {
		t.Fatalf("sale 1: %v", err)
	}
	if _, err := svc.RegisterSale(ctx, domain.SaleRegisterRequest{CustomerName: "B", Lines: line(4), PaymentStatus: domain.SalePaid, PaymentMethod: "yape", GlobalDiscount: dec("10.00")}); err != nil {
		t.Fatalf("sale 2: %v", err)
	}

	summary, err := svc.DailySummary(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("daily summary: %v", err)
	}
	if summary.Sales != 2 {
		t.Fatalf("expected 2 sales, got %d", summary.Sales)
	}
	// 90 + 170 net, 10 discount.
	if summary.Net.StringFixed(2) != "260.00" {
		t.Fatalf("expected net 260.00, got %s", summary.Net)
	}
	if summary.Discounts.StringFixed(2) != "10.00" {
		t.Fatalf("expected discounts 10.00, got %s", summary.Discounts)
	}
	if len(summary.ByMethod) != 2 {
		t.Fatalf("expected 2 method buckets, got %+v", summary.ByMethod)
	}
}

func TestAdminGates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := sellerCtx()

	if _, err := svc.CreateVariant(ctx, domain.VariantCreateRequest{InternalCode: "X-001", ShoeType: "botin"}); err == nil {
		t.Fatal("expected seller to be rejected from variant creation")
	}
	if _, err := svc.CheckIn(ctx, domain.CheckInRequest{BatchID: 1, LocationID: 1, Pairs: 1}); err == nil {
		t.Fatal("expected seller to be rejected from check-in")
	}
	if err := svc.Transfer(ctx, domain.TransferRequest{BatchID: 1, FromLocationID: 1, ToLocationID: 2, Pairs: 1}); err == nil {
		t.Fatal("expected seller to be rejected from transfer")
	}
	if _, err := svc.MarkOverdueAccounts(ctx); err == nil {
		t.Fatal("expected seller to be rejected from overdue sweep")
	}
	if _, err := svc.ListAuditLogs(ctx, time.Time{}, time.Time{}, 10); err == nil {
		t.Fatal("expected seller to be rejected from audit logs")
	}
}

func TestAuditTrailRecordsActions(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.CreateLocation(adminCtx(), domain.LocationCreateRequest{Name: "Feria Norte"}); err != nil {
		t.Fatalf("create location: %v", err)
	}

	logs, err := svc.ListAuditLogs(adminCtx(), time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) == 0 {
		t.Fatal("expected at least one audit entry")
	}
	found := false
	for _, entry := range logs {
		if entry.Action == "location_create" && entry.ActorUsername == "admin" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a location_create entry, got %+v", logs)
	}
}

func TestVariantInternalCodeIsUnique(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminCtx()

	if _, err := svc.CreateVariant(ctx, domain.VariantCreateRequest{InternalCode: "bot-cab-001", ShoeType: "botin"}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate rejection (codes are case-normalized), got %v", err)
	}
}

func TestRegisterSaleRejectsDeclaredPartialStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := sellerCtx()

	// parcial is assigned by the service when an initial payment leaves a
	// balance; declaring it directly must not slip past the credit path.
	_, err := svc.RegisterSale(ctx, domain.SaleRegisterRequest{
		CustomerName: "Cliente Mostrador",
		Lines: []domain.SaleLineRequest{
			{InventoryID: 1, BatchID: 1, Pairs: 2, UnitPrice: dec("65.00")},
		},
		PaymentStatus: domain.SalePartial,
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected declared parcial to be rejected, got %v", err)
	}

	accounts, err := svc.ListAccounts(ctx, "", 0, 10)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(accounts) != 0 {
		t.Fatalf("expected no receivable accounts, got %d", len(accounts))
	}
	if got := stockAt(t, svc, 1, 1); got != 60 {
		t.Fatalf("expected stock untouched at 60, got %d", got)
	}
}

func TestConcurrentSalesLastPairSingleWinner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := sellerCtx()

	// Drain seeded inventory 2 (30 pairs) down to a single pair.
	if _, err := svc.RegisterSale(ctx, domain.SaleRegisterRequest{
		CustomerName: "Cliente Mostrador",
		Lines: []domain.SaleLineRequest{
			{InventoryID: 2, BatchID: 2, Pairs: 29, UnitPrice: dec("72.00")},
		},
		PaymentStatus: domain.SalePaid,
	}); err != nil {
		t.Fatalf("drain sale: %v", err)
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.RegisterSale(ctx, domain.SaleRegisterRequest{
				CustomerName: "Cliente Mostrador",
				Lines: []domain.SaleLineRequest{
					{InventoryID: 2, BatchID: 2, Pairs: 1, UnitPrice: dec("72.00")},
				},
				PaymentStatus: domain.SalePaid,
			})
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, store.ErrInsufficientStock):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("expected exactly one winner for the last pair, got %d wins and %d stock failures", won, lost)
	}
	if got := stockAt(t, svc, 2, 1); got != 0 {
		t.Fatalf("expected 0 pairs left, got %d", got)
	}
}
