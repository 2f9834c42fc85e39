package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"calzado/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicate         = errors.New("duplicate")
	ErrInvalidInput      = errors.New("invalid input")
)

// InsufficientStockError identifies which cart line could not be served.
// Line is zero for non-cart operations such as transfers. It unwraps to
// ErrInsufficientStock so callers can keep matching with errors.Is.
type InsufficientStockError struct {
	Line        int
	InventoryID int64
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("insufficient stock: inventory %d has %d pairs, requested %d",
			e.InventoryID, e.Available, e.Requested)
	}
	return fmt.Sprintf("insufficient stock on line %d: inventory %d has %d pairs, requested %d",
		e.Line, e.InventoryID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// SaleLineInsert is one validated cart line with its money already
// computed by the caller. Snapshot fields and dozens are filled by the
// repository from the batch row inside the sale transaction.
type SaleLineInsert struct {
	InventoryID  int64
	BatchID      int64
	Pairs        int
	UnitPrice    decimal.Decimal
	LineDiscount decimal.Decimal
	Subtotal     decimal.Decimal
}

// SaleInsert carries a fully validated sale. The repository persists it
// atomically: sale-code assignment, stock decrement, header and line
// inserts, and the optional receivable bootstrap happen in a single
// transaction or not at all.
type SaleInsert struct {
	Kind           string
	CustomerID     *int64
	CustomerName   string
	Lines          []SaleLineInsert
	GlobalDiscount decimal.Decimal
	Total          decimal.Decimal
	PaymentStatus  string
	PaymentMethod  string
	InitialPayment decimal.Decimal
	Notes          string
	SoldBy         string
	At             time.Time

	// Receivable bootstrap, set by the service when the payment status
	// calls for an account.
	OpenAccount   bool
	CreditDays    int
	NeedsFollowUp bool
}

type PaymentInsert struct {
	Amount     decimal.Decimal
	Method     string
	Reference  string
	ReceivedBy string
	At         time.Time
}

type Repository interface {
	CreateVariant(ctx context.Context, v domain.Variant) (*domain.Variant, error)
	GetVariantByID(ctx context.Context, id int64) (*domain.Variant, error)
	GetVariantByCode(ctx context.Context, code string) (*domain.Variant, error)
	UpdateVariant(ctx context.Context, v domain.Variant) (*domain.Variant, error)
	ListVariants(ctx context.Context, includeInactive bool) ([]domain.Variant, error)

	CreateBatch(ctx context.Context, b domain.ProducedBatch) (*domain.ProducedBatch, error)
	GetBatchByID(ctx context.Context, id int64) (*domain.ProducedBatch, error)
	ListBatches(ctx context.Context, variantID int64, limit int) ([]domain.ProducedBatch, error)

	CreateLocation(ctx context.Context, l domain.Location) (*domain.Location, error)
	GetLocationByID(ctx context.Context, id int64) (*domain.Location, error)
	ListLocations(ctx context.Context) ([]domain.Location, error)

	GetInventoryByID(ctx context.Context, id int64) (*domain.InventoryRecord, error)
	ListInventory(ctx context.Context, locationID, batchID int64) ([]domain.InventoryView, error)
	CheckIn(ctx context.Context, req domain.CheckInRequest, actor string, at time.Time) (*domain.InventoryRecord, error)
	Transfer(ctx context.Context, req domain.TransferRequest, actor string, at time.Time) error
	CreditReturn(ctx context.Context, req domain.CreditReturnRequest, actor string, at time.Time) (*domain.InventoryRecord, error)
	ListMovements(ctx context.Context, batchID int64, limit int) ([]domain.StockMovement, error)

	CreateCustomer(ctx context.Context, c domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, id int64) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, c domain.Customer) (*domain.Customer, error)
	ListCustomers(ctx context.Context, includeInactive bool) ([]domain.Customer, error)

	RegisterSale(ctx context.Context, ins SaleInsert) (*domain.Sale, *domain.ReceivableAccount, error)
	GetSaleByCode(ctx context.Context, code string) (*domain.Sale, error)
	ListSales(ctx context.Context, from, to time.Time, limit int) ([]domain.Sale, error)
	GetDailySummary(ctx context.Context, day time.Time) (domain.DailySummary, error)

	GetAccountByID(ctx context.Context, id int64) (*domain.ReceivableAccount, error)
	ListAccounts(ctx context.Context, status string, customerID int64, limit int) ([]domain.ReceivableAccount, error)
	RegisterPayment(ctx context.Context, accountID int64, pay PaymentInsert) (*domain.Payment, *domain.ReceivableAccount, error)
	MarkOverdueAccounts(ctx context.Context, asOf time.Time) (int, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
