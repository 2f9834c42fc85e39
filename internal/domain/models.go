package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Variant is a base catalog entry: one shoe model as designed, independent
// of any production run. Variants are deactivated, never deleted.
type Variant struct {
	ID           int64     `json:"id"`
	InternalCode string    `json:"codigo_interno"`
	ShoeType     string    `json:"tipo_calzado"`
	LastType     string    `json:"tipo_horma"`
	Segment      string    `json:"segmento"`
	Description  string    `json:"descripcion"`
	Active       bool      `json:"activo"`
	CreatedAt    time.Time `json:"fecha_creacion"`
}

type VariantCreateRequest struct {
	InternalCode string `json:"codigo_interno"`
	ShoeType     string `json:"tipo_calzado"`
	LastType     string `json:"tipo_horma"`
	Segment      string `json:"segmento"`
	Description  string `json:"descripcion"`
}

type VariantUpdateRequest struct {
	ShoeType    *string `json:"tipo_calzado,omitempty"`
	LastType    *string `json:"tipo_horma,omitempty"`
	Segment     *string `json:"segmento,omitempty"`
	Description *string `json:"descripcion,omitempty"`
	Active      *bool   `json:"activo,omitempty"`
}

// ProducedBatch is one production run of a variant. TotalPairs is the run
// size; ReceivedPairs tracks how many pairs have been checked into
// inventory so far and never exceeds TotalPairs.
type ProducedBatch struct {
	ID             int64           `json:"id"`
	VariantID      int64           `json:"id_variante"`
	InternalCode   string          `json:"codigo_interno"`
	Leather        string          `json:"cuero"`
	LeatherColor   string          `json:"color_cuero"`
	Sole           string          `json:"suela"`
	Lining         string          `json:"forro"`
	SizeRange      string          `json:"serie_tallas"`
	PairsPerDozen  int             `json:"pares_por_docena"`
	UnitCost       decimal.Decimal `json:"costo_unitario"`
	SuggestedPrice decimal.Decimal `json:"precio_sugerido"`
	ProductionDate time.Time       `json:"fecha_produccion"`
	TotalPairs     int             `json:"cantidad_total_pares"`
	ReceivedPairs  int             `json:"pares_ingresados"`
	Notes          string          `json:"observaciones,omitempty"`
	CreatedAt      time.Time       `json:"fecha_creacion"`
}

type BatchCreateRequest struct {
	VariantID      int64           `json:"id_variante"`
	Leather        string          `json:"cuero"`
	LeatherColor   string          `json:"color_cuero"`
	Sole           string          `json:"suela"`
	Lining         string          `json:"forro"`
	SizeRange      string          `json:"serie_tallas"`
	PairsPerDozen  int             `json:"pares_por_docena"`
	UnitCost       decimal.Decimal `json:"costo_unitario"`
	SuggestedPrice decimal.Decimal `json:"precio_sugerido"`
	ProductionDate string          `json:"fecha_produccion"`
	TotalPairs     int             `json:"cantidad_total_pares"`
	Notes          string          `json:"observaciones"`
}

type Location struct {
	ID     int64  `json:"id"`
	Name   string `json:"nombre"`
	Active bool   `json:"activo"`
}

type LocationCreateRequest struct {
	Name string `json:"nombre"`
}

// Stock classes of an inventory record. General stock is sellable;
// order stock is reserved for a committed customer order.
const (
	StockGeneral = "general"
	StockOrder   = "pedido"
)

// InventoryRecord is the pair counter for one (batch, location, class)
// combination. Records are created on first movement and kept at zero
// rather than deleted.
type InventoryRecord struct {
	ID         int64     `json:"id"`
	BatchID    int64     `json:"id_producto"`
	LocationID int64     `json:"id_ubicacion"`
	StockClass string    `json:"tipo_stock"`
	Pairs      int       `json:"cantidad_pares"`
	UpdatedAt  time.Time `json:"fecha_actualizacion"`
}

// InventoryView joins a record with its batch and location for listings.
type InventoryView struct {
	InventoryRecord
	InternalCode string `json:"codigo_interno"`
	Leather      string `json:"cuero"`
	LeatherColor string `json:"color_cuero"`
	SizeRange    string `json:"serie_tallas"`
	LocationName string `json:"ubicacion"`
}

type CheckInRequest struct {
	BatchID    int64  `json:"id_producto"`
	LocationID int64  `json:"id_ubicacion"`
	StockClass string `json:"tipo_stock"`
	Pairs      int    `json:"cantidad_pares"`
}

type TransferRequest struct {
	BatchID        int64  `json:"id_producto"`
	FromLocationID int64  `json:"id_ubicacion_origen"`
	ToLocationID   int64  `json:"id_ubicacion_destino"`
	StockClass     string `json:"tipo_stock"`
	Pairs          int    `json:"cantidad_pares"`
}

type CreditReturnRequest struct {
	BatchID    int64  `json:"id_producto"`
	LocationID int64  `json:"id_ubicacion"`
	Pairs      int    `json:"cantidad_pares"`
	Reason     string `json:"motivo"`
}

// Movement kinds recorded in the stock audit trail.
const (
	MovementCheckIn      = "ingreso"
	MovementTransferOut  = "salida_traslado"
	MovementTransferIn   = "entrada_traslado"
	MovementSale         = "venta"
	MovementCreditReturn = "devolucion"
)

type StockMovement struct {
	ID         string    `json:"id"`
	BatchID    int64     `json:"id_producto"`
	LocationID int64     `json:"id_ubicacion"`
	Kind       string    `json:"tipo_movimiento"`
	Pairs      int       `json:"cantidad_pares"`
	Reference  string    `json:"referencia,omitempty"`
	Actor      string    `json:"usuario,omitempty"`
	CreatedAt  time.Time `json:"fecha"`
}

type Customer struct {
	ID             int64           `json:"id"`
	Name           string          `json:"nombre"`
	TradeName      string          `json:"nombre_comercial,omitempty"`
	DocumentType   string          `json:"tipo_documento"`
	DocumentNumber string          `json:"numero_documento"`
	Phone          string          `json:"telefono,omitempty"`
	Email          string          `json:"email,omitempty"`
	Address        string          `json:"direccion,omitempty"`
	CreditLimit    decimal.Decimal `json:"limite_credito"`
	CreditDays     int             `json:"dias_credito"`
	Active         bool            `json:"activo"`
	CreatedAt      time.Time       `json:"fecha_registro"`
}

type CustomerCreateRequest struct {
	Name           string          `json:"nombre"`
	TradeName      string          `json:"nombre_comercial"`
	DocumentType   string          `json:"tipo_documento"`
	DocumentNumber string          `json:"numero_documento"`
	Phone          string          `json:"telefono"`
	Email          string          `json:"email"`
	Address        string          `json:"direccion"`
	CreditLimit    decimal.Decimal `json:"limite_credito"`
	CreditDays     int             `json:"dias_credito"`
}

type CustomerUpdateRequest struct {
	Name        *string          `json:"nombre,omitempty"`
	TradeName   *string          `json:"nombre_comercial,omitempty"`
	Phone       *string          `json:"telefono,omitempty"`
	Email       *string          `json:"email,omitempty"`
	Address     *string          `json:"direccion,omitempty"`
	CreditLimit *decimal.Decimal `json:"limite_credito,omitempty"`
	CreditDays  *int             `json:"dias_credito,omitempty"`
	Active      *bool            `json:"activo,omitempty"`
}

// Payment statuses of a sale.
const (
	SalePaid    = "pagado"
	SalePartial = "parcial"
	SalePending = "pendiente"
	SaleCredit  = "credito"
)

// Sale code families. Regular sales draw from located inventory through
// the normal flow; direct sales bypass the order pipeline and sell
// straight from a location.
const (
	SaleKindRegular = "V"
	SaleKindDirect  = "VD"
)

type SaleLine struct {
	ID           int64           `json:"id"`
	SaleID       int64           `json:"id_venta"`
	InventoryID  int64           `json:"id_inventario"`
	BatchID      int64           `json:"id_producto"`
	InternalCode string          `json:"codigo_interno"`
	Leather      string          `json:"cuero"`
	LeatherColor string          `json:"color_cuero"`
	SizeRange    string          `json:"serie_tallas"`
	Pairs        int             `json:"cantidad_pares"`
	Dozens       decimal.Decimal `json:"cantidad_docenas"`
	UnitPrice    decimal.Decimal `json:"precio_unitario"`
	LineDiscount decimal.Decimal `json:"descuento_linea"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

type Sale struct {
	ID             int64           `json:"id"`
	SaleCode       string          `json:"codigo_venta"`
	CustomerID     *int64          `json:"id_cliente,omitempty"`
	CustomerName   string          `json:"cliente"`
	GlobalDiscount decimal.Decimal `json:"descuento_global"`
	Total          decimal.Decimal `json:"total_final"`
	PaymentStatus  string          `json:"estado_pago"`
	PaymentMethod  string          `json:"metodo_pago"`
	Notes          string          `json:"observaciones,omitempty"`
	SoldBy         string          `json:"vendedor,omitempty"`
	SoldAt         time.Time       `json:"fecha"`
	Lines          []SaleLine      `json:"detalle,omitempty"`
}

type SaleLineRequest struct {
	InventoryID  int64           `json:"id_inventario"`
	BatchID      int64           `json:"id_producto"`
	Pairs        int             `json:"cantidad_pares"`
	UnitPrice    decimal.Decimal `json:"precio_unitario"`
	LineDiscount decimal.Decimal `json:"descuento_linea"`
}

type SaleRegisterRequest struct {
	CustomerName   string            `json:"cliente"`
	CustomerID     *int64            `json:"id_cliente"`
	Lines          []SaleLineRequest `json:"productos"`
	GlobalDiscount decimal.Decimal   `json:"descuento_global"`
	PaymentStatus  string            `json:"estado_pago"`
	PaymentMethod  string            `json:"metodo_pago"`
	InitialPayment decimal.Decimal   `json:"pago_inicial"`
	Notes          string            `json:"observaciones"`
}

type SaleRegisterResponse struct {
	Success     bool            `json:"success"`
	SaleCode    string          `json:"codigo_venta"`
	Total       decimal.Decimal `json:"total_final"`
	AccountCode string          `json:"codigo_cuenta,omitempty"`
}

// Receivable account statuses.
const (
	AccountPending = "pendiente"
	AccountPaid    = "pagado"
	AccountOverdue = "vencido"
)

type ReceivableAccount struct {
	ID            int64           `json:"id"`
	AccountCode   string          `json:"codigo_cuenta"`
	SaleID        int64           `json:"id_venta"`
	SaleCode      string          `json:"codigo_venta"`
	CustomerID    *int64          `json:"id_cliente,omitempty"`
	CustomerName  string          `json:"cliente"`
	Total         decimal.Decimal `json:"monto_total"`
	AmountPaid    decimal.Decimal `json:"monto_pagado"`
	BalanceDue    decimal.Decimal `json:"saldo_pendiente"`
	IssueDate     time.Time       `json:"fecha_emision"`
	DueDate       time.Time       `json:"fecha_vencimiento"`
	Status        string          `json:"estado"`
	NeedsFollowUp bool            `json:"requiere_seguimiento"`
	Payments      []Payment       `json:"pagos,omitempty"`
}

type Payment struct {
	ID          int64           `json:"id"`
	PaymentCode string          `json:"codigo_pago"`
	AccountID   int64           `json:"id_cuenta"`
	Amount      decimal.Decimal `json:"monto_pago"`
	Method      string          `json:"metodo_pago"`
	Reference   string          `json:"numero_comprobante,omitempty"`
	ReceivedBy  string          `json:"usuario,omitempty"`
	PaidAt      time.Time       `json:"fecha_pago"`
}

type PaymentRequest struct {
	Amount    decimal.Decimal `json:"monto_pago"`
	Method    string          `json:"metodo_pago"`
	Reference string          `json:"numero_comprobante"`
}

type PaymentResponse struct {
	Success     bool            `json:"success"`
	PaymentCode string          `json:"codigo_pago"`
	BalanceDue  decimal.Decimal `json:"saldo_pendiente"`
	Status      string          `json:"estado"`
}

type DailySummaryBucket struct {
	Key   string          `json:"clave"`
	Sales int64           `json:"ventas"`
	Total decimal.Decimal `json:"total"`
}

type DailySummary struct {
	Date      string               `json:"fecha"`
	Sales     int64                `json:"ventas"`
	Gross     decimal.Decimal      `json:"total_bruto"`
	Discounts decimal.Decimal      `json:"descuentos"`
	Net       decimal.Decimal      `json:"total_neto"`
	ByMethod  []DailySummaryBucket `json:"por_metodo_pago"`
	ByStatus  []DailySummaryBucket `json:"por_estado_pago"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type SellerCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SellerUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
