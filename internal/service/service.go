package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"calzado/backend/internal/domain"
	"calzado/backend/internal/store"
	"calzado/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var paymentMethods = map[string]struct{}{
	"efectivo":      {},
	"transferencia": {},
	"tarjeta":       {},
	"yape":          {},
	"plin":          {},
	"deposito":      {},
}

type Service struct {
	repo               store.Repository
	defaultCreditDays  int
	allowUnknownCredit bool
}

func New(repo store.Repository, defaultCreditDays int, allowUnknownCredit bool) *Service {
	if defaultCreditDays < 1 {
		defaultCreditDays = 30
	}

	return &Service{
		repo:               repo,
		defaultCreditDays:  defaultCreditDays,
		allowUnknownCredit: allowUnknownCredit,
	}
}

// --- catalog ---

func (s *Service) ListVariants(ctx context.Context, includeInactive bool) ([]domain.Variant, error) {
	return s.repo.ListVariants(ctx, includeInactive)
}

func (s *Service) GetVariant(ctx context.Context, id int64) (domain.Variant, error) {
	v, err := s.repo.GetVariantByID(ctx, id)
	if err != nil {
		return domain.Variant{}, err
	}
	return *v, nil
}

func (s *Service) CreateVariant(ctx context.Context, req domain.VariantCreateRequest) (domain.Variant, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Variant{}, fmt.Errorf("admin role required")
	}

	req.InternalCode = strings.ToUpper(strings.TrimSpace(req.InternalCode))
	req.ShoeType = strings.ToLower(strings.TrimSpace(req.ShoeType))
	req.LastType = strings.ToLower(strings.TrimSpace(req.LastType))
	req.Segment = strings.ToLower(strings.TrimSpace(req.Segment))
	req.Description = strings.TrimSpace(req.Description)

	if req.InternalCode == "" || req.ShoeType == "" {
		return domain.Variant{}, fmt.Errorf("%w: internal code and shoe type are required", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateVariant(ctx, domain.Variant{
		InternalCode: req.InternalCode,
		ShoeType:     req.ShoeType,
		LastType:     req.LastType,
		Segment:      req.Segment,
		Description:  req.Description,
	})
	if err != nil {
		return domain.Variant{}, err
	}

	s.logAudit(ctx, "variant_create", "variant", created.InternalCode, fmt.Sprintf("type=%s,segment=%s", created.ShoeType, created.Segment))
	return *created, nil
}

func (s *Service) UpdateVariant(ctx context.Context, id int64, req domain.VariantUpdateRequest) (domain.Variant, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Variant{}, fmt.Errorf("admin role required")
	}

	existing, err := s.repo.GetVariantByID(ctx, id)
	if err != nil {
		return domain.Variant{}, err
	}

	updated := *existing
	if req.ShoeType != nil {
		shoeType := strings.ToLower(strings.TrimSpace(*req.ShoeType))
		if shoeType == "" {
			return domain.Variant{}, store.ErrInvalidInput
		}
		updated.ShoeType = shoeType
	}
	if req.LastType != nil {
		updated.LastType = strings.ToLower(strings.TrimSpace(*req.LastType))
	}
	if req.Segment != nil {
		updated.Segment = strings.ToLower(strings.TrimSpace(*req.Segment))
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateVariant(ctx, updated)
	if err != nil {
		return domain.Variant{}, err
	}

	s.logAudit(ctx, "variant_update", "variant", saved.InternalCode, fmt.Sprintf("active=%t", saved.Active))
	return *saved, nil
}

func (s *Service) CreateBatch(ctx context.Context, req domain.BatchCreateRequest) (domain.ProducedBatch, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.ProducedBatch{}, fmt.Errorf("admin role required")
	}

	if req.VariantID < 1 {
		return domain.ProducedBatch{}, fmt.Errorf("%w: variant id is required", store.ErrInvalidInput)
	}
	if req.TotalPairs < 1 {
		return domain.ProducedBatch{}, fmt.Errorf("%w: total pairs must be positive", store.ErrInvalidInput)
	}
	if req.UnitCost.IsNegative() || req.SuggestedPrice.IsNegative() {
		return domain.ProducedBatch{}, fmt.Errorf("%w: negative amounts", store.ErrInvalidInput)
	}

	productionDate := time.Now().UTC()
	if strings.TrimSpace(req.ProductionDate) != "" {
		parsed, err := time.Parse("2006-01-02", req.ProductionDate)
		if err != nil {
			return domain.ProducedBatch{}, fmt.Errorf("%w: production date must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		productionDate = parsed
	}

	created, err := s.repo.CreateBatch(ctx, domain.ProducedBatch{
		VariantID:      req.VariantID,
		Leather:        strings.ToLower(strings.TrimSpace(req.Leather)),
		LeatherColor:   strings.ToLower(strings.TrimSpace(req.LeatherColor)),
		Sole:           strings.ToLower(strings.TrimSpace(req.Sole)),
		Lining:         strings.ToLower(strings.TrimSpace(req.Lining)),
		SizeRange:      strings.TrimSpace(req.SizeRange),
		PairsPerDozen:  req.PairsPerDozen,
		UnitCost:       req.UnitCost,
		SuggestedPrice: req.SuggestedPrice,
		ProductionDate: productionDate,
		TotalPairs:     req.TotalPairs,
		Notes:          strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return domain.ProducedBatch{}, err
	}

	s.logAudit(ctx, "batch_create", "batch", fmt.Sprintf("%d", created.ID),
		fmt.Sprintf("variant=%s,pairs=%d", created.InternalCode, created.TotalPairs))
	return *created, nil
}

func (s *Service) GetBatch(ctx context.Context, id int64) (domain.ProducedBatch, error) {
	b, err := s.repo.GetBatchByID(ctx, id)
	if err != nil {
		return domain.ProducedBatch{}, err
	}
	return *b, nil
}

func (s *Service) ListBatches(ctx context.Context, variantID int64, limit int) ([]domain.ProducedBatch, error) {
	return s.repo.ListBatches(ctx, variantID, limit)
}

func (s *Service) CreateLocation(ctx context.Context, req domain.LocationCreateRequest) (domain.Location, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Location{}, fmt.Errorf("admin role required")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Location{}, fmt.Errorf("%w: location name is required", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateLocation(ctx, domain.Location{Name: name})
	if err != nil {
		return domain.Location{}, err
	}

	s.logAudit(ctx, "location_create", "location", fmt.Sprintf("%d", created.ID), name)
	return *created, nil
}

func (s *Service) ListLocations(ctx context.Context) ([]domain.Location, error) {
	return s.repo.ListLocations(ctx)
}

// --- inventory ---

func (s *Service) ListInventory(ctx context.Context, locationID, batchID int64) ([]domain.InventoryView, error) {
	return s.repo.ListInventory(ctx, locationID, batchID)
}

func (s *Service) CheckIn(ctx context.Context, req domain.CheckInRequest) (domain.InventoryRecord, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.InventoryRecord{}, fmt.Errorf("admin role required")
	}

	if req.StockClass == "" {
		req.StockClass = domain.StockGeneral
	}
	if req.Pairs < 1 {
		return domain.InventoryRecord{}, fmt.Errorf("%w: pairs must be positive", store.ErrInvalidInput)
	}

	rec, err := s.repo.CheckIn(ctx, req, actor.Username, time.Now().UTC())
	if err != nil {
		return domain.InventoryRecord{}, err
	}

	s.logAudit(ctx, "inventory_check_in", "inventory", fmt.Sprintf("%d", rec.ID),
		fmt.Sprintf("batch=%d,location=%d,class=%s,pairs=%d", req.BatchID, req.LocationID, req.StockClass, req.Pairs))
	return *rec, nil
}

func (s *Service) Transfer(ctx context.Context, req domain.TransferRequest) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}

	if req.StockClass == "" {
		req.StockClass = domain.StockGeneral
	}
	if req.Pairs < 1 {
		return fmt.Errorf("%w: pairs must be positive", store.ErrInvalidInput)
	}

	if err := s.repo.Transfer(ctx, req, actor.Username, time.Now().UTC()); err != nil {
		return err
	}

	s.logAudit(ctx, "inventory_transfer", "inventory", fmt.Sprintf("batch-%d", req.BatchID),
		fmt.Sprintf("from=%d,to=%d,class=%s,pairs=%d", req.FromLocationID, req.ToLocationID, req.StockClass, req.Pairs))
	return nil
}

func (s *Service) CreditReturn(ctx context.Context, req domain.CreditReturnRequest) (domain.InventoryRecord, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.InventoryRecord{}, fmt.Errorf("admin role required")
	}

	if req.Pairs < 1 {
		return domain.InventoryRecord{}, fmt.Errorf("%w: pairs must be positive", store.ErrInvalidInput)
	}
	req.Reason = strings.TrimSpace(req.Reason)

	rec, err := s.repo.CreditReturn(ctx, req, actor.Username, time.Now().UTC())
	if err != nil {
		return domain.InventoryRecord{}, err
	}

	s.logAudit(ctx, "inventory_credit_return", "inventory", fmt.Sprintf("%d", rec.ID),
		fmt.Sprintf("batch=%d,location=%d,pairs=%d,reason=%s", req.BatchID, req.LocationID, req.Pairs, req.Reason))
	return *rec, nil
}

func (s *Service) ListMovements(ctx context.Context, batchID int64, limit int) ([]domain.StockMovement, error) {
	return s.repo.ListMovements(ctx, batchID, limit)
}

// --- customers ---

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Customer{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.DocumentType = strings.ToUpper(strings.TrimSpace(req.DocumentType))
	req.DocumentNumber = strings.TrimSpace(req.DocumentNumber)
	if req.Name == "" || req.DocumentNumber == "" {
		return domain.Customer{}, fmt.Errorf("%w: name and document number are required", store.ErrInvalidInput)
	}
	if req.CreditLimit.IsNegative() {
		return domain.Customer{}, fmt.Errorf("%w: negative credit limit", store.ErrInvalidInput)
	}
	if req.CreditDays < 1 {
		req.CreditDays = s.defaultCreditDays
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:           req.Name,
		TradeName:      strings.TrimSpace(req.TradeName),
		DocumentType:   req.DocumentType,
		DocumentNumber: req.DocumentNumber,
		Phone:          strings.TrimSpace(req.Phone),
		Email:          strings.TrimSpace(req.Email),
		Address:        strings.TrimSpace(req.Address),
		CreditLimit:    req.CreditLimit,
		CreditDays:     req.CreditDays,
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_create", "customer", fmt.Sprintf("%d", created.ID), created.Name)
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	c, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *c, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id int64, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Customer{}, fmt.Errorf("admin role required")
	}

	existing, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.TradeName != nil {
		updated.TradeName = strings.TrimSpace(*req.TradeName)
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		updated.Email = strings.TrimSpace(*req.Email)
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.CreditLimit != nil {
		if req.CreditLimit.IsNegative() {
			return domain.Customer{}, fmt.Errorf("%w: negative credit limit", store.ErrInvalidInput)
		}
		updated.CreditLimit = *req.CreditLimit
	}
	if req.CreditDays != nil {
		if *req.CreditDays < 1 {
			return domain.Customer{}, fmt.Errorf("%w: credit days must be positive", store.ErrInvalidInput)
		}
		updated.CreditDays = *req.CreditDays
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_update", "customer", fmt.Sprintf("%d", saved.ID), fmt.Sprintf("active=%t", saved.Active))
	return *saved, nil
}

func (s *Service) ListCustomers(ctx context.Context, includeInactive bool) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, includeInactive)
}

// --- sales ---

// RegisterSale processes a multi-line sale through the regular flow
// (sale codes in the V family).
func (s *Service) RegisterSale(ctx context.Context, req domain.SaleRegisterRequest) (domain.SaleRegisterResponse, error) {
	return s.registerSale(ctx, req, domain.SaleKindRegular)
}

// RegisterDirectSale sells straight from located inventory, bypassing the
// order pipeline (sale codes in the VD family).
func (s *Service) RegisterDirectSale(ctx context.Context, req domain.SaleRegisterRequest) (domain.SaleRegisterResponse, error) {
	return s.registerSale(ctx, req, domain.SaleKindDirect)
}

func (s *Service) registerSale(ctx context.Context, req domain.SaleRegisterRequest, kind string) (domain.SaleRegisterResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SaleRegisterResponse{}, fmt.Errorf("authentication required")
	}

	if len(req.Lines) == 0 {
		return domain.SaleRegisterResponse{}, fmt.Errorf("%w: at least one product is required", store.ErrInvalidInput)
	}

	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	req.PaymentStatus = strings.ToLower(strings.TrimSpace(req.PaymentStatus))
	req.Notes = strings.TrimSpace(req.Notes)
	if req.PaymentMethod == "" {
		req.PaymentMethod = "efectivo"
	}
	if req.PaymentStatus == "" {
		req.PaymentStatus = domain.SalePaid
	}
	if _, ok := paymentMethods[req.PaymentMethod]; !ok {
		return domain.SaleRegisterResponse{}, fmt.Errorf("%w: unknown payment method %q", store.ErrInvalidInput, req.PaymentMethod)
	}
	switch req.PaymentStatus {
	case domain.SalePaid, domain.SalePending, domain.SaleCredit:
	case domain.SalePartial:
		return domain.SaleRegisterResponse{}, fmt.Errorf("%w: status parcial is assigned from the initial payment, declare credito or pendiente", store.ErrInvalidInput)
	default:
		return domain.SaleRegisterResponse{}, fmt.Errorf("%w: unknown payment status %q", store.ErrInvalidInput, req.PaymentStatus)
	}

	if req.GlobalDiscount.IsNegative() {
		return domain.SaleRegisterResponse{}, fmt.Errorf("%w: negative global discount", store.ErrInvalidInput)
	}
	if req.InitialPayment.IsNegative() {
		return domain.SaleRegisterResponse{}, fmt.Errorf("%w: negative initial payment", store.ErrInvalidInput)
	}

	lines := make([]store.SaleLineInsert, 0, len(req.Lines))
	total := decimal.Zero
	for i, line := range req.Lines {
		if line.InventoryID < 1 {
			return domain.SaleRegisterResponse{}, fmt.Errorf("%w: line %d has no inventory reference", store.ErrInvalidInput, i+1)
		}
		if line.Pairs < 1 {
			return domain.SaleRegisterResponse{}, fmt.Errorf("%w: line %d pairs must be positive", store.ErrInvalidInput, i+1)
		}
		if line.UnitPrice.IsNegative() || line.LineDiscount.IsNegative() {
			return domain.SaleRegisterResponse{}, fmt.Errorf("%w: line %d has negative amounts", store.ErrInvalidInput, i+1)
		}
		grossLine := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Pairs)))
		subtotal := grossLine.Sub(line.LineDiscount)
		if subtotal.IsNegative() {
			return domain.SaleRegisterResponse{}, fmt.Errorf("%w: line %d discount exceeds line amount", store.ErrInvalidInput, i+1)
		}
		total = total.Add(subtotal)
		lines = append(lines, store.SaleLineInsert{
			InventoryID:  line.InventoryID,
			BatchID:      line.BatchID,
			Pairs:        line.Pairs,
			UnitPrice:    line.UnitPrice,
			LineDiscount: line.LineDiscount,
			Subtotal:     subtotal,
		})
	}

	total = total.Sub(req.GlobalDiscount)
	if total.IsNegative() {
		return domain.SaleRegisterResponse{}, fmt.Errorf("%w: discounts exceed the sale total", store.ErrInvalidInput)
	}
	if req.InitialPayment.GreaterThan(total) {
		return domain.SaleRegisterResponse{}, fmt.Errorf("%w: initial payment exceeds the sale total", store.ErrInvalidInput)
	}

	creditDays := s.defaultCreditDays
	var customer *domain.Customer
	if req.CustomerID != nil {
		found, err := s.repo.GetCustomerByID(ctx, *req.CustomerID)
		if err != nil {
			return domain.SaleRegisterResponse{}, fmt.Errorf("customer %d: %w", *req.CustomerID, err)
		}
		customer = found
		if customer.CreditDays > 0 {
			creditDays = customer.CreditDays
		}
		if req.CustomerName == "" {
			req.CustomerName = customer.Name
		}
	}
	if req.CustomerName == "" {
		return domain.SaleRegisterResponse{}, fmt.Errorf("%w: customer name is required", store.ErrInvalidInput)
	}

	balance := total.Sub(req.InitialPayment)
	status := req.PaymentStatus
	openAccount := false
	needsFollowUp := false
	switch status {
	case domain.SaleCredit, domain.SalePending:
		if balance.IsPositive() {
			openAccount = true
			if req.InitialPayment.IsPositive() {
				status = domain.SalePartial
			}
			if customer == nil {
				if !s.allowUnknownCredit {
					return domain.SaleRegisterResponse{}, fmt.Errorf("%w: credit sales require a registered customer", store.ErrInvalidInput)
				}
				needsFollowUp = true
			}
		} else {
			// The declared status says credit but the initial payment
			// already covers the total. Record it as settled.
			status = domain.SalePaid
		}
	case domain.SalePaid:
		if req.InitialPayment.IsPositive() {
			return domain.SaleRegisterResponse{}, fmt.Errorf("%w: settled sales do not take an initial payment", store.ErrInvalidInput)
		}
	}

	sale, account, err := s.repo.RegisterSale(ctx, store.SaleInsert{
		Kind:           kind,
		CustomerID:     req.CustomerID,
		CustomerName:   req.CustomerName,
		Lines:          lines,
		GlobalDiscount: req.GlobalDiscount,
		Total:          total,
		PaymentStatus:  status,
		PaymentMethod:  req.PaymentMethod,
		InitialPayment: req.InitialPayment,
		Notes:          req.Notes,
		SoldBy:         actor.Username,
		At:             time.Now().UTC(),
		OpenAccount:    openAccount,
		CreditDays:     creditDays,
		NeedsFollowUp:  needsFollowUp,
	})
	if err != nil {
		return domain.SaleRegisterResponse{}, err
	}

	s.logAudit(ctx, "sale_register", "sale", sale.SaleCode,
		fmt.Sprintf("total=%s,status=%s,lines=%d", sale.Total.StringFixed(2), sale.PaymentStatus, len(sale.Lines)))

	resp := domain.SaleRegisterResponse{
		Success:  true,
		SaleCode: sale.SaleCode,
		Total:    sale.Total,
	}
	if account != nil {
		resp.AccountCode = account.AccountCode
		if account.NeedsFollowUp {
			log.Printf("[service] WARN: receivable %s opened without a registered customer (cliente=%q)", account.AccountCode, sale.CustomerName)
		}
	}
	return resp, nil
}

func (s *Service) GetSale(ctx context.Context, code string) (domain.Sale, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Sale{}, store.ErrInvalidInput
	}
	sale, err := s.repo.GetSaleByCode(ctx, code)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, from, to time.Time, limit int) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, from, to, limit)
}

func (s *Service) DailySummary(ctx context.Context, day time.Time) (domain.DailySummary, error) {
	return s.repo.GetDailySummary(ctx, day)
}

// --- receivables ---

func (s *Service) GetAccount(ctx context.Context, id int64) (domain.ReceivableAccount, error) {
	acc, err := s.repo.GetAccountByID(ctx, id)
	if err != nil {
		return domain.ReceivableAccount{}, err
	}
	return *acc, nil
}

func (s *Service) ListAccounts(ctx context.Context, status string, customerID int64, limit int) ([]domain.ReceivableAccount, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", domain.AccountPending, domain.AccountPaid, domain.AccountOverdue:
	default:
		return nil, fmt.Errorf("%w: unknown account status %q", store.ErrInvalidInput, status)
	}
	return s.repo.ListAccounts(ctx, status, customerID, limit)
}

func (s *Service) RegisterPayment(ctx context.Context, accountID int64, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.PaymentResponse{}, fmt.Errorf("authentication required")
	}

	req.Method = strings.ToLower(strings.TrimSpace(req.Method))
	if req.Method == "" {
		req.Method = "efectivo"
	}
	if _, ok := paymentMethods[req.Method]; !ok {
		return domain.PaymentResponse{}, fmt.Errorf("%w: unknown payment method %q", store.ErrInvalidInput, req.Method)
	}
	if !req.Amount.IsPositive() {
		return domain.PaymentResponse{}, fmt.Errorf("%w: payment amount must be positive", store.ErrInvalidInput)
	}

	payment, account, err := s.repo.RegisterPayment(ctx, accountID, store.PaymentInsert{
		Amount:     req.Amount,
		Method:     req.Method,
		Reference:  strings.TrimSpace(req.Reference),
		ReceivedBy: actor.Username,
		At:         time.Now().UTC(),
	})
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	s.logAudit(ctx, "payment_register", "payment", payment.PaymentCode,
		fmt.Sprintf("account=%s,amount=%s,balance=%s", account.AccountCode, payment.Amount.StringFixed(2), account.BalanceDue.StringFixed(2)))

	return domain.PaymentResponse{
		Success:     true,
		PaymentCode: payment.PaymentCode,
		BalanceDue:  account.BalanceDue,
		Status:      account.Status,
	}, nil
}

// MarkOverdueAccounts flips pending accounts past their due date to
// vencido. It is invoked from the HTTP surface by an admin, typically on
// a schedule.
func (s *Service) MarkOverdueAccounts(ctx context.Context) (int, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return 0, fmt.Errorf("admin role required")
	}

	marked, err := s.repo.MarkOverdueAccounts(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if marked > 0 {
		s.logAudit(ctx, "accounts_mark_overdue", "account", "sweep", fmt.Sprintf("marked=%d", marked))
	}
	return marked, nil
}

// --- audit ---

func (s *Service) ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}
