package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"calzado/backend/internal/domain"
	"calzado/backend/internal/store"
	"calzado/backend/internal/xid"
)

type invKey struct {
	batchID    int64
	locationID int64
	stockClass string
}

type Store struct {
	mu              sync.RWMutex
	seq             map[string]int64
	variantsByID    map[int64]domain.Variant
	variantIDByCode map[string]int64
	batchesByID     map[int64]domain.ProducedBatch
	locationsByID   map[int64]domain.Location
	inventoryByID   map[int64]domain.InventoryRecord
	inventoryIdx    map[invKey]int64
	movements       []domain.StockMovement
	customersByID   map[int64]domain.Customer
	customerIDByDoc map[string]int64
	salesByID       map[int64]domain.Sale
	saleIDByCode    map[string]int64
	accountsByID    map[int64]domain.ReceivableAccount
	accountIDByCode map[string]int64
	paymentCodes    map[string]int64
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "vendedor123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"vendedor", sellerPwd, "vendedor"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := &Store{
		seq:             map[string]int64{},
		variantsByID:    map[int64]domain.Variant{},
		variantIDByCode: map[string]int64{},
		batchesByID:     map[int64]domain.ProducedBatch{},
		locationsByID:   map[int64]domain.Location{},
		inventoryByID:   map[int64]domain.InventoryRecord{},
		inventoryIdx:    map[invKey]int64{},
		movements:       make([]domain.StockMovement, 0, 128),
		customersByID:   map[int64]domain.Customer{},
		customerIDByDoc: map[string]int64{},
		salesByID:       map[int64]domain.Sale{},
		saleIDByCode:    map[string]int64{},
		accountsByID:    map[int64]domain.ReceivableAccount{},
		accountIDByCode: map[string]int64{},
		paymentCodes:    map[string]int64{},
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}

	now := time.Now().UTC()
	ctx := context.Background()

	for _, name := range []string{"Almacén Principal", "Tienda Centro"} {
		if _, err := s.CreateLocation(ctx, domain.Location{Name: name}); err != nil {
			log.Fatalf("[memory-store] seed location %s: %v", name, err)
		}
	}

	variants := []domain.Variant{
		{InternalCode: "BOT-CAB-001", ShoeType: "botin", LastType: "clasica", Segment: "caballero", Description: "Botín caballero punta redonda"},
		{InternalCode: "ZAP-DAM-001", ShoeType: "zapato", LastType: "italiana", Segment: "dama", Description: "Zapato dama taco bajo"},
		{InternalCode: "ESC-NIN-001", ShoeType: "escolar", LastType: "clasica", Segment: "niño", Description: "Zapato escolar con velcro"},
	}
	for _, v := range variants {
		if _, err := s.CreateVariant(ctx, v); err != nil {
			log.Fatalf("[memory-store] seed variant %s: %v", v.InternalCode, err)
		}
	}

	batches := []domain.ProducedBatch{
		{VariantID: 1, Leather: "graso", LeatherColor: "negro", Sole: "pvc", Lining: "textil", SizeRange: "38-43", PairsPerDozen: 12, UnitCost: decimal.RequireFromString("38.50"), SuggestedPrice: decimal.RequireFromString("65.00"), ProductionDate: now, TotalPairs: 120},
		{VariantID: 2, Leather: "napa", LeatherColor: "marron", Sole: "caucho", Lining: "badana", SizeRange: "35-39", PairsPerDozen: 12, UnitCost: decimal.RequireFromString("42.00"), SuggestedPrice: decimal.RequireFromString("72.00"), ProductionDate: now, TotalPairs: 60},
		{VariantID: 3, Leather: "box", LeatherColor: "negro", Sole: "pvc", Lining: "textil", SizeRange: "27-32", PairsPerDozen: 12, UnitCost: decimal.RequireFromString("25.00"), SuggestedPrice: decimal.RequireFromString("45.00"), ProductionDate: now, TotalPairs: 144},
	}
	for i, b := range batches {
		created, err := s.CreateBatch(ctx, b)
		if err != nil {
			log.Fatalf("[memory-store] seed batch %d: %v", i, err)
		}
		_, err = s.CheckIn(ctx, domain.CheckInRequest{
			BatchID:    created.ID,
			LocationID: 1,
			StockClass: domain.StockGeneral,
			Pairs:      created.TotalPairs / 2,
		}, "seed", now)
		if err != nil {
			log.Fatalf("[memory-store] seed check-in batch %d: %v", created.ID, err)
		}
	}

	if _, err := s.CreateCustomer(ctx, domain.Customer{
		Name:           "Comercial Pacheco",
		DocumentType:   "RUC",
		DocumentNumber: "20481234567",
		CreditLimit:    decimal.RequireFromString("5000.00"),
		CreditDays:     30,
	}); err != nil {
		log.Fatalf("[memory-store] seed customer: %v", err)
	}

	return s
}

func (s *Store) next(name string) int64 {
	s.seq[name]++
	return s.seq[name]
}

// nextCodeSeq returns MAX(numeric suffix)+1 over the existing codes that
// share the given day prefix, matching the SQL store's generation rule.
func nextCodeSeq(existing map[string]int64, prefix string) int {
	max := 0
	for code := range existing {
		if !strings.HasPrefix(code, prefix) {
			continue
		}
		if n, err := strconv.Atoi(code[len(prefix):]); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

func codePrefix(family string, at time.Time) string {
	return family + at.Format("20060102") + "-"
}

// --- catalog ---

func (s *Store) CreateVariant(_ context.Context, v domain.Variant) (*domain.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.InternalCode == "" || v.ShoeType == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.variantIDByCode[v.InternalCode]; exists {
		return nil, fmt.Errorf("%w: variant code %s", store.ErrDuplicate, v.InternalCode)
	}

	v.ID = s.next("variant")
	v.Active = true
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	s.variantsByID[v.ID] = v
	s.variantIDByCode[v.InternalCode] = v.ID
	created := v
	return &created, nil
}

func (s *Store) GetVariantByID(_ context.Context, id int64) (*domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, exists := s.variantsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyVariant := v
	return &copyVariant, nil
}

func (s *Store) GetVariantByCode(_ context.Context, code string) (*domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.variantIDByCode[code]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyVariant := s.variantsByID[id]
	return &copyVariant, nil
}

func (s *Store) UpdateVariant(_ context.Context, v domain.Variant) (*domain.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.variantsByID[v.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	// The internal code is immutable once assigned.
	v.InternalCode = current.InternalCode
	v.CreatedAt = current.CreatedAt
	s.variantsByID[v.ID] = v
	updated := v
	return &updated, nil
}

func (s *Store) ListVariants(_ context.Context, includeInactive bool) ([]domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	variants := make([]domain.Variant, 0, len(s.variantsByID))
	for _, v := range s.variantsByID {
		if !v.Active && !includeInactive {
			continue
		}
		variants = append(variants, v)
	}
	slices.SortFunc(variants, func(a, b domain.Variant) int {
		return cmpString(a.InternalCode, b.InternalCode)
	})
	return variants, nil
}

func (s *Store) CreateBatch(_ context.Context, b domain.ProducedBatch) (*domain.ProducedBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	variant, exists := s.variantsByID[b.VariantID]
	if !exists {
		return nil, fmt.Errorf("%w: variant %d", store.ErrNotFound, b.VariantID)
	}
	if b.TotalPairs < 1 {
		return nil, fmt.Errorf("%w: total pairs must be positive", store.ErrInvalidInput)
	}
	if b.PairsPerDozen < 1 {
		b.PairsPerDozen = 12
	}
	if b.UnitCost.IsNegative() || b.SuggestedPrice.IsNegative() {
		return nil, fmt.Errorf("%w: negative amounts", store.ErrInvalidInput)
	}

	b.ID = s.next("batch")
	b.InternalCode = variant.InternalCode
	b.ReceivedPairs = 0
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	s.batchesByID[b.ID] = b
	created := b
	return &created, nil
}

func (s *Store) GetBatchByID(_ context.Context, id int64) (*domain.ProducedBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.batchesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyBatch := b
	return &copyBatch, nil
}

func (s *Store) ListBatches(_ context.Context, variantID int64, limit int) ([]domain.ProducedBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batches := make([]domain.ProducedBatch, 0, len(s.batchesByID))
	for _, b := range s.batchesByID {
		if variantID > 0 && b.VariantID != variantID {
			continue
		}
		batches = append(batches, b)
	}
	slices.SortFunc(batches, func(a, b domain.ProducedBatch) int {
		if a.ID == b.ID {
			return 0
		}
		if a.ID > b.ID {
			return -1
		}
		return 1
	})
	if limit > 0 && len(batches) > limit {
		batches = batches[:limit]
	}
	return batches, nil
}

func (s *Store) CreateLocation(_ context.Context, l domain.Location) (*domain.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(l.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	l.ID = s.next("location")
	l.Active = true
	s.locationsByID[l.ID] = l
	created := l
	return &created, nil
}

func (s *Store) GetLocationByID(_ context.Context, id int64) (*domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, exists := s.locationsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyLocation := l
	return &copyLocation, nil
}

func (s *Store) ListLocations(_ context.Context) ([]domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	locations := make([]domain.Location, 0, len(s.locationsByID))
	for _, l := range s.locationsByID {
		locations = append(locations, l)
	}
	slices.SortFunc(locations, func(a, b domain.Location) int {
		return cmpString(a.Name, b.Name)
	})
	return locations, nil
}

// --- inventory ---

func (s *Store) GetInventoryByID(_ context.Context, id int64) (*domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.inventoryByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyRec := rec
	return &copyRec, nil
}

func (s *Store) ListInventory(_ context.Context, locationID, batchID int64) ([]domain.InventoryView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]domain.InventoryView, 0, len(s.inventoryByID))
	for _, rec := range s.inventoryByID {
		if locationID > 0 && rec.LocationID != locationID {
			continue
		}
		if batchID > 0 && rec.BatchID != batchID {
			continue
		}
		views = append(views, s.viewLocked(rec))
	}
	slices.SortFunc(views, func(a, b domain.InventoryView) int {
		if a.InternalCode == b.InternalCode {
			return cmpString(a.LocationName, b.LocationName)
		}
		return cmpString(a.InternalCode, b.InternalCode)
	})
	return views, nil
}

func (s *Store) viewLocked(rec domain.InventoryRecord) domain.InventoryView {
	view := domain.InventoryView{InventoryRecord: rec}
	if b, ok := s.batchesByID[rec.BatchID]; ok {
		view.InternalCode = b.InternalCode
		view.Leather = b.Leather
		view.LeatherColor = b.LeatherColor
		view.SizeRange = b.SizeRange
	}
	if l, ok := s.locationsByID[rec.LocationID]; ok {
		view.LocationName = l.Name
	}
	return view
}

// upsertRecordLocked finds or creates the counter row for the given key.
func (s *Store) upsertRecordLocked(key invKey, at time.Time) int64 {
	if id, ok := s.inventoryIdx[key]; ok {
		return id
	}
	id := s.next("inventory")
	s.inventoryByID[id] = domain.InventoryRecord{
		ID:         id,
		BatchID:    key.batchID,
		LocationID: key.locationID,
		StockClass: key.stockClass,
		Pairs:      0,
		UpdatedAt:  at,
	}
	s.inventoryIdx[key] = id
	return id
}

func (s *Store) recordMovementLocked(batchID, locationID int64, kind string, pairs int, reference, actor string, at time.Time) {
	s.movements = append(s.movements, domain.StockMovement{
		ID:         xid.New("mov"),
		BatchID:    batchID,
		LocationID: locationID,
		Kind:       kind,
		Pairs:      pairs,
		Reference:  reference,
		Actor:      actor,
		CreatedAt:  at,
	})
}

func validStockClass(class string) bool {
	return class == domain.StockGeneral || class == domain.StockOrder
}

func (s *Store) CheckIn(_ context.Context, req domain.CheckInRequest, actor string, at time.Time) (*domain.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Pairs < 1 || !validStockClass(req.StockClass) {
		return nil, store.ErrInvalidInput
	}
	batch, exists := s.batchesByID[req.BatchID]
	if !exists {
		return nil, fmt.Errorf("%w: batch %d", store.ErrNotFound, req.BatchID)
	}
	if _, exists := s.locationsByID[req.LocationID]; !exists {
		return nil, fmt.Errorf("%w: location %d", store.ErrNotFound, req.LocationID)
	}
	pending := batch.TotalPairs - batch.ReceivedPairs
	if req.Pairs > pending {
		return nil, fmt.Errorf("%w: batch %d has %d pairs pending, requested %d",
			store.ErrInvalidInput, req.BatchID, pending, req.Pairs)
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	id := s.upsertRecordLocked(invKey{req.BatchID, req.LocationID, req.StockClass}, at)
	rec := s.inventoryByID[id]
	rec.Pairs += req.Pairs
	rec.UpdatedAt = at
	s.inventoryByID[id] = rec

	batch.ReceivedPairs += req.Pairs
	s.batchesByID[batch.ID] = batch

	s.recordMovementLocked(req.BatchID, req.LocationID, domain.MovementCheckIn, req.Pairs, "", actor, at)

	copyRec := rec
	return &copyRec, nil
}

func (s *Store) Transfer(_ context.Context, req domain.TransferRequest, actor string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Pairs < 1 || !validStockClass(req.StockClass) {
		return store.ErrInvalidInput
	}
	if req.FromLocationID == req.ToLocationID {
		return fmt.Errorf("%w: source and destination are the same", store.ErrInvalidInput)
	}
	if _, exists := s.locationsByID[req.ToLocationID]; !exists {
		return fmt.Errorf("%w: location %d", store.ErrNotFound, req.ToLocationID)
	}

	srcID, ok := s.inventoryIdx[invKey{req.BatchID, req.FromLocationID, req.StockClass}]
	if !ok {
		return fmt.Errorf("%w: no stock of batch %d at location %d", store.ErrNotFound, req.BatchID, req.FromLocationID)
	}
	src := s.inventoryByID[srcID]
	if src.Pairs < req.Pairs {
		return &store.InsufficientStockError{
			InventoryID: srcID,
			Requested:   req.Pairs,
			Available:   src.Pairs,
		}
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	dstID := s.upsertRecordLocked(invKey{req.BatchID, req.ToLocationID, req.StockClass}, at)
	dst := s.inventoryByID[dstID]

	src.Pairs -= req.Pairs
	src.UpdatedAt = at
	dst.Pairs += req.Pairs
	dst.UpdatedAt = at
	s.inventoryByID[srcID] = src
	s.inventoryByID[dstID] = dst

	ref := xid.New("tr")
	s.recordMovementLocked(req.BatchID, req.FromLocationID, domain.MovementTransferOut, req.Pairs, ref, actor, at)
	s.recordMovementLocked(req.BatchID, req.ToLocationID, domain.MovementTransferIn, req.Pairs, ref, actor, at)
	return nil
}

func (s *Store) CreditReturn(_ context.Context, req domain.CreditReturnRequest, actor string, at time.Time) (*domain.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Pairs < 1 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.batchesByID[req.BatchID]; !exists {
		return nil, fmt.Errorf("%w: batch %d", store.ErrNotFound, req.BatchID)
	}
	if _, exists := s.locationsByID[req.LocationID]; !exists {
		return nil, fmt.Errorf("%w: location %d", store.ErrNotFound, req.LocationID)
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	id := s.upsertRecordLocked(invKey{req.BatchID, req.LocationID, domain.StockGeneral}, at)
	rec := s.inventoryByID[id]
	rec.Pairs += req.Pairs
	rec.UpdatedAt = at
	s.inventoryByID[id] = rec

	s.recordMovementLocked(req.BatchID, req.LocationID, domain.MovementCreditReturn, req.Pairs, req.Reason, actor, at)

	copyRec := rec
	return &copyRec, nil
}

func (s *Store) ListMovements(_ context.Context, batchID int64, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockMovement, 0, len(s.movements))
	for _, m := range s.movements {
		if batchID > 0 && m.BatchID != batchID {
			continue
		}
		result = append(result, m)
	}
	slices.SortFunc(result, func(a, b domain.StockMovement) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// --- customers ---

func (s *Store) CreateCustomer(_ context.Context, c domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Name == "" || c.DocumentNumber == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.customerIDByDoc[c.DocumentNumber]; exists {
		return nil, fmt.Errorf("%w: document %s", store.ErrDuplicate, c.DocumentNumber)
	}
	if c.CreditDays < 1 {
		c.CreditDays = 30
	}
	if c.CreditLimit.IsNegative() {
		return nil, fmt.Errorf("%w: negative credit limit", store.ErrInvalidInput)
	}

	c.ID = s.next("customer")
	c.Active = true
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.customersByID[c.ID] = c
	s.customerIDByDoc[c.DocumentNumber] = c.ID
	created := c
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := c
	return &copyCustomer, nil
}

func (s *Store) UpdateCustomer(_ context.Context, c domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.customersByID[c.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	// Document identity is immutable once registered.
	c.DocumentType = current.DocumentType
	c.DocumentNumber = current.DocumentNumber
	c.CreatedAt = current.CreatedAt
	if c.CreditDays < 1 {
		c.CreditDays = current.CreditDays
	}
	s.customersByID[c.ID] = c
	updated := c
	return &updated, nil
}

func (s *Store) ListCustomers(_ context.Context, includeInactive bool) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		if !c.Active && !includeInactive {
			continue
		}
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	return customers, nil
}

// --- sales ---

func (s *Store) RegisterSale(_ context.Context, ins store.SaleInsert) (*domain.Sale, *domain.ReceivableAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ins.Lines) == 0 {
		return nil, nil, fmt.Errorf("%w: empty cart", store.ErrInvalidInput)
	}
	if ins.At.IsZero() {
		ins.At = time.Now().UTC()
	}

	// Validate every line against current stock before touching anything.
	type pending struct {
		rec   domain.InventoryRecord
		batch domain.ProducedBatch
		line  store.SaleLineInsert
	}
	plan := make([]pending, 0, len(ins.Lines))
	for i, line := range ins.Lines {
		rec, exists := s.inventoryByID[line.InventoryID]
		if !exists {
			return nil, nil, fmt.Errorf("%w: inventory %d", store.ErrNotFound, line.InventoryID)
		}
		if rec.StockClass != domain.StockGeneral {
			return nil, nil, fmt.Errorf("%w: inventory %d is not general stock", store.ErrInvalidInput, line.InventoryID)
		}
		if line.BatchID != 0 && rec.BatchID != line.BatchID {
			return nil, nil, fmt.Errorf("%w: inventory %d does not hold batch %d", store.ErrInvalidInput, line.InventoryID, line.BatchID)
		}
		if rec.Pairs < line.Pairs {
			return nil, nil, &store.InsufficientStockError{
				Line:        i + 1,
				InventoryID: line.InventoryID,
				Requested:   line.Pairs,
				Available:   rec.Pairs,
			}
		}
		batch := s.batchesByID[rec.BatchID]
		plan = append(plan, pending{rec: rec, batch: batch, line: line})
	}

	prefix := codePrefix(ins.Kind, ins.At)
	code := fmt.Sprintf("%s%03d", prefix, nextCodeSeq(s.saleIDByCode, prefix))

	saleID := s.next("sale")
	sale := domain.Sale{
		ID:             saleID,
		SaleCode:       code,
		CustomerID:     ins.CustomerID,
		CustomerName:   ins.CustomerName,
		GlobalDiscount: ins.GlobalDiscount,
		Total:          ins.Total,
		PaymentStatus:  ins.PaymentStatus,
		PaymentMethod:  ins.PaymentMethod,
		Notes:          ins.Notes,
		SoldBy:         ins.SoldBy,
		SoldAt:         ins.At,
	}

	for _, p := range plan {
		rec := s.inventoryByID[p.rec.ID]
		rec.Pairs -= p.line.Pairs
		rec.UpdatedAt = ins.At
		s.inventoryByID[rec.ID] = rec
		s.recordMovementLocked(rec.BatchID, rec.LocationID, domain.MovementSale, p.line.Pairs, code, ins.SoldBy, ins.At)

		ppd := p.batch.PairsPerDozen
		if ppd < 1 {
			ppd = 12
		}
		sale.Lines = append(sale.Lines, domain.SaleLine{
			ID:           s.next("sale_line"),
			SaleID:       saleID,
			InventoryID:  p.line.InventoryID,
			BatchID:      rec.BatchID,
			InternalCode: p.batch.InternalCode,
			Leather:      p.batch.Leather,
			LeatherColor: p.batch.LeatherColor,
			SizeRange:    p.batch.SizeRange,
			Pairs:        p.line.Pairs,
			Dozens:       decimal.NewFromInt(int64(p.line.Pairs)).Div(decimal.NewFromInt(int64(ppd))).Round(2),
			UnitPrice:    p.line.UnitPrice,
			LineDiscount: p.line.LineDiscount,
			Subtotal:     p.line.Subtotal,
		})
	}

	s.salesByID[saleID] = sale
	s.saleIDByCode[code] = saleID

	var account *domain.ReceivableAccount
	if ins.OpenAccount {
		acc := s.openAccountLocked(sale, ins)
		account = &acc
	}

	created := cloneSale(sale)
	return &created, account, nil
}

// openAccountLocked creates the receivable for a credit sale and records
// the initial payment, if any, as the account's first payment.
func (s *Store) openAccountLocked(sale domain.Sale, ins store.SaleInsert) domain.ReceivableAccount {
	prefix := codePrefix("CXC", ins.At)
	code := fmt.Sprintf("%s%03d", prefix, nextCodeSeq(s.accountIDByCode, prefix))

	creditDays := ins.CreditDays
	if creditDays < 1 {
		creditDays = 30
	}

	acc := domain.ReceivableAccount{
		ID:            s.next("account"),
		AccountCode:   code,
		SaleID:        sale.ID,
		SaleCode:      sale.SaleCode,
		CustomerID:    sale.CustomerID,
		CustomerName:  sale.CustomerName,
		Total:         sale.Total,
		AmountPaid:    decimal.Zero,
		BalanceDue:    sale.Total,
		IssueDate:     ins.At,
		DueDate:       ins.At.AddDate(0, 0, creditDays),
		Status:        domain.AccountPending,
		NeedsFollowUp: ins.NeedsFollowUp,
	}

	if ins.InitialPayment.IsPositive() {
		payPrefix := codePrefix("PG", ins.At)
		payCode := fmt.Sprintf("%s%03d", payPrefix, nextCodeSeq(s.paymentCodes, payPrefix))
		payment := domain.Payment{
			ID:          s.next("payment"),
			PaymentCode: payCode,
			AccountID:   acc.ID,
			Amount:      ins.InitialPayment,
			Method:      ins.PaymentMethod,
			ReceivedBy:  ins.SoldBy,
			PaidAt:      ins.At,
		}
		acc.Payments = append(acc.Payments, payment)
		acc.AmountPaid = ins.InitialPayment
		acc.BalanceDue = acc.Total.Sub(ins.InitialPayment)
		if acc.BalanceDue.IsZero() {
			acc.Status = domain.AccountPaid
		}
		s.paymentCodes[payCode] = payment.ID
	}

	s.accountsByID[acc.ID] = acc
	s.accountIDByCode[code] = acc.ID
	return acc
}

func (s *Store) GetSaleByCode(_ context.Context, code string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.saleIDByCode[code]
	if !exists {
		return nil, store.ErrNotFound
	}
	sale := cloneSale(s.salesByID[id])
	return &sale, nil
}

func (s *Store) ListSales(_ context.Context, from, to time.Time, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if !from.IsZero() && sale.SoldAt.Before(from) {
			continue
		}
		if !to.IsZero() && !sale.SoldAt.Before(to) {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return cmpString(b.SaleCode, a.SaleCode)
	})
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) GetDailySummary(_ context.Context, day time.Time) (domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	summary := domain.DailySummary{
		Date:      dayStart.Format("2006-01-02"),
		Gross:     decimal.Zero,
		Discounts: decimal.Zero,
		Net:       decimal.Zero,
	}
	byMethod := map[string]*domain.DailySummaryBucket{}
	byStatus := map[string]*domain.DailySummaryBucket{}

	for _, sale := range s.salesByID {
		if sale.SoldAt.Before(dayStart) || !sale.SoldAt.Before(dayEnd) {
			continue
		}
		summary.Sales++
		lineDiscounts := decimal.Zero
		gross := decimal.Zero
		for _, line := range sale.Lines {
			gross = gross.Add(decimal.NewFromInt(int64(line.Pairs)).Mul(line.UnitPrice))
			lineDiscounts = lineDiscounts.Add(line.LineDiscount)
		}
		summary.Gross = summary.Gross.Add(gross)
		summary.Discounts = summary.Discounts.Add(lineDiscounts).Add(sale.GlobalDiscount)
		summary.Net = summary.Net.Add(sale.Total)

		addBucket(byMethod, sale.PaymentMethod, sale.Total)
		addBucket(byStatus, sale.PaymentStatus, sale.Total)
	}

	summary.ByMethod = sortedBuckets(byMethod)
	summary.ByStatus = sortedBuckets(byStatus)
	return summary, nil
}

func addBucket(buckets map[string]*domain.DailySummaryBucket, key string, total decimal.Decimal) {
	b, ok := buckets[key]
	if !ok {
		b = &domain.DailySummaryBucket{Key: key, Total: decimal.Zero}
		buckets[key] = b
	}
	b.Sales++
	b.Total = b.Total.Add(total)
}

func sortedBuckets(buckets map[string]*domain.DailySummaryBucket) []domain.DailySummaryBucket {
	result := make([]domain.DailySummaryBucket, 0, len(buckets))
	for _, b := range buckets {
		result = append(result, *b)
	}
	slices.SortFunc(result, func(a, b domain.DailySummaryBucket) int {
		return cmpString(a.Key, b.Key)
	})
	return result
}

// --- receivables ---

func (s *Store) GetAccountByID(_ context.Context, id int64) (*domain.ReceivableAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, exists := s.accountsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyAcc := cloneAccount(acc)
	return &copyAcc, nil
}

func (s *Store) ListAccounts(_ context.Context, status string, customerID int64, limit int) ([]domain.ReceivableAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]domain.ReceivableAccount, 0, len(s.accountsByID))
	for _, acc := range s.accountsByID {
		if status != "" && acc.Status != status {
			continue
		}
		if customerID > 0 && (acc.CustomerID == nil || *acc.CustomerID != customerID) {
			continue
		}
		accounts = append(accounts, cloneAccount(acc))
	}
	slices.SortFunc(accounts, func(a, b domain.ReceivableAccount) int {
		return cmpString(b.AccountCode, a.AccountCode)
	})
	if limit > 0 && len(accounts) > limit {
		accounts = accounts[:limit]
	}
	return accounts, nil
}

func (s *Store) RegisterPayment(_ context.Context, accountID int64, pay store.PaymentInsert) (*domain.Payment, *domain.ReceivableAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, exists := s.accountsByID[accountID]
	if !exists {
		return nil, nil, store.ErrNotFound
	}
	if acc.Status == domain.AccountPaid {
		return nil, nil, fmt.Errorf("%w: account %s is settled", store.ErrInvalidInput, acc.AccountCode)
	}
	if !pay.Amount.IsPositive() {
		return nil, nil, fmt.Errorf("%w: payment amount must be positive", store.ErrInvalidInput)
	}
	if pay.Amount.GreaterThan(acc.BalanceDue) {
		return nil, nil, fmt.Errorf("%w: payment %s exceeds balance %s",
			store.ErrInvalidInput, pay.Amount.StringFixed(2), acc.BalanceDue.StringFixed(2))
	}
	if pay.At.IsZero() {
		pay.At = time.Now().UTC()
	}

	prefix := codePrefix("PG", pay.At)
	code := fmt.Sprintf("%s%03d", prefix, nextCodeSeq(s.paymentCodes, prefix))

	payment := domain.Payment{
		ID:          s.next("payment"),
		PaymentCode: code,
		AccountID:   accountID,
		Amount:      pay.Amount,
		Method:      pay.Method,
		Reference:   pay.Reference,
		ReceivedBy:  pay.ReceivedBy,
		PaidAt:      pay.At,
	}
	s.paymentCodes[code] = payment.ID

	acc.Payments = append(acc.Payments, payment)
	acc.AmountPaid = acc.AmountPaid.Add(pay.Amount)
	acc.BalanceDue = acc.Total.Sub(acc.AmountPaid)
	if acc.BalanceDue.IsZero() {
		acc.Status = domain.AccountPaid
	}
	s.accountsByID[accountID] = acc

	copyPayment := payment
	copyAcc := cloneAccount(acc)
	return &copyPayment, &copyAcc, nil
}

func (s *Store) MarkOverdueAccounts(_ context.Context, asOf time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	marked := 0
	for id, acc := range s.accountsByID {
		if acc.Status != domain.AccountPending {
			continue
		}
		if acc.DueDate.Before(asOf) && acc.BalanceDue.IsPositive() {
			acc.Status = domain.AccountOverdue
			s.accountsByID[id] = acc
			marked++
		}
	}
	return marked, nil
}

// --- audit & users ---

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, len(s.auditLogs))
	for _, entry := range s.auditLogs {
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && entry.CreatedAt.After(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("%w: user %s", store.ErrDuplicate, user.Username)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// --- helpers ---

func cloneSale(sale domain.Sale) domain.Sale {
	copySale := sale
	copySale.Lines = make([]domain.SaleLine, len(sale.Lines))
	copy(copySale.Lines, sale.Lines)
	if sale.CustomerID != nil {
		id := *sale.CustomerID
		copySale.CustomerID = &id
	}
	return copySale
}

func cloneAccount(acc domain.ReceivableAccount) domain.ReceivableAccount {
	copyAcc := acc
	copyAcc.Payments = make([]domain.Payment, len(acc.Payments))
	copy(copyAcc.Payments, acc.Payments)
	if acc.CustomerID != nil {
		id := *acc.CustomerID
		copyAcc.CustomerID = &id
	}
	return copyAcc
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
