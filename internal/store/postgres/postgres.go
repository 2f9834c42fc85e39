package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"calzado/backend/internal/domain"
	"calzado/backend/internal/store"
	"calzado/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- catalog ---

func (s *Store) CreateVariant(ctx context.Context, v domain.Variant) (*domain.Variant, error) {
	if v.InternalCode == "" || v.ShoeType == "" {
		return nil, store.ErrInvalidInput
	}

	v.Active = true
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO variants (internal_code, shoe_type, last_type, segment, description, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, v.InternalCode, v.ShoeType, v.LastType, v.Segment, v.Description, v.Active, v.CreatedAt).Scan(&v.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: variant code %s", store.ErrDuplicate, v.InternalCode)
		}
		return nil, err
	}

	created := v
	return &created, nil
}

func (s *Store) GetVariantByID(ctx context.Context, id int64) (*domain.Variant, error) {
	var v domain.Variant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, internal_code, shoe_type, last_type, segment, description, active, created_at
		FROM variants
		WHERE id = $1
	`, id).Scan(&v.ID, &v.InternalCode, &v.ShoeType, &v.LastType, &v.Segment, &v.Description, &v.Active, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (s *Store) GetVariantByCode(ctx context.Context, code string) (*domain.Variant, error) {
	var v domain.Variant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, internal_code, shoe_type, last_type, segment, description, active, created_at
		FROM variants
		WHERE internal_code = $1
	`, code).Scan(&v.ID, &v.InternalCode, &v.ShoeType, &v.LastType, &v.Segment, &v.Description, &v.Active, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (s *Store) UpdateVariant(ctx context.Context, v domain.Variant) (*domain.Variant, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE variants
		SET shoe_type = $2, last_type = $3, segment = $4, description = $5, active = $6
		WHERE id = $1
	`, v.ID, v.ShoeType, v.LastType, v.Segment, v.Description, v.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetVariantByID(ctx, v.ID)
}

func (s *Store) ListVariants(ctx context.Context, includeInactive bool) ([]domain.Variant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, internal_code, shoe_type, last_type, segment, description, active, created_at
		FROM variants
		WHERE active = true OR $1
		ORDER BY internal_code
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	variants := make([]domain.Variant, 0, 64)
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.InternalCode, &v.ShoeType, &v.LastType, &v.Segment, &v.Description, &v.Active, &v.CreatedAt); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return variants, nil
}

func (s *Store) CreateBatch(ctx context.Context, b domain.ProducedBatch) (*domain.ProducedBatch, error) {
	if b.TotalPairs < 1 {
		return nil, fmt.Errorf("%w: total pairs must be positive", store.ErrInvalidInput)
	}
	if b.PairsPerDozen < 1 {
		b.PairsPerDozen = 12
	}
	if b.UnitCost.IsNegative() || b.SuggestedPrice.IsNegative() {
		return nil, fmt.Errorf("%w: negative amounts", store.ErrInvalidInput)
	}

	variant, err := s.GetVariantByID(ctx, b.VariantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: variant %d", store.ErrNotFound, b.VariantID)
		}
		return nil, err
	}
	b.InternalCode = variant.InternalCode
	b.ReceivedPairs = 0
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO produced_batches (
			variant_id, leather, leather_color, sole, lining, size_range,
			pairs_per_dozen, unit_cost, suggested_price, production_date,
			total_pairs, received_pairs, notes, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,0,$12,$13)
		RETURNING id
	`, b.VariantID, b.Leather, b.LeatherColor, b.Sole, b.Lining, b.SizeRange,
		b.PairsPerDozen, b.UnitCost, b.SuggestedPrice, nowDateUTC(b.ProductionDate),
		b.TotalPairs, nullIfEmpty(b.Notes), b.CreatedAt).Scan(&b.ID)
	if err != nil {
		return nil, err
	}

	created := b
	return &created, nil
}

const batchColumns = `
	b.id, b.variant_id, v.internal_code, b.leather, b.leather_color, b.sole, b.lining,
	b.size_range, b.pairs_per_dozen, b.unit_cost, b.suggested_price, b.production_date,
	b.total_pairs, b.received_pairs, COALESCE(b.notes, ''), b.created_at
`

func scanBatch(row interface{ Scan(...any) error }) (*domain.ProducedBatch, error) {
	var b domain.ProducedBatch
	err := row.Scan(&b.ID, &b.VariantID, &b.InternalCode, &b.Leather, &b.LeatherColor, &b.Sole, &b.Lining,
		&b.SizeRange, &b.PairsPerDozen, &b.UnitCost, &b.SuggestedPrice, &b.ProductionDate,
		&b.TotalPairs, &b.ReceivedPairs, &b.Notes, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) GetBatchByID(ctx context.Context, id int64) (*domain.ProducedBatch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+batchColumns+`
		FROM produced_batches b
		JOIN variants v ON v.id = b.variant_id
		WHERE b.id = $1
	`, id)
	b, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *Store) ListBatches(ctx context.Context, variantID int64, limit int) ([]domain.ProducedBatch, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM produced_batches b
		JOIN variants v ON v.id = b.variant_id
		WHERE $1 = 0 OR b.variant_id = $1
		ORDER BY b.id DESC
		LIMIT $2
	`, variantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.ProducedBatch, 0, limit)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *Store) CreateLocation(ctx context.Context, l domain.Location) (*domain.Location, error) {
	if l.Name == "" {
		return nil, store.ErrInvalidInput
	}
	l.Active = true
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO locations (name, active)
		VALUES ($1, $2)
		RETURNING id
	`, l.Name, l.Active).Scan(&l.ID)
	if err != nil {
		return nil, err
	}
	created := l
	return &created, nil
}

func (s *Store) GetLocationByID(ctx context.Context, id int64) (*domain.Location, error) {
	var l domain.Location
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, active FROM locations WHERE id = $1
	`, id).Scan(&l.ID, &l.Name, &l.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (s *Store) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, active FROM locations ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := make([]domain.Location, 0, 16)
	for rows.Next() {
		var l domain.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Active); err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return locations, nil
}

// --- inventory ---

func (s *Store) GetInventoryByID(ctx context.Context, id int64) (*domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, batch_id, location_id, stock_class, pairs, updated_at
		FROM inventory
		WHERE id = $1
	`, id).Scan(&rec.ID, &rec.BatchID, &rec.LocationID, &rec.StockClass, &rec.Pairs, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListInventory(ctx context.Context, locationID, batchID int64) ([]domain.InventoryView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.batch_id, i.location_id, i.stock_class, i.pairs, i.updated_at,
		       v.internal_code, b.leather, b.leather_color, b.size_range, l.name
		FROM inventory i
		JOIN produced_batches b ON b.id = i.batch_id
		JOIN variants v ON v.id = b.variant_id
		JOIN locations l ON l.id = i.location_id
		WHERE ($1 = 0 OR i.location_id = $1)
		  AND ($2 = 0 OR i.batch_id = $2)
		ORDER BY v.internal_code, l.name, i.stock_class
	`, locationID, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	views := make([]domain.InventoryView, 0, 128)
	for rows.Next() {
		var view domain.InventoryView
		if err := rows.Scan(&view.ID, &view.BatchID, &view.LocationID, &view.StockClass, &view.Pairs, &view.UpdatedAt,
			&view.InternalCode, &view.Leather, &view.LeatherColor, &view.SizeRange, &view.LocationName); err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return views, nil
}

// upsertInventory adds pairs to the counter row for the given key,
// creating the row on first movement. Runs inside the caller's transaction.
func upsertInventory(ctx context.Context, tx *sql.Tx, batchID, locationID int64, stockClass string, pairs int, at time.Time) (*domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := tx.QueryRowContext(ctx, `
		INSERT INTO inventory (batch_id, location_id, stock_class, pairs, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (batch_id, location_id, stock_class)
		DO UPDATE SET pairs = inventory.pairs + EXCLUDED.pairs, updated_at = EXCLUDED.updated_at
		RETURNING id, batch_id, location_id, stock_class, pairs, updated_at
	`, batchID, locationID, stockClass, pairs, at).Scan(
		&rec.ID, &rec.BatchID, &rec.LocationID, &rec.StockClass, &rec.Pairs, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func insertMovement(ctx context.Context, tx *sql.Tx, batchID, locationID int64, kind string, pairs int, reference, actor string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, batch_id, location_id, kind, pairs, reference, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, xid.New("mov"), batchID, locationID, kind, pairs, nullIfEmpty(reference), nullIfEmpty(actor), at)
	return err
}

func (s *Store) CheckIn(ctx context.Context, req domain.CheckInRequest, actor string, at time.Time) (*domain.InventoryRecord, error) {
	if req.Pairs < 1 || (req.StockClass != domain.StockGeneral && req.StockClass != domain.StockOrder) {
		return nil, store.ErrInvalidInput
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var totalPairs, receivedPairs int
	err = tx.QueryRowContext(ctx, `
		SELECT total_pairs, received_pairs
		FROM produced_batches
		WHERE id = $1
		FOR UPDATE
	`, req.BatchID).Scan(&totalPairs, &receivedPairs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: batch %d", store.ErrNotFound, req.BatchID)
		}
		return nil, err
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT true FROM locations WHERE id = $1`, req.LocationID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: location %d", store.ErrNotFound, req.LocationID)
		}
		return nil, err
	}

	pending := totalPairs - receivedPairs
	if req.Pairs > pending {
		return nil, fmt.Errorf("%w: batch %d has %d pairs pending, requested %d",
			store.ErrInvalidInput, req.BatchID, pending, req.Pairs)
	}

	rec, err := upsertInventory(ctx, tx, req.BatchID, req.LocationID, req.StockClass, req.Pairs, at)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE produced_batches SET received_pairs = received_pairs + $1 WHERE id = $2
	`, req.Pairs, req.BatchID)
	if err != nil {
		return nil, err
	}

	if err := insertMovement(ctx, tx, req.BatchID, req.LocationID, domain.MovementCheckIn, req.Pairs, "", actor, at); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) Transfer(ctx context.Context, req domain.TransferRequest, actor string, at time.Time) error {
	if req.Pairs < 1 || (req.StockClass != domain.StockGeneral && req.StockClass != domain.StockOrder) {
		return store.ErrInvalidInput
	}
	if req.FromLocationID == req.ToLocationID {
		return fmt.Errorf("%w: source and destination are the same", store.ErrInvalidInput)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT true FROM locations WHERE id = $1`, req.ToLocationID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: location %d", store.ErrNotFound, req.ToLocationID)
		}
		return err
	}

	var srcID int64
	var srcPairs int
	err = tx.QueryRowContext(ctx, `
		SELECT id, pairs
		FROM inventory
		WHERE batch_id = $1 AND location_id = $2 AND stock_class = $3
		FOR UPDATE
	`, req.BatchID, req.FromLocationID, req.StockClass).Scan(&srcID, &srcPairs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: no stock of batch %d at location %d", store.ErrNotFound, req.BatchID, req.FromLocationID)
		}
		return err
	}
	if srcPairs < req.Pairs {
		return &store.InsufficientStockError{
			InventoryID: srcID,
			Requested:   req.Pairs,
			Available:   srcPairs,
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE inventory SET pairs = pairs - $1, updated_at = $2 WHERE id = $3
	`, req.Pairs, at, srcID)
	if err != nil {
		return err
	}

	if _, err := upsertInventory(ctx, tx, req.BatchID, req.ToLocationID, req.StockClass, req.Pairs, at); err != nil {
		return err
	}

	ref := xid.New("tr")
	if err := insertMovement(ctx, tx, req.BatchID, req.FromLocationID, domain.MovementTransferOut, req.Pairs, ref, actor, at); err != nil {
		return err
	}
	if err := insertMovement(ctx, tx, req.BatchID, req.ToLocationID, domain.MovementTransferIn, req.Pairs, ref, actor, at); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) CreditReturn(ctx context.Context, req domain.CreditReturnRequest, actor string, at time.Time) (*domain.InventoryRecord, error) {
	if req.Pairs < 1 {
		return nil, store.ErrInvalidInput
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT true FROM produced_batches WHERE id = $1`, req.BatchID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: batch %d", store.ErrNotFound, req.BatchID)
		}
		return nil, err
	}
	if err := tx.QueryRowContext(ctx, `SELECT true FROM locations WHERE id = $1`, req.LocationID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: location %d", store.ErrNotFound, req.LocationID)
		}
		return nil, err
	}

	rec, err := upsertInventory(ctx, tx, req.BatchID, req.LocationID, domain.StockGeneral, req.Pairs, at)
	if err != nil {
		return nil, err
	}
	if err := insertMovement(ctx, tx, req.BatchID, req.LocationID, domain.MovementCreditReturn, req.Pairs, req.Reason, actor, at); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) ListMovements(ctx context.Context, batchID int64, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, location_id, kind, pairs, COALESCE(reference, ''), COALESCE(actor, ''), created_at
		FROM stock_movements
		WHERE $1 = 0 OR batch_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, batchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.BatchID, &m.LocationID, &m.Kind, &m.Pairs, &m.Reference, &m.Actor, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

// --- customers ---

const customerColumns = `
	id, name, COALESCE(trade_name, ''), document_type, document_number,
	COALESCE(phone, ''), COALESCE(email, ''), COALESCE(address, ''),
	credit_limit, credit_days, active, created_at
`

func scanCustomer(row interface{ Scan(...any) error }) (*domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Name, &c.TradeName, &c.DocumentType, &c.DocumentNumber,
		&c.Phone, &c.Email, &c.Address, &c.CreditLimit, &c.CreditDays, &c.Active, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, c domain.Customer) (*domain.Customer, error) {
	if c.Name == "" || c.DocumentNumber == "" {
		return nil, store.ErrInvalidInput
	}
	if c.CreditDays < 1 {
		c.CreditDays = 30
	}
	if c.CreditLimit.IsNegative() {
		return nil, fmt.Errorf("%w: negative credit limit", store.ErrInvalidInput)
	}

	c.Active = true
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (
			name, trade_name, document_type, document_number, phone, email, address,
			credit_limit, credit_days, active, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id
	`, c.Name, nullIfEmpty(c.TradeName), c.DocumentType, c.DocumentNumber,
		nullIfEmpty(c.Phone), nullIfEmpty(c.Email), nullIfEmpty(c.Address),
		c.CreditLimit, c.CreditDays, c.Active, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: document %s", store.ErrDuplicate, c.DocumentNumber)
		}
		return nil, err
	}

	created := c
	return &created, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id int64) (*domain.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE id = $1
	`, id)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, c domain.Customer) (*domain.Customer, error) {
	if c.CreditDays < 1 {
		c.CreditDays = 30
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, trade_name = $3, phone = $4, email = $5, address = $6,
		    credit_limit = $7, credit_days = $8, active = $9
		WHERE id = $1
	`, c.ID, c.Name, nullIfEmpty(c.TradeName), nullIfEmpty(c.Phone), nullIfEmpty(c.Email),
		nullIfEmpty(c.Address), c.CreditLimit, c.CreditDays, c.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetCustomerByID(ctx, c.ID)
}

func (s *Store) ListCustomers(ctx context.Context, includeInactive bool) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE active = true OR $1
		ORDER BY name
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

// --- sales ---

// nextDocumentCode computes MAX(numeric suffix)+1 over the codes sharing
// today's prefix, inside the caller's transaction so two concurrent sales
// cannot draw the same sequence number under serializable isolation.
func nextDocumentCode(ctx context.Context, tx *sql.Tx, table, column, family string, at time.Time) (string, error) {
	prefix := family + at.Format("20060102") + "-"
	var max int
	err := tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COALESCE(MAX(CAST(SUBSTRING(%s FROM $1) AS INTEGER)), 0)
		FROM %s
		WHERE %s LIKE $2
	`, column, table, column), len(prefix)+1, prefix+"%").Scan(&max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%03d", prefix, max+1), nil
}

func (s *Store) RegisterSale(ctx context.Context, ins store.SaleInsert) (*domain.Sale, *domain.ReceivableAccount, error) {
	if len(ins.Lines) == 0 {
		return nil, nil, fmt.Errorf("%w: empty cart", store.ErrInvalidInput)
	}
	if ins.At.IsZero() {
		ins.At = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock and validate every referenced inventory row before writing
	// anything, so a failure on any line leaves the ledger untouched.
	type lineState struct {
		line         store.SaleLineInsert
		locationID   int64
		internalCode string
		leather      string
		leatherColor string
		sizeRange    string
		dozens       decimal.Decimal
	}
	plan := make([]lineState, 0, len(ins.Lines))
	for i, line := range ins.Lines {
		var (
			batchID, locationID int64
			stockClass          string
			pairs               int
		)
		err := tx.QueryRowContext(ctx, `
			SELECT batch_id, location_id, stock_class, pairs
			FROM inventory
			WHERE id = $1
			FOR UPDATE
		`, line.InventoryID).Scan(&batchID, &locationID, &stockClass, &pairs)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil, fmt.Errorf("%w: inventory %d", store.ErrNotFound, line.InventoryID)
			}
			return nil, nil, err
		}
		if stockClass != domain.StockGeneral {
			return nil, nil, fmt.Errorf("%w: inventory %d is not general stock", store.ErrInvalidInput, line.InventoryID)
		}
		if line.BatchID != 0 && batchID != line.BatchID {
			return nil, nil, fmt.Errorf("%w: inventory %d does not hold batch %d", store.ErrInvalidInput, line.InventoryID, line.BatchID)
		}
		if pairs < line.Pairs {
			return nil, nil, &store.InsufficientStockError{
				Line:        i + 1,
				InventoryID: line.InventoryID,
				Requested:   line.Pairs,
				Available:   pairs,
			}
		}

		state := lineState{line: line, locationID: locationID}
		state.line.BatchID = batchID
		var pairsPerDozen int
		err = tx.QueryRowContext(ctx, `
			SELECT v.internal_code, b.leather, b.leather_color, b.size_range, b.pairs_per_dozen
			FROM produced_batches b
			JOIN variants v ON v.id = b.variant_id
			WHERE b.id = $1
		`, batchID).Scan(&state.internalCode, &state.leather, &state.leatherColor, &state.sizeRange, &pairsPerDozen)
		if err != nil {
			return nil, nil, err
		}
		if pairsPerDozen < 1 {
			pairsPerDozen = 12
		}
		state.dozens = decimal.NewFromInt(int64(line.Pairs)).Div(decimal.NewFromInt(int64(pairsPerDozen))).Round(2)
		plan = append(plan, state)
	}

	code, err := nextDocumentCode(ctx, tx, "sales", "sale_code", ins.Kind, ins.At)
	if err != nil {
		return nil, nil, err
	}

	sale := domain.Sale{
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
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (
			sale_code, customer_id, customer_name, global_discount, total,
			payment_status, payment_method, notes, sold_by, sold_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id
	`, sale.SaleCode, nullInt64(sale.CustomerID), sale.CustomerName, sale.GlobalDiscount, sale.Total,
		sale.PaymentStatus, sale.PaymentMethod, nullIfEmpty(sale.Notes), nullIfEmpty(sale.SoldBy), sale.SoldAt).Scan(&sale.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, fmt.Errorf("%w: sale code %s", store.ErrDuplicate, sale.SaleCode)
		}
		return nil, nil, err
	}

	for _, state := range plan {
		_, err = tx.ExecContext(ctx, `
			UPDATE inventory SET pairs = pairs - $1, updated_at = $2 WHERE id = $3
		`, state.line.Pairs, ins.At, state.line.InventoryID)
		if err != nil {
			return nil, nil, err
		}
		if err := insertMovement(ctx, tx, state.line.BatchID, state.locationID, domain.MovementSale, state.line.Pairs, code, ins.SoldBy, ins.At); err != nil {
			return nil, nil, err
		}

		saleLine := domain.SaleLine{
			SaleID:       sale.ID,
			InventoryID:  state.line.InventoryID,
			BatchID:      state.line.BatchID,
			InternalCode: state.internalCode,
			Leather:      state.leather,
			LeatherColor: state.leatherColor,
			SizeRange:    state.sizeRange,
			Pairs:        state.line.Pairs,
			Dozens:       state.dozens,
			UnitPrice:    state.line.UnitPrice,
			LineDiscount: state.line.LineDiscount,
			Subtotal:     state.line.Subtotal,
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO sale_lines (
				sale_id, inventory_id, batch_id, internal_code, leather, leather_color,
				size_range, pairs, dozens, unit_price, line_discount, subtotal
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			RETURNING id
		`, saleLine.SaleID, saleLine.InventoryID, saleLine.BatchID, saleLine.InternalCode,
			saleLine.Leather, saleLine.LeatherColor, saleLine.SizeRange, saleLine.Pairs,
			saleLine.Dozens, saleLine.UnitPrice, saleLine.LineDiscount, saleLine.Subtotal).Scan(&saleLine.ID)
		if err != nil {
			return nil, nil, err
		}
		sale.Lines = append(sale.Lines, saleLine)
	}

	var account *domain.ReceivableAccount
	if ins.OpenAccount {
		account, err = openAccount(ctx, tx, sale, ins)
		if err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &sale, account, nil
}

// openAccount creates the receivable for a credit sale inside the sale
// transaction and records the initial payment, if any, as its first payment.
func openAccount(ctx context.Context, tx *sql.Tx, sale domain.Sale, ins store.SaleInsert) (*domain.ReceivableAccount, error) {
	code, err := nextDocumentCode(ctx, tx, "receivable_accounts", "account_code", "CXC", ins.At)
	if err != nil {
		return nil, err
	}

	creditDays := ins.CreditDays
	if creditDays < 1 {
		creditDays = 30
	}

	acc := domain.ReceivableAccount{
		AccountCode:   code,
		SaleID:        sale.ID,
		SaleCode:      sale.SaleCode,
		CustomerID:    sale.CustomerID,
		CustomerName:  sale.CustomerName,
		Total:         sale.Total,
		AmountPaid:    decimal.Zero,
		BalanceDue:    sale.Total,
		IssueDate:     nowDateUTC(ins.At),
		DueDate:       nowDateUTC(ins.At).AddDate(0, 0, creditDays),
		Status:        domain.AccountPending,
		NeedsFollowUp: ins.NeedsFollowUp,
	}
	if ins.InitialPayment.IsPositive() {
		acc.AmountPaid = ins.InitialPayment
		acc.BalanceDue = acc.Total.Sub(ins.InitialPayment)
		if acc.BalanceDue.IsZero() {
			acc.Status = domain.AccountPaid
		}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO receivable_accounts (
			account_code, sale_id, customer_id, customer_name, total, amount_paid,
			balance_due, issue_date, due_date, status, needs_follow_up
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id
	`, acc.AccountCode, acc.SaleID, nullInt64(acc.CustomerID), acc.CustomerName, acc.Total,
		acc.AmountPaid, acc.BalanceDue, acc.IssueDate, acc.DueDate, acc.Status, acc.NeedsFollowUp).Scan(&acc.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: account code %s", store.ErrDuplicate, acc.AccountCode)
		}
		return nil, err
	}

	if ins.InitialPayment.IsPositive() {
		payCode, err := nextDocumentCode(ctx, tx, "payments", "payment_code", "PG", ins.At)
		if err != nil {
			return nil, err
		}
		payment := domain.Payment{
			PaymentCode: payCode,
			AccountID:   acc.ID,
			Amount:      ins.InitialPayment,
			Method:      ins.PaymentMethod,
			ReceivedBy:  ins.SoldBy,
			PaidAt:      ins.At,
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO payments (payment_code, account_id, amount, method, reference, received_by, paid_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING id
		`, payment.PaymentCode, payment.AccountID, payment.Amount, payment.Method,
			nullIfEmpty(payment.Reference), nullIfEmpty(payment.ReceivedBy), payment.PaidAt).Scan(&payment.ID)
		if err != nil {
			return nil, err
		}
		acc.Payments = append(acc.Payments, payment)
	}

	return &acc, nil
}

const saleColumns = `
	id, sale_code, customer_id, customer_name, global_discount, total,
	payment_status, payment_method, COALESCE(notes, ''), COALESCE(sold_by, ''), sold_at
`

func scanSale(row interface{ Scan(...any) error }) (*domain.Sale, error) {
	var sale domain.Sale
	var customerID sql.NullInt64
	err := row.Scan(&sale.ID, &sale.SaleCode, &customerID, &sale.CustomerName,
		&sale.GlobalDiscount, &sale.Total, &sale.PaymentStatus, &sale.PaymentMethod,
		&sale.Notes, &sale.SoldBy, &sale.SoldAt)
	if err != nil {
		return nil, err
	}
	if customerID.Valid {
		sale.CustomerID = &customerID.Int64
	}
	sale.SoldAt = sale.SoldAt.UTC()
	return &sale, nil
}

func (s *Store) GetSaleByCode(ctx context.Context, code string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE sale_code = $1
	`, code)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, inventory_id, batch_id, internal_code, leather, leather_color,
		       size_range, pairs, dozens, unit_price, line_discount, subtotal
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY id
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ID, &line.SaleID, &line.InventoryID, &line.BatchID,
			&line.InternalCode, &line.Leather, &line.LeatherColor, &line.SizeRange,
			&line.Pairs, &line.Dozens, &line.UnitPrice, &line.LineDiscount, &line.Subtotal); err != nil {
			return nil, err
		}
		sale.Lines = append(sale.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, from, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE ($1::timestamptz IS NULL OR sold_at >= $1)
		  AND ($2::timestamptz IS NULL OR sold_at < $2)
		ORDER BY sale_code DESC
		LIMIT $3
	`, nullTimeValue(from), nullTimeValue(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetDailySummary(ctx context.Context, day time.Time) (domain.DailySummary, error) {
	dayStart := nowDateUTC(day)
	dayEnd := dayStart.AddDate(0, 0, 1)

	summary := domain.DailySummary{
		Date:      dayStart.Format("2006-01-02"),
		Gross:     decimal.Zero,
		Discounts: decimal.Zero,
		Net:       decimal.Zero,
	}

	var globalDiscounts decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total), 0), COALESCE(SUM(global_discount), 0)
		FROM sales
		WHERE sold_at >= $1 AND sold_at < $2
	`, dayStart, dayEnd).Scan(&summary.Sales, &summary.Net, &globalDiscounts)
	if err != nil {
		return domain.DailySummary{}, err
	}

	var lineDiscounts decimal.Decimal
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(l.pairs * l.unit_price), 0), COALESCE(SUM(l.line_discount), 0)
		FROM sale_lines l
		JOIN sales s ON s.id = l.sale_id
		WHERE s.sold_at >= $1 AND s.sold_at < $2
	`, dayStart, dayEnd).Scan(&summary.Gross, &lineDiscounts)
	if err != nil {
		return domain.DailySummary{}, err
	}
	summary.Discounts = globalDiscounts.Add(lineDiscounts)

	buckets := func(column string) ([]domain.DailySummaryBucket, error) {
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT %s, COUNT(*), COALESCE(SUM(total), 0)
			FROM sales
			WHERE sold_at >= $1 AND sold_at < $2
			GROUP BY %s
			ORDER BY %s
		`, column, column, column), dayStart, dayEnd)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		result := make([]domain.DailySummaryBucket, 0, 8)
		for rows.Next() {
			var b domain.DailySummaryBucket
			if err := rows.Scan(&b.Key, &b.Sales, &b.Total); err != nil {
				return nil, err
			}
			result = append(result, b)
		}
		return result, rows.Err()
	}

	if summary.ByMethod, err = buckets("payment_method"); err != nil {
		return domain.DailySummary{}, err
	}
	if summary.ByStatus, err = buckets("payment_status"); err != nil {
		return domain.DailySummary{}, err
	}
	return summary, nil
}

// --- receivables ---

const accountColumns = `
	a.id, a.account_code, a.sale_id, s.sale_code, a.customer_id, a.customer_name,
	a.total, a.amount_paid, a.balance_due, a.issue_date, a.due_date, a.status, a.needs_follow_up
`

func scanAccount(row interface{ Scan(...any) error }) (*domain.ReceivableAccount, error) {
	var acc domain.ReceivableAccount
	var customerID sql.NullInt64
	err := row.Scan(&acc.ID, &acc.AccountCode, &acc.SaleID, &acc.SaleCode, &customerID,
		&acc.CustomerName, &acc.Total, &acc.AmountPaid, &acc.BalanceDue,
		&acc.IssueDate, &acc.DueDate, &acc.Status, &acc.NeedsFollowUp)
	if err != nil {
		return nil, err
	}
	if customerID.Valid {
		acc.CustomerID = &customerID.Int64
	}
	return &acc, nil
}

func (s *Store) GetAccountByID(ctx context.Context, id int64) (*domain.ReceivableAccount, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM receivable_accounts a
		JOIN sales s ON s.id = a.sale_id
		WHERE a.id = $1
	`, id)
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payment_code, account_id, amount, method, COALESCE(reference, ''), COALESCE(received_by, ''), paid_at
		FROM payments
		WHERE account_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.PaymentCode, &p.AccountID, &p.Amount, &p.Method, &p.Reference, &p.ReceivedBy, &p.PaidAt); err != nil {
			return nil, err
		}
		p.PaidAt = p.PaidAt.UTC()
		acc.Payments = append(acc.Payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *Store) ListAccounts(ctx context.Context, status string, customerID int64, limit int) ([]domain.ReceivableAccount, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM receivable_accounts a
		JOIN sales s ON s.id = a.sale_id
		WHERE ($1 = '' OR a.status = $1)
		  AND ($2 = 0 OR a.customer_id = $2)
		ORDER BY a.account_code DESC
		LIMIT $3
	`, status, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.ReceivableAccount, 0, limit)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Store) RegisterPayment(ctx context.Context, accountID int64, pay store.PaymentInsert) (*domain.Payment, *domain.ReceivableAccount, error) {
	if !pay.Amount.IsPositive() {
		return nil, nil, fmt.Errorf("%w: payment amount must be positive", store.ErrInvalidInput)
	}
	if pay.At.IsZero() {
		pay.At = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		accountCode string
		total       decimal.Decimal
		amountPaid  decimal.Decimal
		balanceDue  decimal.Decimal
		status      string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT account_code, total, amount_paid, balance_due, status
		FROM receivable_accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID).Scan(&accountCode, &total, &amountPaid, &balanceDue, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}
	if status == domain.AccountPaid {
		return nil, nil, fmt.Errorf("%w: account %s is settled", store.ErrInvalidInput, accountCode)
	}
	if pay.Amount.GreaterThan(balanceDue) {
		return nil, nil, fmt.Errorf("%w: payment %s exceeds balance %s",
			store.ErrInvalidInput, pay.Amount.StringFixed(2), balanceDue.StringFixed(2))
	}

	code, err := nextDocumentCode(ctx, tx, "payments", "payment_code", "PG", pay.At)
	if err != nil {
		return nil, nil, err
	}

	payment := domain.Payment{
		PaymentCode: code,
		AccountID:   accountID,
		Amount:      pay.Amount,
		Method:      pay.Method,
		Reference:   pay.Reference,
		ReceivedBy:  pay.ReceivedBy,
		PaidAt:      pay.At,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO payments (payment_code, account_id, amount, method, reference, received_by, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, payment.PaymentCode, payment.AccountID, payment.Amount, payment.Method,
		nullIfEmpty(payment.Reference), nullIfEmpty(payment.ReceivedBy), payment.PaidAt).Scan(&payment.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, fmt.Errorf("%w: payment code %s", store.ErrDuplicate, code)
		}
		return nil, nil, err
	}

	newPaid := amountPaid.Add(pay.Amount)
	newBalance := total.Sub(newPaid)
	newStatus := status
	if newBalance.IsZero() {
		newStatus = domain.AccountPaid
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE receivable_accounts
		SET amount_paid = $2, balance_due = $3, status = $4
		WHERE id = $1
	`, accountID, newPaid, newBalance, newStatus)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	acc, err := s.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	return &payment, acc, nil
}

func (s *Store) MarkOverdueAccounts(ctx context.Context, asOf time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE receivable_accounts
		SET status = $1
		WHERE status = $2 AND due_date < $3 AND balance_due > 0
	`, domain.AccountOverdue, domain.AccountPending, nowDateUTC(asOf))
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// --- audit & users ---

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, nullTimeValue(from), nullTimeValue(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: user %s", store.ErrDuplicate, user.Username)
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- helpers ---

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullTimeValue(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
