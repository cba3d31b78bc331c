package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed Store.
//
// It owns the full domain schema and creates it on first use. Designed for
// single-node deployments; WAL mode keeps readers unblocked during writes.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the domain database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS machines (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			machine_code TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			criticality TEXT NOT NULL DEFAULT 'medium'
		)`,
		`CREATE TABLE IF NOT EXISTS maintenance_tickets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ticket_number TEXT NOT NULL UNIQUE,
			ticket_type TEXT NOT NULL,
			title TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT 'medium',
			status TEXT NOT NULL DEFAULT 'open',
			due_date TEXT NOT NULL,
			machine_id INTEGER NOT NULL REFERENCES machines(id),
			assigned_to_technician_id INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS technicians (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			specialization TEXT NOT NULL DEFAULT '',
			is_available INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS bom (
			machine_id INTEGER NOT NULL REFERENCES machines(id),
			part_code TEXT NOT NULL,
			part_name TEXT NOT NULL,
			quantity REAL NOT NULL,
			is_critical INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (machine_id, part_code)
		)`,
		`CREATE TABLE IF NOT EXISTS inventory (
			part_code TEXT NOT NULL PRIMARY KEY,
			part_name TEXT NOT NULL,
			quantity_on_hand REAL NOT NULL DEFAULT 0,
			reorder_level REAL NOT NULL DEFAULT 0,
			bin_location TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS work_orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			work_order_number TEXT NOT NULL UNIQUE,
			ticket_id INTEGER NOT NULL REFERENCES maintenance_tickets(id),
			technician_id INTEGER,
			description TEXT NOT NULL DEFAULT '',
			procedures TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'assigned',
			scheduled_date TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS work_order_parts (
			work_order_id INTEGER NOT NULL REFERENCES work_orders(id),
			part_code TEXT NOT NULL,
			quantity_required REAL NOT NULL,
			is_correct_for_machine INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (work_order_id, part_code)
		)`,
		`CREATE TABLE IF NOT EXISTS vendors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			priority_rank INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'active'
		)`,
		`CREATE TABLE IF NOT EXISTS purchase_requisitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			requisition_number TEXT NOT NULL UNIQUE,
			work_order_id INTEGER NOT NULL,
			part_code TEXT NOT NULL,
			quantity REAL NOT NULL,
			vendor_id INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'open',
			reason TEXT NOT NULL DEFAULT '',
			vendor_response TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_due ON maintenance_tickets(due_date, status)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const ticketColumns = `
	mt.id, mt.ticket_number, mt.ticket_type, mt.title, mt.priority, mt.status,
	mt.due_date, mt.machine_id, m.machine_code, m.name, m.location,
	COALESCE(mt.assigned_to_technician_id, 0)
`

func scanTicket(row interface{ Scan(...any) error }) (*Ticket, error) {
	var t Ticket
	err := row.Scan(&t.ID, &t.Number, &t.Type, &t.Title, &t.Priority, &t.Status,
		&t.DueDate, &t.MachineID, &t.MachineCode, &t.MachineName, &t.Location,
		&t.TechnicianID)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) TicketsDueOn(ctx context.Context, date string) ([]Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ticketColumns+`
		FROM maintenance_tickets mt
		JOIN machines m ON mt.machine_id = m.id
		WHERE mt.due_date = ? AND mt.status NOT IN ('completed', 'closed')
		ORDER BY
			CASE mt.priority
				WHEN 'critical' THEN 1
				WHEN 'high' THEN 2
				WHEN 'medium' THEN 3
				ELSE 4
			END, mt.id
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query due tickets: %w", err)
	}
	defer rows.Close()

	var out []Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) TicketByNumber(ctx context.Context, number string) (*Ticket, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ticketColumns+`
		FROM maintenance_tickets mt
		JOIN machines m ON mt.machine_id = m.id
		WHERE mt.ticket_number = ?
	`, number)
	t, err := scanTicket(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket %s: %w", number, err)
	}
	return t, nil
}

func (s *SQLiteStore) TicketByID(ctx context.Context, id int64) (*Ticket, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ticketColumns+`
		FROM maintenance_tickets mt
		JOIN machines m ON mt.machine_id = m.id
		WHERE mt.id = ?
	`, id)
	t, err := scanTicket(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket %d: %w", id, err)
	}
	return t, nil
}

func (s *SQLiteStore) TicketCounts(ctx context.Context) (TicketCounts, error) {
	counts := TicketCounts{ByTypeStatus: map[string]map[string]int{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ticket_type, status, COUNT(*)
		FROM maintenance_tickets
		WHERE status NOT IN ('closed')
		GROUP BY ticket_type, status
	`)
	if err != nil {
		return counts, fmt.Errorf("failed to count tickets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var typ, status string
		var n int
		if err := rows.Scan(&typ, &status, &n); err != nil {
			return counts, fmt.Errorf("failed to scan ticket counts: %w", err)
		}
		if counts.ByTypeStatus[typ] == nil {
			counts.ByTypeStatus[typ] = map[string]int{}
		}
		counts.ByTypeStatus[typ][status] = n
		counts.Total += n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) UpdateTicketStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE maintenance_tickets SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to update ticket %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) MachineByID(ctx context.Context, id int64) (*Machine, error) {
	var m Machine
	err := s.db.QueryRowContext(ctx, `
		SELECT id, machine_code, name, location, criticality FROM machines WHERE id = ?
	`, id).Scan(&m.ID, &m.Code, &m.Name, &m.Location, &m.Criticality)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load machine %d: %w", id, err)
	}
	return &m, nil
}

func (s *SQLiteStore) BOMForMachine(ctx context.Context, machineID int64) ([]BOMItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.part_code, b.part_name, b.quantity, b.is_critical,
			COALESCE(inv.quantity_on_hand, 0), COALESCE(inv.bin_location, '')
		FROM bom b
		LEFT JOIN inventory inv ON b.part_code = inv.part_code
		WHERE b.machine_id = ?
		ORDER BY b.is_critical DESC, b.part_code
	`, machineID)
	if err != nil {
		return nil, fmt.Errorf("failed to query BOM for machine %d: %w", machineID, err)
	}
	defer rows.Close()

	var out []BOMItem
	for rows.Next() {
		var item BOMItem
		if err := rows.Scan(&item.PartCode, &item.PartName, &item.Quantity,
			&item.Critical, &item.OnHand, &item.BinLocation); err != nil {
			return nil, fmt.Errorf("failed to scan BOM item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AvailableTechnicians(ctx context.Context) ([]Technician, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, specialization, is_available
		FROM technicians WHERE is_available = 1 ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query technicians: %w", err)
	}
	defer rows.Close()

	var out []Technician
	for rows.Next() {
		var t Technician
		if err := rows.Scan(&t.ID, &t.Name, &t.Specialization, &t.Available); err != nil {
			return nil, fmt.Errorf("failed to scan technician: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateWorkOrder(ctx context.Context, wo WorkOrder) (int64, error) {
	if wo.Number == "" {
		var n int64
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) + 1 FROM work_orders").Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to number work order: %w", err)
		}
		wo.Number = fmt.Sprintf("WO-%04d", n)
	}
	if wo.Status == "" {
		wo.Status = WorkOrderAssigned
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO work_orders
			(work_order_number, ticket_id, technician_id, description, procedures, status, scheduled_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, wo.Number, wo.TicketID, wo.TechnicianID, wo.Description, wo.Procedures, wo.Status, wo.ScheduledDate)
	if err != nil {
		return 0, fmt.Errorf("failed to create work order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read work order id: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE maintenance_tickets
		SET status = 'assigned', assigned_to_technician_id = ?
		WHERE id = ?
	`, wo.TechnicianID, wo.TicketID)
	if err != nil {
		return 0, fmt.Errorf("failed to assign ticket %d: %w", wo.TicketID, err)
	}

	return id, nil
}

func (s *SQLiteStore) AddWorkOrderParts(ctx context.Context, workOrderID int64, parts []WorkOrderPart) error {
	for _, p := range parts {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO work_order_parts (work_order_id, part_code, quantity_required, is_correct_for_machine)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(work_order_id, part_code) DO UPDATE SET
				quantity_required = excluded.quantity_required,
				is_correct_for_machine = excluded.is_correct_for_machine
		`, workOrderID, p.PartCode, p.Quantity, p.InBOM)
		if err != nil {
			return fmt.Errorf("failed to add part %s to work order %d: %w", p.PartCode, workOrderID, err)
		}
	}
	return nil
}

func (s *SQLiteStore) UpdateWorkOrderStatus(ctx context.Context, id int64, status, notes string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE work_orders
		SET status = ?,
			description = CASE WHEN ? = '' THEN description ELSE description || char(10) || ? END
		WHERE id = ?
	`, status, notes, notes, id)
	if err != nil {
		return fmt.Errorf("failed to update work order %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) StockByPartCode(ctx context.Context, partCode string) (*StockLevel, error) {
	var lvl StockLevel
	err := s.db.QueryRowContext(ctx, `
		SELECT part_code, part_name, quantity_on_hand, reorder_level, bin_location
		FROM inventory WHERE part_code = ?
	`, partCode).Scan(&lvl.PartCode, &lvl.PartName, &lvl.OnHand, &lvl.ReorderLevel, &lvl.BinLocation)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stock for %s: %w", partCode, err)
	}
	return &lvl, nil
}

func (s *SQLiteStore) SearchParts(ctx context.Context, term string) ([]StockLevel, error) {
	pattern := "%" + term + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT part_code, part_name, quantity_on_hand, reorder_level, bin_location
		FROM inventory
		WHERE part_code LIKE ? COLLATE NOCASE OR part_name LIKE ? COLLATE NOCASE
		ORDER BY part_code
	`, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search parts: %w", err)
	}
	defer rows.Close()
	return scanStockLevels(rows)
}

func (s *SQLiteStore) LowStockParts(ctx context.Context) ([]StockLevel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT part_code, part_name, quantity_on_hand, reorder_level, bin_location
		FROM inventory
		WHERE quantity_on_hand <= reorder_level
		ORDER BY quantity_on_hand ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query low stock: %w", err)
	}
	defer rows.Close()
	return scanStockLevels(rows)
}

func scanStockLevels(rows *sql.Rows) ([]StockLevel, error) {
	var out []StockLevel
	for rows.Next() {
		var lvl StockLevel
		if err := rows.Scan(&lvl.PartCode, &lvl.PartName, &lvl.OnHand,
			&lvl.ReorderLevel, &lvl.BinLocation); err != nil {
			return nil, fmt.Errorf("failed to scan stock level: %w", err)
		}
		out = append(out, lvl)
	}
	return out, rows.Err()
}

// IssueStock is a single conditional UPDATE so concurrent issues of the
// same part can never drive the quantity negative.
func (s *SQLiteStore) IssueStock(ctx context.Context, partCode string, qty float64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE inventory
		SET quantity_on_hand = quantity_on_hand - ?
		WHERE part_code = ? AND quantity_on_hand >= ?
	`, qty, partCode, qty)
	if err != nil {
		return false, fmt.Errorf("failed to issue stock for %s: %w", partCode, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to confirm stock issue: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) VendorsByPriority(ctx context.Context) ([]Vendor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, priority_rank
		FROM vendors WHERE status = 'active' ORDER BY priority_rank
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vendors: %w", err)
	}
	defer rows.Close()

	var out []Vendor
	for rows.Next() {
		v := Vendor{Active: true}
		if err := rows.Scan(&v.ID, &v.Name, &v.Email, &v.PriorityRank); err != nil {
			return nil, fmt.Errorf("failed to scan vendor: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateRequisition(ctx context.Context, r Requisition) (int64, error) {
	if r.Number == "" {
		var n int64
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) + 1 FROM purchase_requisitions").Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to number requisition: %w", err)
		}
		r.Number = fmt.Sprintf("PR-%04d", n)
	}
	if r.Status == "" {
		r.Status = "open"
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO purchase_requisitions
			(requisition_number, work_order_id, part_code, quantity, vendor_id, status, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Number, r.WorkOrderID, r.PartCode, r.Quantity, r.VendorID, r.Status, r.Reason, r.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to create requisition: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read requisition id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) UpdateRequisitionStatus(ctx context.Context, id int64, status, vendorReply string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE purchase_requisitions
		SET status = ?,
			vendor_response = CASE WHEN ? = '' THEN vendor_response ELSE ? END
		WHERE id = ?
	`, status, vendorReply, vendorReply, id)
	if err != nil {
		return fmt.Errorf("failed to update requisition %d: %w", id, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
