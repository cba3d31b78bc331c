package repo

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Flat-file entity types used by the work-order approval pipeline, which
// runs over a directory of CSV files rather than the relational store.

// FlatWorkOrder is a work order row from work_orders.csv.
type FlatWorkOrder struct {
	ID          string
	Equipment   string
	JobType     string
	Description string
	PrimaryRole string
}

// SpareRequirement is one required part for a flat work order, joined from
// wo_spare_requirements.csv and spare_parts.csv.
type SpareRequirement struct {
	PartCode string
	PartName string
	Required float64
	Unit     string
	MinStock float64
}

// SpareAvailability is the inventory check result for one part.
type SpareAvailability struct {
	PartCode   string
	Available  float64
	Location   string
	Sufficient bool
}

// SpareIssue records the outcome of issuing one part to a work order.
type SpareIssue struct {
	IssueID     string
	WorkOrderID string
	PartCode    string
	Quantity    float64
	Issued      bool
}

// FlatRequisition is a purchase requisition appended to
// purchase_requisitions.csv for an unavailable part.
type FlatRequisition struct {
	ID          string
	PartCode    string
	Quantity    float64
	Reason      string
	WorkOrderID string
	Status      string
	CreatedDate string
}

// CSVStore reads and writes the approval pipeline's flat-file data
// directory. A single mutex serializes every operation so that the
// check-then-issue sequence on inventory.csv cannot interleave across
// goroutines; this is the flat-file stand-in for the relational store's
// conditional update.
type CSVStore struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

// NewCSVStore opens the flat-file store rooted at dir.
func NewCSVStore(dir string) *CSVStore {
	return &CSVStore{dir: dir, now: time.Now}
}

func (c *CSVStore) path(name string) string {
	return filepath.Join(c.dir, name)
}

// readRows reads a CSV file into header-keyed maps. A missing file is an
// empty dataset, not an error.
func readRows(path string) ([]map[string]string, []string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}

// appendRow appends one row, writing the header first if the file is new.
func appendRow(path string, header []string, row map[string]string) error {
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s for append: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("failed to write header to %s: %w", path, err)
		}
	}
	rec := make([]string, len(header))
	for i, col := range header {
		rec[i] = row[col]
	}
	if err := w.Write(rec); err != nil {
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	w.Flush()
	return w.Error()
}

// rewriteRows atomically replaces a CSV file's contents.
func rewriteRows(path string, header []string, rows []map[string]string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write header to %s: %w", tmp, err)
	}
	for _, row := range rows {
		rec := make([]string, len(header))
		for i, col := range header {
			rec[i] = row[col]
		}
		if err := w.Write(rec); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write row to %s: %w", tmp, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func parseQty(s string) float64 {
	q, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return q
}

// WorkOrderByID returns the work order with the given id, or nil.
func (c *CSVStore) WorkOrderByID(id string) (*FlatWorkOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, _, err := readRows(c.path("work_orders.csv"))
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row["work_order_id"] == id {
			return &FlatWorkOrder{
				ID:          row["work_order_id"],
				Equipment:   row["equipment_name"],
				JobType:     row["wo_type"],
				Description: row["description"],
				PrimaryRole: row["primary_role"],
			}, nil
		}
	}
	return nil, nil
}

// RequiredParts returns the spare parts a work order needs, enriched with
// part details from the catalog.
func (c *CSVStore) RequiredParts(workOrderID string) ([]SpareRequirement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reqs, _, err := readRows(c.path("wo_spare_requirements.csv"))
	if err != nil {
		return nil, err
	}
	catalog, _, err := readRows(c.path("spare_parts.csv"))
	if err != nil {
		return nil, err
	}

	lookup := make(map[string]map[string]string, len(catalog))
	for _, row := range catalog {
		if code := row["part_code"]; code != "" {
			lookup[code] = row
		}
	}

	var out []SpareRequirement
	for _, row := range reqs {
		if row["work_order_id"] != workOrderID {
			continue
		}
		code := row["part_code"]
		if code == "" {
			continue
		}
		part := lookup[code]
		name := part["part_name"]
		if name == "" {
			name = "Unknown part"
		}
		unit := part["unit"]
		if unit == "" {
			unit = "pc"
		}
		out = append(out, SpareRequirement{
			PartCode: code,
			PartName: name,
			Required: parseQty(row["required_quantity"]),
			Unit:     unit,
			MinStock: parseQty(part["min_stock"]),
		})
	}
	return out, nil
}

// CheckAvailability reports stock levels for the given requirements.
func (c *CSVStore) CheckAvailability(parts []SpareRequirement) (map[string]SpareAvailability, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkAvailabilityLocked(parts)
}

func (c *CSVStore) checkAvailabilityLocked(parts []SpareRequirement) (map[string]SpareAvailability, error) {
	rows, _, err := readRows(c.path("inventory.csv"))
	if err != nil {
		return nil, err
	}
	lookup := make(map[string]map[string]string, len(rows))
	for _, row := range rows {
		if code := row["part_code"]; code != "" {
			lookup[code] = row
		}
	}

	out := make(map[string]SpareAvailability, len(parts))
	for _, p := range parts {
		rec := lookup[p.PartCode]
		avail := parseQty(rec["quantity_available"])
		out[p.PartCode] = SpareAvailability{
			PartCode:   p.PartCode,
			Available:  avail,
			Location:   rec["store_location"],
			Sufficient: avail >= p.Required,
		}
	}
	return out, nil
}

// IssueSpares issues every sufficiently stocked part to the work order:
// inventory.csv is decremented and an issue transaction is appended to
// spare_issues.csv. Insufficient parts are reported with Issued false.
// The availability check and the decrement happen under one lock.
func (c *CSVStore) IssueSpares(workOrderID string, parts []SpareRequirement) ([]SpareIssue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	invPath := c.path("inventory.csv")
	rows, header, err := readRows(invPath)
	if err != nil {
		return nil, err
	}
	lookup := make(map[string]map[string]string, len(rows))
	for _, row := range rows {
		if code := row["part_code"]; code != "" {
			lookup[code] = row
		}
	}

	issueHeader := []string{"issue_id", "work_order_id", "part_code", "quantity_issued", "issued_date", "status"}
	now := c.now()

	var issues []SpareIssue
	changed := false
	for i, p := range parts {
		rec := lookup[p.PartCode]
		avail := parseQty(rec["quantity_available"])

		if rec == nil || avail < p.Required || p.Required <= 0 {
			issues = append(issues, SpareIssue{
				WorkOrderID: workOrderID,
				PartCode:    p.PartCode,
				Issued:      false,
			})
			continue
		}

		issueID := fmt.Sprintf("ISS-%s-%02d", now.Format("20060102150405"), i+1)
		rec["quantity_available"] = strconv.FormatFloat(avail-p.Required, 'f', -1, 64)
		rec["last_updated"] = now.Format("2006-01-02")
		changed = true

		if err := appendRow(c.path("spare_issues.csv"), issueHeader, map[string]string{
			"issue_id":        issueID,
			"work_order_id":   workOrderID,
			"part_code":       p.PartCode,
			"quantity_issued": strconv.FormatFloat(p.Required, 'f', -1, 64),
			"issued_date":     now.Format("2006-01-02"),
			"status":          "Issued",
		}); err != nil {
			return nil, err
		}

		issues = append(issues, SpareIssue{
			IssueID:     issueID,
			WorkOrderID: workOrderID,
			PartCode:    p.PartCode,
			Quantity:    p.Required,
			Issued:      true,
		})
	}

	if changed {
		if err := rewriteRows(invPath, header, rows); err != nil {
			return nil, err
		}
	}
	return issues, nil
}

// AppendRequisition appends one purchase requisition row.
func (c *CSVStore) AppendRequisition(r FlatRequisition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	header := []string{"pr_id", "part_code", "requested_qty", "reason", "linked_work_order", "status", "created_date"}
	return appendRow(c.path("purchase_requisitions.csv"), header, map[string]string{
		"pr_id":             r.ID,
		"part_code":         r.PartCode,
		"requested_qty":     strconv.FormatFloat(r.Quantity, 'f', -1, 64),
		"reason":            r.Reason,
		"linked_work_order": r.WorkOrderID,
		"status":            r.Status,
		"created_date":      r.CreatedDate,
	})
}
