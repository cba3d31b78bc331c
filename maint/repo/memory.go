package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and demos. Thread-safe.
type MemStore struct {
	mu sync.Mutex

	Tickets      map[int64]Ticket
	Machines     map[int64]Machine
	Technicians  []Technician
	BOM          map[int64][]BOMItem // machineID -> items
	Stock        map[string]StockLevel
	WorkOrders   map[int64]WorkOrder
	WOParts      map[int64][]WorkOrderPart
	Vendors      []Vendor
	Requisitions map[int64]Requisition

	nextWorkOrderID   int64
	nextRequisitionID int64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		Tickets:      make(map[int64]Ticket),
		Machines:     make(map[int64]Machine),
		BOM:          make(map[int64][]BOMItem),
		Stock:        make(map[string]StockLevel),
		WorkOrders:   make(map[int64]WorkOrder),
		WOParts:      make(map[int64][]WorkOrderPart),
		Requisitions: make(map[int64]Requisition),
	}
}

func (m *MemStore) TicketsDueOn(_ context.Context, date string) ([]Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Ticket
	for _, t := range m.Tickets {
		if t.DueDate == date && t.Status != TicketCompleted && t.Status != TicketClosed {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := priorityRank(out[i].Priority), priorityRank(out[j].Priority)
		if pi != pj {
			return pi < pj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func priorityRank(p string) int {
	switch p {
	case "critical":
		return 1
	case "high":
		return 2
	case "medium":
		return 3
	default:
		return 4
	}
}

func (m *MemStore) TicketByNumber(_ context.Context, number string) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.Tickets {
		if t.Number == number {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

func (m *MemStore) TicketByID(_ context.Context, id int64) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.Tickets[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *MemStore) TicketCounts(_ context.Context) (TicketCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := TicketCounts{ByTypeStatus: map[string]map[string]int{}}
	for _, t := range m.Tickets {
		if t.Status == TicketClosed {
			continue
		}
		if counts.ByTypeStatus[t.Type] == nil {
			counts.ByTypeStatus[t.Type] = map[string]int{}
		}
		counts.ByTypeStatus[t.Type][t.Status]++
		counts.Total++
	}
	return counts, nil
}

func (m *MemStore) UpdateTicketStatus(_ context.Context, id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.Tickets[id]
	if !ok {
		return nil
	}
	t.Status = status
	m.Tickets[id] = t
	return nil
}

func (m *MemStore) MachineByID(_ context.Context, id int64) (*Machine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mc, ok := m.Machines[id]
	if !ok {
		return nil, nil
	}
	return &mc, nil
}

func (m *MemStore) BOMForMachine(_ context.Context, machineID int64) ([]BOMItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.BOM[machineID]
	out := make([]BOMItem, len(items))
	copy(out, items)
	for i := range out {
		if s, ok := m.Stock[out[i].PartCode]; ok {
			out[i].OnHand = s.OnHand
			out[i].BinLocation = s.BinLocation
		}
	}
	return out, nil
}

func (m *MemStore) AvailableTechnicians(_ context.Context) ([]Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Technician
	for _, t := range m.Technicians {
		if t.Available {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemStore) CreateWorkOrder(_ context.Context, wo WorkOrder) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextWorkOrderID++
	wo.ID = m.nextWorkOrderID
	if wo.Number == "" {
		wo.Number = fmt.Sprintf("WO-%04d", wo.ID)
	}
	if wo.Status == "" {
		wo.Status = WorkOrderAssigned
	}
	m.WorkOrders[wo.ID] = wo

	// Ticket follows the work order into assignment.
	if t, ok := m.Tickets[wo.TicketID]; ok {
		t.Status = TicketAssigned
		t.TechnicianID = wo.TechnicianID
		m.Tickets[wo.TicketID] = t
	}
	return wo.ID, nil
}

func (m *MemStore) AddWorkOrderParts(_ context.Context, workOrderID int64, parts []WorkOrderPart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WOParts[workOrderID] = append(m.WOParts[workOrderID], parts...)
	return nil
}

func (m *MemStore) UpdateWorkOrderStatus(_ context.Context, id int64, status, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	wo, ok := m.WorkOrders[id]
	if !ok {
		return nil
	}
	wo.Status = status
	if notes != "" {
		wo.Description = wo.Description + "\n" + notes
	}
	m.WorkOrders[id] = wo
	return nil
}

func (m *MemStore) StockByPartCode(_ context.Context, partCode string) (*StockLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.Stock[partCode]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemStore) SearchParts(_ context.Context, term string) ([]StockLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	term = strings.ToLower(term)
	var out []StockLevel
	for _, s := range m.Stock {
		if strings.Contains(strings.ToLower(s.PartCode), term) ||
			strings.Contains(strings.ToLower(s.PartName), term) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartCode < out[j].PartCode })
	return out, nil
}

func (m *MemStore) LowStockParts(_ context.Context) ([]StockLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []StockLevel
	for _, s := range m.Stock {
		if s.OnHand <= s.ReorderLevel {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OnHand < out[j].OnHand })
	return out, nil
}

func (m *MemStore) IssueStock(_ context.Context, partCode string, qty float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.Stock[partCode]
	if !ok || s.OnHand < qty {
		return false, nil
	}
	s.OnHand -= qty
	m.Stock[partCode] = s
	return true, nil
}

func (m *MemStore) VendorsByPriority(_ context.Context) ([]Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Vendor
	for _, v := range m.Vendors {
		if v.Active {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriorityRank < out[j].PriorityRank })
	return out, nil
}

func (m *MemStore) CreateRequisition(_ context.Context, r Requisition) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextRequisitionID++
	r.ID = m.nextRequisitionID
	if r.Number == "" {
		r.Number = fmt.Sprintf("PR-%04d", r.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.Requisitions[r.ID] = r
	return r.ID, nil
}

func (m *MemStore) UpdateRequisitionStatus(_ context.Context, id int64, status, vendorReply string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.Requisitions[id]
	if !ok {
		return nil
	}
	r.Status = status
	if vendorReply != "" {
		r.Reason = r.Reason + "; vendor: " + vendorReply
	}
	m.Requisitions[id] = r
	return nil
}
