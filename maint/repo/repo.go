// Package repo provides domain persistence for maintenance entities:
// tickets, machines, technicians, bills of materials, inventory, work
// orders, vendors and purchase requisitions.
//
// Domain "not found" is a value (nil pointer, empty slice), never an
// error; errors signal infrastructure failure only.
package repo

import (
	"context"
	"time"
)

// Ticket statuses.
const (
	TicketOpen         = "open"
	TicketAssigned     = "assigned"
	TicketInProgress   = "in_progress"
	TicketWaitingParts = "waiting_parts"
	TicketCompleted    = "completed"
	TicketClosed       = "closed"
)

// Work order statuses.
const (
	WorkOrderPending      = "pending"
	WorkOrderAssigned     = "assigned"
	WorkOrderInProgress   = "in_progress"
	WorkOrderWaitingParts = "waiting_parts"
	WorkOrderCompleted    = "completed"
	WorkOrderCancelled    = "cancelled"
)

// Ticket is a maintenance ticket, joined with its machine summary.
type Ticket struct {
	ID           int64
	Number       string
	Type         string // "CM" or "PM"
	Title        string
	Priority     string
	Status       string
	DueDate      string // YYYY-MM-DD
	MachineID    int64
	MachineCode  string
	MachineName  string
	Location     string
	TechnicianID int64
}

// Machine is a piece of equipment under maintenance.
type Machine struct {
	ID          int64
	Code        string
	Name        string
	Location    string
	Criticality string
}

// Technician is a member of the maintenance crew.
type Technician struct {
	ID             int64
	Name           string
	Specialization string
	Available      bool
}

// BOMItem is one line of a machine's bill of materials, enriched with the
// current stock level.
type BOMItem struct {
	PartCode    string
	PartName    string
	Quantity    float64
	OnHand      float64
	BinLocation string
	Critical    bool
}

// StockLevel is the inventory record for one part.
type StockLevel struct {
	PartCode     string
	PartName     string
	OnHand       float64
	ReorderLevel float64
	BinLocation  string
}

// WorkOrder is a unit of scheduled maintenance work.
type WorkOrder struct {
	ID            int64
	Number        string
	TicketID      int64
	TechnicianID  int64
	Description   string
	Procedures    string
	Status        string
	ScheduledDate string
}

// WorkOrderPart links a required part to a work order.
type WorkOrderPart struct {
	PartCode string
	Quantity float64
	InBOM    bool
}

// Vendor is a parts supplier. PriorityRank 1 is the primary vendor.
type Vendor struct {
	ID           int64
	Name         string
	Email        string
	PriorityRank int
	Active       bool
}

// Requisition is a persisted purchase requisition row.
type Requisition struct {
	ID          int64
	Number      string
	WorkOrderID int64
	PartCode    string
	Quantity    float64
	VendorID    int64
	Status      string
	Reason      string
	CreatedAt   time.Time
}

// TicketCounts aggregates open tickets by type and status.
type TicketCounts struct {
	ByTypeStatus map[string]map[string]int
	Total        int
}

// Store is the keyed read/write surface the conversation graph needs.
// Implementations: MemStore (tests), SQLiteStore (production single-node).
type Store interface {
	// Tickets.
	TicketsDueOn(ctx context.Context, date string) ([]Ticket, error)
	TicketByNumber(ctx context.Context, number string) (*Ticket, error)
	TicketByID(ctx context.Context, id int64) (*Ticket, error)
	TicketCounts(ctx context.Context) (TicketCounts, error)
	UpdateTicketStatus(ctx context.Context, id int64, status string) error

	// Machines and BOM.
	MachineByID(ctx context.Context, id int64) (*Machine, error)
	BOMForMachine(ctx context.Context, machineID int64) ([]BOMItem, error)

	// Technicians.
	AvailableTechnicians(ctx context.Context) ([]Technician, error)

	// Work orders.
	CreateWorkOrder(ctx context.Context, wo WorkOrder) (int64, error)
	AddWorkOrderParts(ctx context.Context, workOrderID int64, parts []WorkOrderPart) error
	UpdateWorkOrderStatus(ctx context.Context, id int64, status, notes string) error

	// Inventory.
	StockByPartCode(ctx context.Context, partCode string) (*StockLevel, error)
	SearchParts(ctx context.Context, term string) ([]StockLevel, error)
	LowStockParts(ctx context.Context) ([]StockLevel, error)

	// IssueStock atomically decrements a part's on-hand quantity by qty
	// if and only if at least qty is on hand, reporting whether the issue
	// happened. Concurrent conversations issuing the same part must never
	// drive the quantity negative.
	IssueStock(ctx context.Context, partCode string, qty float64) (bool, error)

	// Vendors and requisitions.
	VendorsByPriority(ctx context.Context) ([]Vendor, error)
	CreateRequisition(ctx context.Context, r Requisition) (int64, error)
	UpdateRequisitionStatus(ctx context.Context, id int64, status, vendorReply string) error
}
