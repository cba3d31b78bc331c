package maint

import (
	"time"

	"github.com/factorops/maintgraph/graph/model"
	"github.com/factorops/maintgraph/maint/mail"
	"github.com/factorops/maintgraph/maint/repo"
)

// Deps carries the external collaborators every node may need. Constructed
// once by the process entry point and injected into the graph; nodes hold
// no package-level state.
type Deps struct {
	Store  repo.Store
	Model  model.ChatModel
	Mailer mail.Mailer

	// ReportRecipient receives email reports. When empty the report is
	// generated but not sent.
	ReportRecipient string

	// VendorPollTimeout bounds the in-node wait for each vendor's quote
	// reply. Defaults to 5 minutes.
	VendorPollTimeout time.Duration

	// Now supplies the clock, for due-date queries and timestamps.
	// Defaults to time.Now.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) today() string {
	return d.now().Format("2006-01-02")
}

func (d Deps) vendorTimeout() time.Duration {
	if d.VendorPollTimeout > 0 {
		return d.VendorPollTimeout
	}
	return 5 * time.Minute
}
