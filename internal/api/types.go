package api

import (
	"time"

	"github.com/mattjoyce/hostbridge/internal/deletion"
	"github.com/mattjoyce/hostbridge/internal/journal"
	"github.com/mattjoyce/hostbridge/internal/mediaindex"
	"github.com/mattjoyce/hostbridge/internal/printer"
)

// DeleteRequest is the JSON body for POST /media/delete.
type DeleteRequest struct {
	Locator string `json:"locator"`
	// WaitMs bounds how long to wait for a consent outcome. Zero returns
	// as soon as the request is parked.
	WaitMs int64 `json:"wait_ms,omitempty"`
}

// DeleteResponse reports a deletion, resolved or still pending.
type DeleteResponse struct {
	Token       string           `json:"token"`
	Status      string           `json:"status"` // completed | pending
	Path        string           `json:"path,omitempty"`
	Tier        string           `json:"tier"`
	Deleted     bool             `json:"deleted"`
	Partial     bool             `json:"partial,omitempty"`
	ErrorKind   string           `json:"error_kind,omitempty"`
	Error       string           `json:"error,omitempty"`
	Report      *deletion.Report `json:"report,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// ConsentRequest is the JSON body for POST /consent/{token}.
type ConsentRequest struct {
	Approved bool `json:"approved"`
}

// PendingResponse is returned by GET /consent/pending.
type PendingResponse struct {
	Pending bool             `json:"pending"`
	Ticket  *deletion.Ticket `json:"ticket,omitempty"`
}

// IndexListResponse is returned by GET /index.
type IndexListResponse struct {
	Total   int                `json:"total"`
	Entries []mediaindex.Entry `json:"entries"`
}

// ScanRequest is the optional JSON body for POST /index/scan.
type ScanRequest struct {
	Root string `json:"root,omitempty"`
}

// ScanResponse is returned by POST /index/scan.
type ScanResponse struct {
	Results []*mediaindex.ScanResult `json:"results"`
}

// JournalResponse is returned by GET /journal.
type JournalResponse struct {
	Entries []journal.Entry `json:"entries"`
}

// ConnectRequest is the JSON body for POST /printer/connect.
type ConnectRequest struct {
	Address string `json:"address"`
}

// PrintRequest is the JSON body for POST /printer/print.
type PrintRequest struct {
	Text   string `json:"text"`
	Copies int    `json:"copies,omitempty"`
	Bold   bool   `json:"bold,omitempty"`
}

// RawRequest is the JSON body for POST /printer/raw. Data is base64.
type RawRequest struct {
	Data []byte `json:"data"`
}

// DevicesResponse is returned by GET /printer/devices.
type DevicesResponse struct {
	Devices []printer.Device `json:"devices"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status          string `json:"status"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	Tier            string `json:"tier"`
	ConsentPending  bool   `json:"consent_pending"`
	IndexEntries    int    `json:"index_entries"`
	Subscribers     int    `json:"subscribers"`
	ConsentSurfaces int    `json:"consent_surfaces"` // streams able to answer consent prompts
}

// AccessResponse is returned by GET and POST /storage/access.
type AccessResponse struct {
	deletion.AccessStatus
	Message string `json:"message,omitempty"`
}

// AccessRequestedPayload is published with storage.access_requested.
type AccessRequestedPayload struct {
	APILevel int    `json:"api_level"`
	Message  string `json:"message"`
}
