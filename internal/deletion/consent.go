package deletion

import (
	"context"
	"time"

	"github.com/mattjoyce/hostbridge/internal/mediaindex"
)

// Ticket correlates an outstanding consent request with the index row it
// targets.
type Ticket struct {
	Token     string           `json:"token"`
	Path      string           `json:"path"`
	Entry     mediaindex.Entry `json:"entry"`
	IssuedAt  time.Time        `json:"issued_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Host is the consent surface the coordinator asks for user approval.
// Results come back later through Coordinator.OnConsentResult.
type Host interface {
	// HasForeground reports whether an approval surface can be shown now.
	HasForeground() bool
	// Present shows the approval surface for t.
	Present(ctx context.Context, t Ticket) error
}

// requestConsent parks req on a ticket, or fails it at once when no
// surface is available.
func (c *Coordinator) requestConsent(ctx context.Context, req *request, entry mediaindex.Entry) {
	idx := &IndexOutcome{Found: true, Entry: entry}

	if c.host == nil || !c.host.HasForeground() {
		c.logger.Info("no foreground surface for consent", "request_token", req.token, "path", req.path)
		c.finish(req, Reconcile(ReconcileInput{
			Path:          req.path,
			Tier:          req.tier,
			ExistedBefore: true,
			ExistsAfter:   true,
			Index:         idx,
			Consent:       ConsentNoHostContext,
		}))
		return
	}

	now := time.Now().UTC()
	ticket := Ticket{
		Token:     req.token,
		Path:      req.path,
		Entry:     entry,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.timeout),
	}
	reply := make(chan bool, 1)
	if !c.post(awaitMsg{ticket: ticket, reply: reply}) || !<-reply {
		return
	}

	if err := c.host.Present(ctx, ticket); err != nil {
		c.logger.Warn("consent surface failed", "request_token", req.token, "error", err)
		c.post(withdrawMsg{token: req.token, outcome: ConsentNoHostContext, cause: err})
		return
	}
	c.logger.Info("consent requested", "request_token", req.token, "path", req.path, "index_id", entry.ID)
}

// finishApproved deletes the approved row and clears any leftover bytes.
func (c *Coordinator) finishApproved(req *request, ticket Ticket) {
	defer c.wg.Done()

	ctx := c.runCtx
	entry := ticket.Entry
	deregistered, err := c.dereg.Approved(ctx, entry.ID)
	idx := &IndexOutcome{Found: true, Entry: entry, Deregistered: deregistered, Err: err}
	rem := c.remover.Remove(ctx, req.path)

	c.finish(req, Reconcile(ReconcileInput{
		Path:          req.path,
		Tier:          req.tier,
		ExistedBefore: rem.Existed,
		ExistsAfter:   !rem.Removed,
		Removal:       &rem,
		Index:         idx,
		Consent:       ConsentApproved,
	}))
}
