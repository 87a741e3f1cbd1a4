// Package deletion removes media files that may be tracked both on disk and
// in the system content index, choosing a strategy by capability tier and
// suspending on user consent where the host demands it.
package deletion

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/hostbridge/internal/metrics"
)

//go:generate mockgen -destination=mocks/mock_ports.go -package=mocks github.com/mattjoyce/hostbridge/internal/deletion Index,Host,Journal

// DefaultConsentTimeout bounds how long a ticket may stay outstanding.
const DefaultConsentTimeout = 2 * time.Minute

var (
	errNotRunning   = errors.New("coordinator is not running")
	errShuttingDown = errors.New("coordinator shutting down")
	errOutstanding  = errors.New("another deletion request is outstanding")
)

// Journal persists resolved requests.
type Journal interface {
	Record(ctx context.Context, r Result) error
}

// Config holds the coordinator's tunables.
type Config struct {
	Facts        PlatformFacts
	TierOverride string
	// DefaultTier applies when Facts are unknown. Empty or invalid means
	// UserConsentRequired.
	DefaultTier    string
	ConsentTimeout time.Duration
	// RequireAllFilesAccess refuses every request with permission_needed
	// while the host gates on a grant that is not held.
	RequireAllFilesAccess bool
}

// Coordinator serves one deletion request at a time. A run loop goroutine
// owns the request slot; callers and host callbacks talk to it by message.
type Coordinator struct {
	tier      Tier
	facts     PlatformFacts
	gated     bool
	dereg     *Deregistrar
	remover   *Remover
	host      Host
	journal   Journal
	observers []func(Result)
	timeout   time.Duration
	logger    *slog.Logger

	runCtx  context.Context
	msgs    chan message
	stopCh  chan struct{}
	doneCh  chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
	started atomic.Bool
	stopped sync.Once

	// draining is owned by the run loop.
	draining bool
}

// request is the single slot's occupant.
type request struct {
	token   string
	locator string
	path    string
	tier    Tier
	future  *Future
	started time.Time

	// Owned by the run loop.
	ticket     *Ticket
	timer      *time.Timer
	finalizing bool
}

// New builds a coordinator. The tier is derived here, once.
func New(cfg Config, index Index, host Host, remover *Remover, logger *slog.Logger) *Coordinator {
	timeout := cfg.ConsentTimeout
	if timeout <= 0 {
		timeout = DefaultConsentTimeout
	}
	fallback, err := ParseTier(cfg.DefaultTier)
	if err != nil {
		fallback = UserConsentRequired
	}
	tier := SelectTier(cfg.Facts, cfg.TierOverride, fallback)
	return &Coordinator{
		tier:    tier,
		facts:   cfg.Facts,
		gated:   cfg.RequireAllFilesAccess,
		dereg:   NewDeregistrar(index, logger),
		remover: remover,
		host:    host,
		timeout: timeout,
		logger:  logger,
		msgs:    make(chan message),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// SetJournal attaches a journal. Call before Start.
func (c *Coordinator) SetJournal(j Journal) { c.journal = j }

// OnResolved registers fn to run on the loop goroutine after every
// resolution. fn must not block. Call before Start.
func (c *Coordinator) OnResolved(fn func(Result)) {
	c.observers = append(c.observers, fn)
}

// Tier returns the capability tier selected at construction.
func (c *Coordinator) Tier() Tier { return c.tier }

// ConsentTimeout returns the ticket lifetime.
func (c *Coordinator) ConsentTimeout() time.Duration { return c.timeout }

// Start launches the run loop.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("coordinator already started")
	}
	c.logger.Info("Starting deletion coordinator", "tier", c.tier.String(), "consent_timeout", c.timeout.String())
	c.runCtx = ctx
	c.running.Store(true)
	go c.loop(ctx)
	return nil
}

// Stop ends the run loop, failing any outstanding request with canceled.
// An approved request that is already deleting finishes first and keeps
// its real outcome.
func (c *Coordinator) Stop() {
	if !c.started.Load() {
		return
	}
	c.stopped.Do(func() {
		c.logger.Info("Stopping deletion coordinator")
		close(c.stopCh)
	})
	<-c.doneCh
	c.wg.Wait()
}

// Delete starts a deletion. Tiers A and B finish before Delete returns;
// a consent flow returns an unresolved Future. A request arriving while
// another is outstanding is rejected with ErrBusy.
func (c *Coordinator) Delete(ctx context.Context, locator string) (*Future, error) {
	path := NormalizePath(locator)
	if !c.running.Load() {
		return nil, newError(KindCanceled, path, errNotRunning)
	}
	if err := c.checkAccess(path); err != nil {
		metrics.RecordRejected(string(KindPermissionNeeded))
		c.logger.Info("deletion rejected", "path", path, "error", err)
		return nil, err
	}

	token := uuid.NewString()
	req := &request{
		token:   token,
		locator: locator,
		path:    path,
		tier:    c.tier,
		future:  newFuture(token),
		started: time.Now().UTC(),
	}

	reply := make(chan error, 1)
	if !c.post(reserveMsg{req: req, reply: reply}) {
		return nil, newError(KindCanceled, path, errNotRunning)
	}
	if err := <-reply; err != nil {
		metrics.RecordRejected(string(KindOf(err)))
		c.logger.Info("deletion rejected", "path", path, "error", err)
		return nil, err
	}

	c.execute(ctx, req)
	return req.future, nil
}

// OnConsentResult delivers the host's verdict for token. It reports whether
// an outstanding ticket matched; unmatched and repeated deliveries are
// no-ops.
func (c *Coordinator) OnConsentResult(token string, approved bool) bool {
	reply := make(chan bool, 1)
	if !c.post(consentMsg{token: token, approved: approved, reply: reply}) {
		return false
	}
	return <-reply
}

// Cancel withdraws the outstanding ticket for token, failing its request
// with canceled.
func (c *Coordinator) Cancel(token string) bool {
	reply := make(chan bool, 1)
	if !c.post(withdrawMsg{token: token, outcome: ConsentCanceled, reply: reply}) {
		return false
	}
	return <-reply
}

// Pending returns the outstanding ticket, if any.
func (c *Coordinator) Pending() (Ticket, bool) {
	reply := make(chan *Ticket, 1)
	if !c.post(pendingMsg{reply: reply}) {
		return Ticket{}, false
	}
	t := <-reply
	if t == nil {
		return Ticket{}, false
	}
	return *t, true
}

// execute runs the tier strategy on the caller's goroutine.
func (c *Coordinator) execute(ctx context.Context, req *request) {
	c.logger.Debug("deletion started", "request_token", req.token, "path", req.path, "tier", req.tier.String())

	if !c.remover.Exists(req.path) {
		idx := c.dereg.Deregister(ctx, req.path)
		c.finish(req, Reconcile(ReconcileInput{
			Path:  req.path,
			Tier:  req.tier,
			Index: &idx,
		}))
		return
	}

	var idx IndexOutcome
	if req.tier == UserConsentRequired {
		entry, ok, err := c.dereg.Lookup(ctx, req.path)
		if ok {
			c.requestConsent(ctx, req, entry)
			return
		}
		idx = c.dereg.DeregisterFound(ctx, req.path, entry, ok, err)
	} else {
		idx = c.dereg.Deregister(ctx, req.path)
	}
	if idx.SecurityFault {
		c.logger.Info("index refused deregistration, falling back to direct removal",
			"request_token", req.token, "path", req.path)
	}
	rem := c.remover.Remove(ctx, req.path)
	c.finish(req, Reconcile(ReconcileInput{
		Path:          req.path,
		Tier:          req.tier,
		ExistedBefore: true,
		ExistsAfter:   !rem.Removed,
		Removal:       &rem,
		Index:         &idx,
	}))
}

// finish hands the verdict to the loop and waits until it is applied.
func (c *Coordinator) finish(req *request, v Verdict) {
	ack := make(chan struct{})
	if c.post(finishMsg{token: req.token, verdict: v, ack: ack}) {
		<-ack
	}
}

// post hands m to the loop, or reports false once the loop has exited.
func (c *Coordinator) post(m message) bool {
	select {
	case c.msgs <- m:
		return true
	case <-c.doneCh:
		return false
	}
}

func (c *Coordinator) loop(ctx context.Context) {
	defer close(c.doneCh)
	defer c.running.Store(false)

	var slot *request
	stopCh, ctxDone := c.stopCh, ctx.Done()
	for {
		// An approved request is already deleting; let it report its
		// real outcome before the loop exits.
		if c.draining && (slot == nil || !slot.finalizing) {
			c.shutdown(slot)
			return
		}
		select {
		case <-ctxDone:
			stopCh, ctxDone = nil, nil
			c.beginDrain()
		case <-stopCh:
			stopCh, ctxDone = nil, nil
			c.beginDrain()
		case m := <-c.msgs:
			slot = c.handle(slot, m)
		}
	}
}

func (c *Coordinator) beginDrain() {
	c.draining = true
	c.running.Store(false)
}

func (c *Coordinator) handle(slot *request, m message) *request {
	switch m := m.(type) {
	case reserveMsg:
		if c.draining {
			m.reply <- newError(KindCanceled, m.req.path, errShuttingDown)
			return slot
		}
		if slot != nil {
			m.reply <- newError(KindBusy, m.req.path, errOutstanding)
			return slot
		}
		m.reply <- nil
		return m.req

	case finishMsg:
		defer close(m.ack)
		if slot == nil || slot.token != m.token {
			return slot
		}
		c.complete(slot, m.verdict)
		return nil

	case awaitMsg:
		if slot == nil || slot.token != m.ticket.Token {
			m.reply <- false
			return slot
		}
		t := m.ticket
		slot.ticket = &t
		token := t.Token
		slot.timer = time.AfterFunc(c.timeout, func() {
			c.post(withdrawMsg{token: token, outcome: ConsentTimeout})
		})
		metrics.SetConsentPending(true)
		m.reply <- true
		return slot

	case consentMsg:
		if !awaiting(slot, m.token) {
			m.reply <- false
			c.logger.Debug("consent result ignored", "request_token", m.token, "approved", m.approved)
			return slot
		}
		slot.timer.Stop()
		m.reply <- true
		if !m.approved {
			c.complete(slot, Reconcile(ReconcileInput{
				Path:          slot.path,
				Tier:          slot.tier,
				ExistedBefore: true,
				ExistsAfter:   c.remover.Exists(slot.path),
				Index:         &IndexOutcome{Found: true, Entry: slot.ticket.Entry},
				Consent:       ConsentDenied,
			}))
			return nil
		}
		slot.finalizing = true
		metrics.SetConsentPending(false)
		c.wg.Add(1)
		go c.finishApproved(slot, *slot.ticket)
		return slot

	case withdrawMsg:
		if !awaiting(slot, m.token) {
			if m.reply != nil {
				m.reply <- false
			}
			return slot
		}
		slot.timer.Stop()
		if m.reply != nil {
			m.reply <- true
		}
		c.complete(slot, Reconcile(ReconcileInput{
			Path:          slot.path,
			Tier:          slot.tier,
			ExistedBefore: true,
			ExistsAfter:   true,
			Index:         &IndexOutcome{Found: true, Entry: slot.ticket.Entry},
			Consent:       m.outcome,
			Cause:         m.cause,
		}))
		return nil

	case pendingMsg:
		if slot != nil && slot.ticket != nil && !slot.finalizing {
			t := *slot.ticket
			m.reply <- &t
		} else {
			m.reply <- nil
		}
		return slot
	}
	return slot
}

// awaiting reports whether slot holds an open ticket for token.
func awaiting(slot *request, token string) bool {
	return slot != nil && slot.ticket != nil && !slot.finalizing && slot.token == token
}

func (c *Coordinator) shutdown(slot *request) {
	if slot == nil {
		return
	}
	if slot.timer != nil {
		slot.timer.Stop()
	}
	v := Verdict{Err: newError(KindCanceled, slot.path, errShuttingDown)}
	if slot.ticket != nil {
		v.Report.Consent = ConsentCanceled
	}
	c.complete(slot, v)
}

// complete fans the result out, then resolves req. The loop clears the
// slot right after, so this runs once per request.
func (c *Coordinator) complete(req *request, v Verdict) {
	if req.timer != nil {
		req.timer.Stop()
	}
	res := Result{
		Token:       req.token,
		Locator:     req.locator,
		Path:        req.path,
		Tier:        req.tier,
		Deleted:     v.Deleted,
		Partial:     v.Partial,
		Report:      v.Report,
		Err:         v.Err,
		StartedAt:   req.started,
		CompletedAt: time.Now().UTC(),
	}
	outcome := "ok"
	if res.Err != nil {
		outcome = string(res.Err.Kind)
	}
	metrics.RecordDeletion(req.tier.String(), outcome, res.Partial)
	if v.Report.Consent != ConsentNone {
		metrics.RecordConsent(string(v.Report.Consent))
	}
	if req.ticket != nil {
		metrics.SetConsentPending(false)
	}

	if res.Err != nil {
		c.logger.Info("deletion failed",
			"request_token", req.token,
			"path", req.path,
			"tier", req.tier.String(),
			"kind", string(res.Err.Kind),
			"error", res.Err,
		)
	} else {
		c.logger.Info("deletion completed",
			"request_token", req.token,
			"path", req.path,
			"tier", req.tier.String(),
			"partial", res.Partial,
		)
	}

	if c.journal != nil {
		if err := c.journal.Record(context.WithoutCancel(c.runCtx), res); err != nil {
			c.logger.Warn("journal write failed", "request_token", req.token, "error", err)
		}
	}
	for _, fn := range c.observers {
		fn(res)
	}
	req.future.resolve(res)
}
