package deletion

import (
	"context"
	"sync"
	"time"
)

// Result is the resolved outcome of one deletion request.
type Result struct {
	Token       string    `json:"token"`
	Locator     string    `json:"locator"`
	Path        string    `json:"path"`
	Tier        Tier      `json:"tier"`
	Deleted     bool      `json:"deleted"`
	Partial     bool      `json:"partial"`
	Report      Report    `json:"report"`
	Err         *Error    `json:"-"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Error returns the failure as an error interface, nil on success.
func (r Result) Error() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

// Future completes exactly once with the request's Result.
type Future struct {
	token  string
	done   chan struct{}
	once   sync.Once
	result Result
}

func newFuture(token string) *Future {
	return &Future{token: token, done: make(chan struct{})}
}

// Token is the request's correlation id.
func (f *Future) Token() string { return f.token }

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the request resolves or ctx ends. A ctx error does not
// cancel the request itself.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, f.result.Error()
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Result returns the outcome without blocking.
func (f *Future) Result() (Result, bool) {
	select {
	case <-f.done:
		return f.result, true
	default:
		return Result{}, false
	}
}

// resolve reports whether this call completed the future.
func (f *Future) resolve(r Result) bool {
	resolved := false
	f.once.Do(func() {
		f.result = r
		close(f.done)
		resolved = true
	})
	return resolved
}
