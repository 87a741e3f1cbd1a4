package deletion

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mattjoyce/hostbridge/internal/mediaindex"
	"github.com/mattjoyce/hostbridge/internal/metrics"
)

// Index is the slice of the system content index the coordinator uses.
type Index interface {
	FindByPath(ctx context.Context, path string) (mediaindex.Entry, bool, error)
	DeleteByID(ctx context.Context, id int64) (int64, error)
	DeleteByPath(ctx context.Context, path string) (int64, error)
	DeleteApproved(ctx context.Context, id int64) (int64, error)
}

// IndexOutcome reports what index deregistration achieved.
type IndexOutcome struct {
	Found bool
	Entry mediaindex.Entry
	// Deregistered is true when a row existed and a delete removed it.
	Deregistered bool
	// SecurityFault is set when the host refused a row the process does
	// not own.
	SecurityFault bool
	// Err is the last fault swallowed, kept for the report.
	Err error
}

// Deregistrar removes index rows for a path. Faults never escape it.
type Deregistrar struct {
	index  Index
	logger *slog.Logger
}

func NewDeregistrar(index Index, logger *slog.Logger) *Deregistrar {
	return &Deregistrar{index: index, logger: logger}
}

// Lookup returns the row for path. A fault reads as "no row".
func (d *Deregistrar) Lookup(ctx context.Context, path string) (mediaindex.Entry, bool, error) {
	e, ok, err := d.index.FindByPath(ctx, path)
	if err != nil {
		d.fault("find_by_path", path, err)
		return mediaindex.Entry{}, false, err
	}
	return e, ok, nil
}

// Deregister deletes the row matching path by id, then issues a catch-all
// delete by path.
func (d *Deregistrar) Deregister(ctx context.Context, path string) IndexOutcome {
	e, ok, err := d.Lookup(ctx, path)
	return d.DeregisterFound(ctx, path, e, ok, err)
}

// DeregisterFound is Deregister for a caller that already ran Lookup; it
// takes that lookup's result instead of repeating it.
func (d *Deregistrar) DeregisterFound(ctx context.Context, path string, e mediaindex.Entry, ok bool, err error) IndexOutcome {
	var out IndexOutcome
	if err != nil {
		out.Err = err
	}
	if ok {
		out.Found = true
		out.Entry = e
		n, err := d.index.DeleteByID(ctx, e.ID)
		switch {
		case err != nil:
			d.record(&out, "delete_by_id", path, err)
		case n > 0:
			out.Deregistered = true
		}
	}

	n, err := d.index.DeleteByPath(ctx, path)
	if err != nil {
		d.record(&out, "delete_by_path", path, err)
	}
	if n > 0 {
		out.Found = true
		out.Deregistered = true
	}

	d.logger.Debug("index deregistration finished",
		"path", path,
		"found", out.Found,
		"deregistered", out.Deregistered,
		"security_fault", out.SecurityFault,
	)
	return out
}

// Approved deletes a row after the user confirmed it.
func (d *Deregistrar) Approved(ctx context.Context, id int64) (bool, error) {
	n, err := d.index.DeleteApproved(ctx, id)
	if err != nil {
		d.fault("delete_approved", "", err)
		return false, err
	}
	return n > 0, nil
}

func (d *Deregistrar) record(out *IndexOutcome, op, path string, err error) {
	if errors.Is(err, mediaindex.ErrNotOwner) {
		out.SecurityFault = true
	}
	out.Err = err
	d.fault(op, path, err)
}

func (d *Deregistrar) fault(op, path string, err error) {
	metrics.RecordIndexFault(op)
	d.logger.Warn("content index fault",
		"op", op,
		"path", path,
		"kind", string(KindHostIndexError),
		"error", err,
	)
}
