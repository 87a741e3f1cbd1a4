package deletion

import (
	"context"
	"log/slog"
	"time"
)

// Removal step names recorded in RemovalOutcome.Steps.
const (
	StepChmod           = "chmod"
	StepUnlink          = "unlink"
	StepUnlinkCanonical = "unlink_canonical"
	StepExternal        = "external"
)

const externalPollInterval = 10 * time.Millisecond

// RemovalOutcome is the direct removal engine's report.
type RemovalOutcome struct {
	// Existed is the result of the initial existence check.
	Existed bool
	// Removed is the authoritative verdict from the final existence check.
	Removed bool
	// Steps lists the strategies attempted after the existence check.
	Steps []string
	// Err is the last step error, if any.
	Err error
}

// RemoverOptions tunes the last-resort external removal.
type RemoverOptions struct {
	External     bool
	ExternalWait time.Duration
}

// Remover is the direct removal engine.
type Remover struct {
	fs     FS
	runner CommandRunner
	opts   RemoverOptions
	logger *slog.Logger
}

func NewRemover(fsys FS, runner CommandRunner, opts RemoverOptions, logger *slog.Logger) *Remover {
	if opts.External && runner == nil {
		runner = ExecRunner{}
	}
	return &Remover{fs: fsys, runner: runner, opts: opts, logger: logger}
}

// Exists exposes the engine's existence check.
func (r *Remover) Exists(path string) bool {
	return r.fs.Exists(path)
}

// Remove runs the escalation sequence, stopping as soon as the path is gone.
func (r *Remover) Remove(ctx context.Context, path string) RemovalOutcome {
	out := RemovalOutcome{Existed: r.fs.Exists(path)}
	if !out.Existed {
		out.Removed = true
		return out
	}

	if !r.fs.Writable(path) {
		out.Steps = append(out.Steps, StepChmod)
		if err := r.fs.MakeWritable(path); err != nil {
			r.logger.Debug("make writable failed", "path", path, "error", err)
			out.Err = err
		}
	}

	out.Steps = append(out.Steps, StepUnlink)
	if err := r.fs.Remove(path); err != nil {
		r.logger.Debug("unlink failed", "path", path, "error", err)
		out.Err = err
	}

	if r.fs.Exists(path) {
		if canonical, err := r.fs.Canonical(path); err != nil {
			r.logger.Debug("canonical resolution failed", "path", path, "error", err)
			out.Err = err
		} else if canonical != path {
			out.Steps = append(out.Steps, StepUnlinkCanonical)
			if err := r.fs.Remove(canonical); err != nil {
				r.logger.Debug("canonical unlink failed", "path", canonical, "error", err)
				out.Err = err
			}
		}
	}

	if r.opts.External && r.runner != nil && r.fs.Exists(path) {
		out.Steps = append(out.Steps, StepExternal)
		if err := r.runner.Run(ctx, "rm", "-f", path); err != nil {
			r.logger.Debug("external remove failed", "path", path, "error", err)
			out.Err = err
		}
		r.waitGone(ctx, path)
	}

	out.Removed = !r.fs.Exists(path)
	if out.Removed {
		out.Err = nil
	}
	r.logger.Debug("direct removal finished", "path", path, "removed", out.Removed, "steps", out.Steps)
	return out
}

func (r *Remover) waitGone(ctx context.Context, path string) {
	if r.opts.ExternalWait <= 0 || !r.fs.Exists(path) {
		return
	}
	deadline := time.NewTimer(r.opts.ExternalWait)
	defer deadline.Stop()
	tick := time.NewTicker(externalPollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-tick.C:
			if !r.fs.Exists(path) {
				return
			}
		}
	}
}
