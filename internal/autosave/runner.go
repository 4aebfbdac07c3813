package autosave

import (
	"context"
	"fmt"
	"time"

	"guardian/internal/guardian"
)

// Checkpointer is the part of guardian.Manager the Runner drives.
type Checkpointer interface {
	QuickSave(ctx context.Context, targetPath string) (*guardian.Checkpoint, error)
	ActiveSession() (*guardian.Session, bool)
	Prune(sessionID string, max int) (int, error)
}

// ChangeSource reports whether the target changed since the last save.
// *Watcher implements it.
type ChangeSource interface {
	TakeDirty() bool
	MarkDirty()
}

var _ ChangeSource = (*Watcher)(nil)
var _ Checkpointer = (*guardian.Manager)(nil)

// Runner applies a GuardianConfig policy to a Manager.
type Runner struct {
	mgr     Checkpointer
	cfg     guardian.GuardianConfig
	target  string
	changes ChangeSource
	logger  guardian.Logger

	external chan struct{}
}

// NewRunner returns a Runner for target. changes may be nil, in which
// case every interval is treated as having changes.
func NewRunner(mgr Checkpointer, cfg guardian.GuardianConfig, target string, changes ChangeSource, logger guardian.Logger) *Runner {
	if logger == nil {
		logger = guardian.NewNopLogger()
	}
	return &Runner{
		mgr:      mgr,
		cfg:      cfg,
		target:   target,
		changes:  changes,
		logger:   logger,
		external: make(chan struct{}, 1),
	}
}

// Interval is the time between automatic saves, zero when disabled.
func (r *Runner) Interval() time.Duration {
	if !r.cfg.AutoSaveEnabled || r.cfg.AutoSaveIntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(r.cfg.AutoSaveIntervalMinutes) * time.Minute
}

// NotifyExternalChange asks Run for an immediate checkpoint, typically after
// an AI tool edited the target. Never blocks; repeated notifications before
// Run picks one up collapse into one.
func (r *Runner) NotifyExternalChange() {
	if !r.cfg.AutoCheckpointOnAIChanges {
		return
	}
	select {
	case r.external <- struct{}{}:
	default:
	}
}

// Tick performs one interval save. It does nothing when autosave is
// disabled, no session is active, or nothing changed since the last save.
// Returns the checkpoint created, if any.
func (r *Runner) Tick(ctx context.Context) (*guardian.Checkpoint, error) {
	if !r.cfg.AutoSaveEnabled {
		return nil, nil
	}
	if _, ok := r.mgr.ActiveSession(); !ok {
		r.logger.Debug("autosave skipped, no active session")
		return nil, nil
	}
	if r.changes != nil && !r.changes.TakeDirty() {
		r.logger.Debug("autosave skipped, no changes", "path", r.target)
		return nil, nil
	}
	return r.save(ctx, "interval")
}

// External performs the checkpoint requested by NotifyExternalChange.
// Unlike Tick it does not need an active session.
func (r *Runner) External(ctx context.Context) (*guardian.Checkpoint, error) {
	if r.changes != nil {
		r.changes.TakeDirty()
	}
	return r.save(ctx, "external change")
}

// Run saves on every interval and on every external notification until ctx
// is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if d := r.Interval(); d > 0 {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		tick = ticker.C
	}

	r.logger.Info("autosave running", "path", r.target, "interval", r.Interval().String(), "on_external", r.cfg.AutoCheckpointOnAIChanges)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			if _, err := r.Tick(ctx); err != nil {
				r.logger.Error("autosave failed", "path", r.target, "error", err)
			}
		case <-r.external:
			if _, err := r.External(ctx); err != nil {
				r.logger.Error("external change checkpoint failed", "path", r.target, "error", err)
			}
		}
	}
}

func (r *Runner) save(ctx context.Context, reason string) (*guardian.Checkpoint, error) {
	cp, err := r.mgr.QuickSave(ctx, r.target)
	if err != nil {
		if r.changes != nil {
			r.changes.MarkDirty()
		}
		return nil, fmt.Errorf("autosave (%s): %w", reason, err)
	}
	r.logger.Info("autosaved", "checkpoint", cp.ID, "name", cp.Name, "reason", reason)

	removed, err := r.mgr.Prune(cp.SessionID, r.cfg.MaxCheckpointsPerSession)
	if err != nil {
		return cp, fmt.Errorf("pruning session %s: %w", cp.SessionID, err)
	}
	if removed > 0 {
		r.logger.Debug("pruned old checkpoints", "session", cp.SessionID, "removed", removed)
	}
	return cp, nil
}
