package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"guardian/internal/autosave"
	"guardian/internal/config"
	"guardian/internal/encryption"
	gfs "guardian/internal/fs"
	"guardian/internal/guardian"
	"guardian/internal/store"
	"guardian/internal/vault"
	"guardian/internal/vcs"
)

// ActiveSessionFile records the active session id inside the storage
// directory so that it survives between CLI invocations.
const ActiveSessionFile = "active_session"

// VaultDirName is the default filesystem vault root inside the storage directory.
const VaultDirName = "vault"

// DefaultCheckpointName names checkpoints created without a name.
const DefaultCheckpointName = "Unnamed Checkpoint"

// GuardianApp is the application layer between the CLI and guardian.Manager.
// It builds every collaborator from config for one workspace, restores the
// active session from the previous invocation and saves it again after
// each call that can change it. The caller must call Close.
type GuardianApp struct {
	cfg        *config.Config
	workDir    string
	storageDir string
	key        string

	mgr       *guardian.Manager
	encryptor encryption.KeyedEncryptor
	snapshots bool

	op      *Operation
	logger  *slog.Logger
	logFile *os.File
}

// NewGuardianApp creates a fully wired GuardianApp for the workspace at workDir.
func NewGuardianApp(ctx context.Context, cfg *config.Config, workDir string, op *Operation) (*GuardianApp, error) {
	absWork, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}
	storageDir, err := StorageDir(cfg, absWork)
	if err != nil {
		return nil, err
	}

	logger, logFile, err := newLogger(cfg.LogDir, op.ID, slog.LevelWarn)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger = logger.With("workspace", absWork)

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	a := &GuardianApp{
		cfg:        cfg,
		workDir:    absWork,
		storageDir: storageDir,
		encryptor:  enc,
		snapshots:  cfg.Snapshot.Enabled,
		op:         op,
		logger:     logger,
		logFile:    logFile,
	}

	mgr, key, err := Workspaces.Acquire(storageDir, func(dir string) (*guardian.Manager, io.Closer, error) {
		return a.openManager(ctx, dir)
	})
	if err != nil {
		logFile.Close()
		return nil, err
	}
	a.mgr = mgr
	a.key = key
	// A Manager opened by another app seals with that app's encryptor;
	// Unlock must reach the same instance.
	if shared, ok := mgr.Encryptor().(encryption.KeyedEncryptor); ok {
		a.encryptor = shared
	}

	a.restoreActiveSession()
	logger.Info("operation started", "operation", op.Name, "params", op.Parameters)
	return a, nil
}

// WorkspaceOpID tags log lines written by a shared Manager, which outlives
// the operation that opened it.
const WorkspaceOpID = "workspace"

// openManager builds the Manager for a storage directory. The Manager logs
// through its own handle on the log file, returned as the closer, so it
// keeps working after the GuardianApp that opened it is closed.
func (a *GuardianApp) openManager(ctx context.Context, dir string) (*guardian.Manager, io.Closer, error) {
	logger, logFile, err := newLogger(a.cfg.LogDir, WorkspaceOpID, slog.LevelWarn)
	if err != nil {
		return nil, nil, fmt.Errorf("creating workspace logger: %w", err)
	}
	mgr, err := a.buildManager(ctx, dir, &slogAdapter{l: logger.With("workspace", a.workDir)})
	if err != nil {
		logFile.Close()
		return nil, nil, err
	}
	return mgr, logFile, nil
}

func (a *GuardianApp) buildManager(ctx context.Context, dir string, adapter guardian.Logger) (*guardian.Manager, error) {
	fsmgr := gfs.NewOSFilesystemManager(a.cfg.Snapshot.Ignore)

	st, err := store.NewStoreFromConfig(a.cfg.Store, dir)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	reader, err := vcs.NewReaderFromConfig(a.cfg.VCS)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating revision reader: %w", err)
	}

	closeSnaps := func() error { return nil }
	opts := []guardian.Option{
		guardian.WithLogger(adapter),
		guardian.WithRevisionReader(reader),
	}

	if a.cfg.Snapshot.Enabled {
		v, err := vault.NewVaultFromConfig(ctx, a.cfg.Snapshot.Vault, filepath.Join(dir, VaultDirName))
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("creating vault: %w", err)
		}
		var enc guardian.Encryptor
		if a.encryptor != nil {
			enc = a.encryptor
		}
		snaps, err := guardian.NewSnapshotter(v, fsmgr, enc, guardian.SnapshotOptions{
			MaxFileSize:      a.cfg.Snapshot.MaxFileSize,
			CompressionLevel: a.cfg.Snapshot.CompressionLevel,
		}, adapter)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("creating snapshotter: %w", err)
		}
		opts = append(opts, guardian.WithSnapshotter(snaps))
		closeSnaps = snaps.Close
	}

	mgr, err := guardian.NewManager(st, fsmgr, opts...)
	if err != nil {
		st.Close()
		closeSnaps()
		return nil, err
	}
	return mgr, nil
}

func (a *GuardianApp) activeSessionPath() string {
	return filepath.Join(a.storageDir, ActiveSessionFile)
}

// restoreActiveSession resumes the session recorded by a previous invocation.
// A stale pointer is removed.
func (a *GuardianApp) restoreActiveSession() {
	data, err := os.ReadFile(a.activeSessionPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			a.logger.Warn("reading active session failed", "error", err)
		}
		return
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return
	}
	if err := a.mgr.ResumeSession(id); err != nil {
		a.logger.Warn("discarding stale active session", "session", id, "error", err)
		os.Remove(a.activeSessionPath())
	}
}

// saveActiveSession writes the current active session id, or removes the
// pointer when no session is active.
func (a *GuardianApp) saveActiveSession() error {
	s, ok := a.mgr.ActiveSession()
	if !ok {
		if err := os.Remove(a.activeSessionPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("clearing active session: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(a.storageDir, 0755); err != nil {
		return fmt.Errorf("creating storage directory: %w", err)
	}
	if _, err := gfs.WriteFileAtomic(a.activeSessionPath(), bytes.NewReader([]byte(s.ID+"\n")), 0644); err != nil {
		return fmt.Errorf("recording active session: %w", err)
	}
	return nil
}

// WorkDir returns the absolute workspace path.
func (a *GuardianApp) WorkDir() string { return a.workDir }

// StorageDir returns the absolute storage directory.
func (a *GuardianApp) StorageDir() string { return a.storageDir }

// NeedsUnlock reports whether Rollback and Diff need a passphrase first.
func (a *GuardianApp) NeedsUnlock() bool {
	return a.snapshots && a.encryptor != nil
}

// Unlock unlocks the private key used to read encrypted snapshots.
func (a *GuardianApp) Unlock(passphrase string) error {
	if a.encryptor == nil {
		return nil
	}
	return a.op.Record(a.encryptor.Unlock(passphrase))
}

func (a *GuardianApp) StartSession(name string) (*guardian.Session, error) {
	s, err := a.mgr.StartSession(name)
	if err != nil {
		return nil, a.op.Record(err)
	}
	return s, a.op.Record(a.saveActiveSession())
}

func (a *GuardianApp) EndSession() error {
	err := a.mgr.EndSession()
	// The pointer is cleared even when persisting the end time failed.
	if serr := a.saveActiveSession(); err == nil {
		err = serr
	}
	return a.op.Record(err)
}

func (a *GuardianApp) ActiveSession() (*guardian.Session, bool) {
	return a.mgr.ActiveSession()
}

func (a *GuardianApp) ListSessions() []guardian.Session {
	return a.mgr.ListSessions()
}

// CreateCheckpoint checkpoints the workspace. An empty name becomes
// DefaultCheckpointName. It may start a session implicitly.
func (a *GuardianApp) CreateCheckpoint(ctx context.Context, name string) (*guardian.Checkpoint, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultCheckpointName
	}
	cp, err := a.mgr.CreateCheckpoint(ctx, name, a.workDir)
	if err != nil {
		return nil, a.op.Record(err)
	}
	return cp, a.op.Record(a.saveActiveSession())
}

func (a *GuardianApp) QuickSave(ctx context.Context) (*guardian.Checkpoint, error) {
	cp, err := a.mgr.QuickSave(ctx, a.workDir)
	if err != nil {
		return nil, a.op.Record(err)
	}
	return cp, a.op.Record(a.saveActiveSession())
}

func (a *GuardianApp) ListCheckpoints(sessionID string) []guardian.Checkpoint {
	return a.mgr.ListCheckpoints(sessionID)
}

func (a *GuardianApp) DeleteCheckpoint(id string) error {
	return a.op.Record(a.mgr.DeleteCheckpoint(id))
}

func (a *GuardianApp) Rollback(ctx context.Context, id string) ([]guardian.FileChange, error) {
	changes, err := a.mgr.Rollback(ctx, id, a.workDir)
	return changes, a.op.Record(err)
}

func (a *GuardianApp) Diff(ctx context.Context, id string) ([]guardian.FileChange, error) {
	changes, err := a.mgr.Diff(ctx, id, a.workDir)
	return changes, a.op.Record(err)
}

// Watch runs automatic checkpointing for the workspace until ctx is done.
// Each value received on external requests an immediate checkpoint.
func (a *GuardianApp) Watch(ctx context.Context, external <-chan struct{}) error {
	adapter := &slogAdapter{l: a.logger}
	storageDir := a.storageDir

	w, err := autosave.NewWatcher(a.workDir, autosave.WatcherOptions{
		Skip:   func(p string) bool { return p == storageDir || strings.HasPrefix(p, storageDir+string(filepath.Separator)) },
		Logger: adapter,
	}, nil)
	if err != nil {
		return a.op.Record(err)
	}
	defer w.Close()
	if err := w.Start(); err != nil {
		return a.op.Record(err)
	}

	runner := autosave.NewRunner(a.mgr, a.cfg.Guardian, a.workDir, w, adapter)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-external:
				if !ok {
					return
				}
				runner.NotifyExternalChange()
			}
		}
	}()

	err = runner.Run(ctx)
	if serr := a.saveActiveSession(); err == nil {
		err = serr
	}
	return a.op.Record(err)
}

// Close finishes the operation, releases the workspace and closes the log.
func (a *GuardianApp) Close() error {
	var firstErr error
	if err := Workspaces.Release(a.key); err != nil {
		firstErr = fmt.Errorf("closing workspace: %w", err)
	}

	a.logger.Info("operation finished",
		"operation", a.op.Name,
		"status", a.op.Status,
		"duration", time.Since(a.op.StartedAt).Truncate(time.Millisecond).String())

	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// SetupKeys generates the key pair named in cfg.Encryption.
func SetupKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if enc == nil {
		return fmt.Errorf("encryption is disabled in config; set encryption.type first")
	}
	if enc.IsConfigured() {
		return fmt.Errorf("keys already exist")
	}
	return enc.Setup(passphrase)
}
