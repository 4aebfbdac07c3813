package guardian

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Manager owns the checkpoint and session collections of one storage
// location. Every mutating call persists the full collection pair through
// the Store before returning; if persisting fails the in-memory state is
// left as it was before the call.
type Manager struct {
	mu sync.Mutex

	store     Store
	fsmgr     FilesystemManager
	reader    RevisionReader
	snapshots *Snapshotter
	logger    Logger
	clock     *monotonicMillis
	idgen     IDGenerator

	checkpoints     []Checkpoint
	sessions        []Session
	activeSessionID string
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithRevisionReader sets the reader used to record commit hashes.
// Without one, checkpoints never carry a commit hash.
func WithRevisionReader(p RevisionReader) Option {
	return func(m *Manager) { m.reader = p }
}

// WithSnapshotter enables content capture at checkpoint time, which
// Rollback and Diff require.
func WithSnapshotter(s *Snapshotter) Option {
	return func(m *Manager) { m.snapshots = s }
}

func WithLogger(l Logger) Option {
	return func(m *Manager) { m.logger = orNop(l) }
}

func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = &monotonicMillis{clock: c} }
}

func WithIDGenerator(g IDGenerator) Option {
	return func(m *Manager) { m.idgen = g }
}

// NewManager loads the persisted collections from store and returns a
// Manager with no active session.
func NewManager(store Store, fsmgr FilesystemManager, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if fsmgr == nil {
		return nil, errors.New("filesystem manager is required")
	}

	m := &Manager{
		store:  store,
		fsmgr:  fsmgr,
		logger: NewNopLogger(),
		clock:  &monotonicMillis{clock: RealClock{}},
		idgen:  UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(m)
	}

	checkpoints, sessions, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	m.checkpoints = checkpoints
	m.sessions = sessions

	for _, c := range m.checkpoints {
		m.clock.observe(c.Timestamp)
	}
	for _, s := range m.sessions {
		m.clock.observe(s.StartTime)
		if s.EndTime != nil {
			m.clock.observe(*s.EndTime)
		}
	}

	m.logger.Debug("manager loaded", "checkpoints", len(m.checkpoints), "sessions", len(m.sessions))
	return m, nil
}

// Close releases the store and the snapshotter, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.snapshots != nil {
		if err := m.snapshots.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing snapshotter: %w", err))
		}
	}
	if err := m.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Encryptor returns the encryptor snapshots are sealed with, or nil.
func (m *Manager) Encryptor() Encryptor {
	if m.snapshots == nil {
		return nil
	}
	return m.snapshots.encryptor
}

// StartSession creates a new session and makes it the active one.
// An empty name defaults to "Session N" where N is the new session count.
// Starting while another session is active replaces the active session
// without ending the previous one.
func (m *Manager) StartSession(name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeSessionID != "" {
		m.logger.Warn("replacing active session without ending it", "session", m.activeSessionID)
	}

	session := m.newSession(name)
	sessions := append(cloneSlice(m.sessions), session)
	if err := m.commit(m.checkpoints, sessions); err != nil {
		return nil, err
	}
	m.activeSessionID = session.ID

	m.logger.Info("session started", "session", session.ID, "name", session.Name)
	out := session.clone()
	return &out, nil
}

// EndSession closes the active session. The active session is cleared even
// if no matching record exists. Calling it with no active session is a no-op.
func (m *Manager) EndSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.activeSessionID
	if id == "" {
		return nil
	}

	idx := m.sessionIndex(id)
	if idx < 0 {
		m.activeSessionID = ""
		m.logger.Warn("active session has no record", "session", id)
		return nil
	}

	sessions := cloneSlice(m.sessions)
	end := m.clock.next()
	sessions[idx].EndTime = &end
	if err := m.commit(m.checkpoints, sessions); err != nil {
		// The pointer is cleared regardless of whether the end time was stored.
		m.activeSessionID = ""
		return err
	}
	m.activeSessionID = ""

	m.logger.Info("session ended", "session", id)
	return nil
}

// ResumeSession makes an existing, not yet ended session the active one.
// Hosts use it to restore the active session across process restarts.
func (m *Manager) ResumeSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.sessionIndex(id)
	if idx < 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if m.sessions[idx].Ended() {
		return fmt.Errorf("session %s has already ended", id)
	}
	m.activeSessionID = id
	return nil
}

// ActiveSession returns a copy of the active session, if any.
func (m *Manager) ActiveSession() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeSessionID == "" {
		return nil, false
	}
	idx := m.sessionIndex(m.activeSessionID)
	if idx < 0 {
		return nil, false
	}
	s := m.sessions[idx].clone()
	return &s, true
}

// CreateCheckpoint records a checkpoint of targetPath.
//
// If no session is active, one is started implicitly so that every
// checkpoint references an existing session. The file count and commit
// hash are best effort: an unreadable directory counts as zero files and
// any reader failure leaves CommitHash nil.
func (m *Manager) CreateCheckpoint(ctx context.Context, name string, targetPath string) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCheckpoint(ctx, name, targetPath)
}

// QuickSave creates a checkpoint named "Quick Save N", N being the
// checkpoint count after this one is added.
func (m *Manager) QuickSave(ctx context.Context, targetPath string) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := fmt.Sprintf("Quick Save %d", len(m.checkpoints)+1)
	return m.createCheckpoint(ctx, name, targetPath)
}

func (m *Manager) createCheckpoint(ctx context.Context, name string, targetPath string) (*Checkpoint, error) {
	sessions := m.sessions
	sessionID := m.activeSessionID
	var implicit *Session
	if sessionID == "" {
		s := m.newSession("")
		implicit = &s
		sessions = append(cloneSlice(m.sessions), s)
		sessionID = s.ID
	}

	checkpoint := Checkpoint{
		ID:         m.idgen.New(),
		Name:       name,
		SessionID:  sessionID,
		FileCount:  m.countFiles(targetPath),
		CommitHash: m.revision(ctx, targetPath),
	}
	checkpoint.Timestamp = m.clock.next()

	captured := false
	if m.snapshots != nil {
		if _, err := m.snapshots.Capture(checkpoint.ID, targetPath); err != nil {
			m.logger.Warn("content snapshot failed", "checkpoint", checkpoint.ID, "error", err)
		} else {
			captured = true
		}
	}

	checkpoints := append(cloneSlice(m.checkpoints), checkpoint)
	if err := m.commit(checkpoints, sessions); err != nil {
		if captured {
			m.discardSnapshot(checkpoint.ID)
		}
		return nil, err
	}
	if implicit != nil {
		m.activeSessionID = implicit.ID
		m.logger.Info("session started implicitly", "session", implicit.ID, "name", implicit.Name)
	}

	m.logger.Info("checkpoint created", "checkpoint", checkpoint.ID, "name", checkpoint.Name, "files", checkpoint.FileCount)
	out := checkpoint.clone()
	return &out, nil
}

// Rollback restores targetPath to the captured contents of a checkpoint and
// returns the changes applied, OldContent being the content before the
// rollback. Returns ErrNotFound for an unknown id and ErrNoSnapshot when no
// contents were captured for the checkpoint.
func (m *Manager) Rollback(ctx context.Context, checkpointID string, targetPath string) ([]FileChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	manifest, err := m.manifestFor(checkpointID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	changes, err := m.snapshots.Restore(manifest, targetPath)
	if err != nil {
		return changes, fmt.Errorf("rolling back to %s: %w", checkpointID, err)
	}

	m.logger.Info("rolled back", "checkpoint", checkpointID, "changes", len(changes))
	return changes, nil
}

// Diff reports how targetPath differs from a checkpoint without modifying
// anything. OldContent holds the checkpoint version.
func (m *Manager) Diff(ctx context.Context, checkpointID string, targetPath string) ([]FileChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	manifest, err := m.manifestFor(checkpointID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.snapshots.Diff(manifest, targetPath)
}

// DeleteCheckpoint removes a checkpoint. Returns ErrNotFound for an unknown
// id, leaving the collection unchanged.
func (m *Manager) DeleteCheckpoint(checkpointID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.checkpointIndex(checkpointID)
	if idx < 0 {
		return fmt.Errorf("checkpoint %s: %w", checkpointID, ErrNotFound)
	}

	checkpoints := make([]Checkpoint, 0, len(m.checkpoints)-1)
	checkpoints = append(checkpoints, m.checkpoints[:idx]...)
	checkpoints = append(checkpoints, m.checkpoints[idx+1:]...)
	if err := m.commit(checkpoints, m.sessions); err != nil {
		return err
	}
	m.discardSnapshot(checkpointID)

	m.logger.Info("checkpoint deleted", "checkpoint", checkpointID)
	return nil
}

// Prune deletes the oldest checkpoints of a session until at most max
// remain, returning how many were removed. max <= 0 disables pruning.
func (m *Manager) Prune(sessionID string, max int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if max <= 0 {
		return 0, nil
	}

	total := 0
	for _, c := range m.checkpoints {
		if c.SessionID == sessionID {
			total++
		}
	}
	excess := total - max
	if excess <= 0 {
		return 0, nil
	}

	var removed []string
	checkpoints := make([]Checkpoint, 0, len(m.checkpoints)-excess)
	for _, c := range m.checkpoints {
		if c.SessionID == sessionID && len(removed) < excess {
			removed = append(removed, c.ID)
			continue
		}
		checkpoints = append(checkpoints, c)
	}
	if err := m.commit(checkpoints, m.sessions); err != nil {
		return 0, err
	}
	for _, id := range removed {
		m.discardSnapshot(id)
	}

	m.logger.Info("checkpoints pruned", "session", sessionID, "removed", len(removed))
	return len(removed), nil
}

// ListCheckpoints returns checkpoints in creation order. A non-empty
// sessionID restricts the result to that session.
func (m *Manager) ListCheckpoints(sessionID string) []Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Checkpoint, 0, len(m.checkpoints))
	for _, c := range m.checkpoints {
		if sessionID != "" && c.SessionID != sessionID {
			continue
		}
		out = append(out, c.clone())
	}
	return out
}

// ListSessions returns all sessions in creation order.
func (m *Manager) ListSessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.clone())
	}
	return out
}

// commit persists the candidate collections and adopts them on success.
func (m *Manager) commit(checkpoints []Checkpoint, sessions []Session) error {
	if err := m.store.Save(checkpoints, sessions); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	m.checkpoints = checkpoints
	m.sessions = sessions
	return nil
}

func (m *Manager) newSession(name string) Session {
	if name == "" {
		name = fmt.Sprintf("Session %d", len(m.sessions)+1)
	}
	return Session{
		ID:        m.idgen.New(),
		Name:      name,
		StartTime: m.clock.next(),
	}
}

func (m *Manager) manifestFor(checkpointID string) (*SnapshotManifest, error) {
	if m.checkpointIndex(checkpointID) < 0 {
		return nil, fmt.Errorf("checkpoint %s: %w", checkpointID, ErrNotFound)
	}
	if m.snapshots == nil {
		return nil, fmt.Errorf("checkpoint %s: %w", checkpointID, ErrNoSnapshot)
	}
	return m.snapshots.Manifest(checkpointID)
}

func (m *Manager) discardSnapshot(checkpointID string) {
	if m.snapshots == nil {
		return
	}
	if err := m.snapshots.Discard(checkpointID); err != nil && !errors.Is(err, ErrNotFound) {
		m.logger.Warn("removing snapshot manifest failed", "checkpoint", checkpointID, "error", err)
	}
}

// countFiles returns the number of regular files directly inside dir, or
// zero if the directory cannot be read.
func (m *Manager) countFiles(dir string) int {
	files, err := m.fsmgr.ListFiles(dir)
	if err != nil {
		m.logger.Debug("counting files failed", "path", dir, "error", err)
		return 0
	}
	return len(files)
}

func (m *Manager) revision(ctx context.Context, dir string) *string {
	if m.reader == nil {
		return nil
	}
	rev, err := m.reader.Revision(ctx, dir)
	if err != nil || rev == "" {
		m.logger.Debug("no commit hash", "path", dir, "error", err)
		return nil
	}
	return &rev
}

func (m *Manager) checkpointIndex(id string) int {
	for i := range m.checkpoints {
		if m.checkpoints[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) sessionIndex(id string) int {
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// cloneSlice copies s so appends and edits never alias the committed state.
func cloneSlice[T any](s []T) []T {
	out := make([]T, len(s), len(s)+1)
	copy(out, s)
	return out
}
