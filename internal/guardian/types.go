package guardian

// Checkpoint is a recorded snapshot of a target directory's metadata at a point in time.
// It does not store file contents itself; see SnapshotManifest for that.
type Checkpoint struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Timestamp  int64   `json:"timestamp"` // milliseconds since epoch
	CommitHash *string `json:"commit_hash"`
	SessionID  string  `json:"session_id"`
	FileCount  int     `json:"file_count"`
}

// Session is a bounded time window grouping zero or more checkpoints.
type Session struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StartTime int64  `json:"start_time"` // milliseconds since epoch
	EndTime   *int64 `json:"end_time"`
}

// Ended reports whether the session has been closed.
func (s *Session) Ended() bool {
	return s.EndTime != nil
}

// GuardianConfig is the automatic checkpointing policy.
// The Manager itself never schedules anything; autosave.Runner honors these values.
type GuardianConfig struct {
	AutoSaveEnabled           bool `json:"auto_save_enabled" toml:"auto_save_enabled"`
	AutoSaveIntervalMinutes   int  `json:"auto_save_interval_minutes" toml:"auto_save_interval_minutes"`
	MaxCheckpointsPerSession  int  `json:"max_checkpoints_per_session" toml:"max_checkpoints_per_session"`
	AutoCheckpointOnAIChanges bool `json:"auto_checkpoint_on_ai_changes" toml:"auto_checkpoint_on_ai_changes"`
}

// DefaultGuardianConfig returns the default policy.
func DefaultGuardianConfig() GuardianConfig {
	return GuardianConfig{
		AutoSaveEnabled:           true,
		AutoSaveIntervalMinutes:   5,
		MaxCheckpointsPerSession:  50,
		AutoCheckpointOnAIChanges: true,
	}
}

// ChangeType classifies a FileChange.
type ChangeType string

const (
	ChangeAdded    ChangeType = "Added"
	ChangeModified ChangeType = "Modified"
	ChangeDeleted  ChangeType = "Deleted"
)

// FileChange records a single file's before/after content.
// OldContent is nil for added files and NewContent is nil for deleted files.
type FileChange struct {
	Path       string     `json:"path"`
	OldContent *string    `json:"old_content"`
	NewContent *string    `json:"new_content"`
	ChangeType ChangeType `json:"change_type"`
}

func (c Checkpoint) clone() Checkpoint {
	if c.CommitHash != nil {
		h := *c.CommitHash
		c.CommitHash = &h
	}
	return c
}

func (s Session) clone() Session {
	if s.EndTime != nil {
		t := *s.EndTime
		s.EndTime = &t
	}
	return s
}
