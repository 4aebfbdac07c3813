package guardian

// Store persists the checkpoint and session collections.
// The Manager is the only caller; a Store holds no state of its own beyond
// what is needed to reach the underlying medium.
type Store interface {
	// Load returns both collections in insertion order.
	// Missing documents yield empty collections; undecodable ones yield a *ParseError.
	Load() ([]Checkpoint, []Session, error)

	// Save replaces the persisted collections with the given ones.
	Save(checkpoints []Checkpoint, sessions []Session) error

	// Close releases any resources held by the store.
	Close() error
}
