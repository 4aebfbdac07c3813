package guardian

import "context"

// RevisionReader reads the current version-control revision of a directory.
// Any error means "no revision"; the manager never surfaces it to callers.
type RevisionReader interface {
	Revision(ctx context.Context, dir string) (string, error)
}
