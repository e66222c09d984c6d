package journal

import "errors"

var (
	// ErrInvalidKind is returned for an entry or filter with an unknown kind.
	ErrInvalidKind = errors.New("journal: invalid kind")

	// ErrNilRepository is returned by NewRecorder without a repository.
	ErrNilRepository = errors.New("journal: repository is nil")
)
