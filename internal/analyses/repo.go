package analyses

import "context"

// MutateFunc edits a record in place. Returning ErrNoChange skips the write;
// any other error aborts it.
type MutateFunc func(a *Analysis) error

// Repo defines persistence operations for analyses. Update calls for the same
// id are serialized; updates to different ids proceed independently.
type Repo interface {
	Create(ctx context.Context, analysis Analysis) error
	GetByID(ctx context.Context, analysisID string) (Analysis, error)
	Update(ctx context.Context, analysisID string, mutate MutateFunc) (Analysis, error)
}
