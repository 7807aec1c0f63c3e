package analyses

import (
	"context"
	"errors"
	"sync"
	"time"
)

type memoryEntry struct {
	mu     sync.Mutex
	record Analysis
}

// MemoryRepo stores analyses in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]*memoryEntry
	now  func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID: make(map[string]*memoryEntry),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create stores the analysis. Ids must be unique.
func (r *MemoryRepo) Create(ctx context.Context, analysis Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[analysis.ID]; exists {
		return errors.New("analysis already exists")
	}
	r.byID[analysis.ID] = &memoryEntry{record: analysis.clone()}
	return nil
}

// GetByID returns a copy of the analysis.
func (r *MemoryRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	entry, ok := r.entry(analysisID)
	if !ok {
		return Analysis{}, ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.record.clone(), nil
}

// Update applies mutate under the record's lock.
func (r *MemoryRepo) Update(ctx context.Context, analysisID string, mutate MutateFunc) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	entry, ok := r.entry(analysisID)
	if !ok {
		return Analysis{}, ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	working := entry.record.clone()
	if err := mutate(&working); err != nil {
		if errors.Is(err, ErrNoChange) {
			return entry.record.clone(), nil
		}
		return Analysis{}, err
	}
	working.ID = entry.record.ID
	working.UpdatedAt = r.now()
	entry.record = working
	return working.clone(), nil
}

func (r *MemoryRepo) entry(analysisID string) (*memoryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byID[analysisID]
	return entry, ok
}
