package extraction

import (
	"context"
	"sync"

	"menuscore-backend/internal/analyses/scoring"
)

// Fake is an in-process Client with scripted responses.
type Fake struct {
	mu sync.Mutex

	Healthy     bool
	StartErr    error
	PollErr     error
	FetchErr    error
	Status      TaskStatus
	Result      scoring.Establishment
	NextTaskID  string
	StartCalls  int
	PollCalls   int
	FetchCalls  int
	StartedWith []string
}

func (f *Fake) HealthCheck(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Healthy
}

func (f *Fake) StartTask(ctx context.Context, link string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StartCalls++
	f.StartedWith = append(f.StartedWith, link)
	if f.StartErr != nil {
		return "", f.StartErr
	}
	if f.NextTaskID == "" {
		return "task-1", nil
	}
	return f.NextTaskID, nil
}

func (f *Fake) PollTask(ctx context.Context, taskID string) (TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PollCalls++
	if f.PollErr != nil {
		return TaskStatus{}, f.PollErr
	}
	return f.Status, nil
}

func (f *Fake) FetchResult(ctx context.Context, taskID string) (scoring.Establishment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FetchCalls++
	if f.FetchErr != nil {
		return scoring.Establishment{}, f.FetchErr
	}
	return f.Result, nil
}

// SetStatus replaces the scripted poll response.
func (f *Fake) SetStatus(status TaskStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Status = status
}

// Calls returns the poll and fetch counters.
func (f *Fake) Calls() (poll, fetch int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PollCalls, f.FetchCalls
}
