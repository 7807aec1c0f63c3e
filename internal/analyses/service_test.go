package analyses

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"menuscore-backend/internal/analyses/scoring"
	"menuscore-backend/internal/extraction"
)

const testLink = "https://www.ifood.com.br/delivery/sao-paulo-sp/burger-place/abc"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// completionCountingRepo counts writes that move a record into completed.
type completionCountingRepo struct {
	Repo
	completions atomic.Int32
}

func (r *completionCountingRepo) Update(ctx context.Context, id string, mutate MutateFunc) (Analysis, error) {
	return r.Repo.Update(ctx, id, func(a *Analysis) error {
		before := a.Status
		if err := mutate(a); err != nil {
			return err
		}
		if before != StatusCompleted && a.Status == StatusCompleted {
			r.completions.Add(1)
		}
		return nil
	})
}

func sampleEstablishment() scoring.Establishment {
	return scoring.Establishment{
		Name:                "Burger Place",
		ImageURL:            "https://cdn.example/cover.jpg",
		Rating:              4.2,
		DeliveryTimeMinutes: 35,
		DeliveryFee:         5,
		MenuCategories: []scoring.MenuCategory{{
			Name: "Burgers",
			Items: []scoring.MenuItem{
				{Name: "X-Burger", Description: "Tasty", Price: 20},
				{Name: "X-Salada", Description: "Tasty", Price: 22},
				{Name: "X-Bacon", Description: "Tasty", Price: 25},
			},
		}},
	}
}

func setupService(t *testing.T) (*Service, *MemoryRepo, *extraction.Fake, *testClock) {
	t.Helper()
	repo := NewMemoryRepo()
	clock := newTestClock()
	repo.now = clock.Now
	fake := &extraction.Fake{Healthy: true, NextTaskID: "task-1", Status: extraction.TaskStatus{Status: extraction.StatusPending}}
	svc := &Service{
		Repo:      repo,
		Extractor: fake,
		Now:       clock.Now,
	}
	return svc, repo, fake, clock
}

func submitted(t *testing.T, svc *Service) Analysis {
	t.Helper()
	a, err := svc.Submit(context.Background(), testLink)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return a
}

func intPtr(v int) *int { return &v }

func TestSubmitCreatesProcessingRecord(t *testing.T) {
	svc, repo, fake, _ := setupService(t)

	a := submitted(t, svc)

	if a.Status != StatusProcessing {
		t.Fatalf("expected status processing, got %q", a.Status)
	}
	if a.ExtractionTaskID != "task-1" {
		t.Fatalf("expected task id task-1, got %q", a.ExtractionTaskID)
	}
	stored, err := repo.GetByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.SourceLink != testLink {
		t.Fatalf("expected link %q, got %q", testLink, stored.SourceLink)
	}
	if len(fake.StartedWith) != 1 || fake.StartedWith[0] != testLink {
		t.Fatalf("expected task started with link, got %v", fake.StartedWith)
	}
}

func TestSubmitRejectsInvalidLink(t *testing.T) {
	svc, _, fake, _ := setupService(t)

	_, err := svc.Submit(context.Background(), "https://example.com/restaurant")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fake.StartCalls != 0 {
		t.Fatalf("expected no task started, got %d", fake.StartCalls)
	}
}

func TestSubmitUnhealthyExtractor(t *testing.T) {
	svc, repo, fake, _ := setupService(t)
	fake.Healthy = false

	_, err := svc.Submit(context.Background(), testLink)
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if fake.StartCalls != 0 {
		t.Fatalf("expected no task started, got %d", fake.StartCalls)
	}
	if len(repo.byID) != 0 {
		t.Fatalf("expected no record, got %d", len(repo.byID))
	}
}

func TestSubmitStartFailure(t *testing.T) {
	svc, repo, fake, _ := setupService(t)
	fake.StartErr = &extraction.APIError{StatusCode: 500, Body: "boom"}

	_, err := svc.Submit(context.Background(), testLink)
	if !errors.Is(err, ErrUpstreamError) {
		t.Fatalf("expected ErrUpstreamError, got %v", err)
	}
	var apiErr *extraction.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected wrapped APIError, got %v", err)
	}
	if len(repo.byID) != 0 {
		t.Fatalf("expected no record, got %d", len(repo.byID))
	}
}

func TestGetStatusUnknownID(t *testing.T) {
	svc, _, _, _ := setupService(t)
	if _, err := svc.GetStatus(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetStatusRecordsProgress(t *testing.T) {
	svc, _, fake, clock := setupService(t)
	a := submitted(t, svc)

	fake.SetStatus(extraction.TaskStatus{Status: extraction.StatusProcessing, Progress: intPtr(40)})
	clock.Advance(time.Second)
	st, err := svc.GetStatus(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.Status != StatusProcessing || st.Progress == nil || *st.Progress != 40 {
		t.Fatalf("expected processing at 40, got %+v", st)
	}
	if !st.UpdatedAt.After(a.UpdatedAt) {
		t.Fatalf("expected updatedAt to advance")
	}

	fake.SetStatus(extraction.TaskStatus{Status: "warming_up", Progress: intPtr(250)})
	st, err = svc.GetStatus(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.Status != StatusProcessing || *st.Progress != 100 {
		t.Fatalf("expected clamped progress 100 while processing, got %+v", st)
	}
}

func TestGetStatusCompletesOnce(t *testing.T) {
	svc, _, fake, _ := setupService(t)
	a := submitted(t, svc)
	fake.Result = sampleEstablishment()
	fake.SetStatus(extraction.TaskStatus{Status: extraction.StatusCompleted})

	st, err := svc.GetStatus(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", st.Status)
	}
	if st.Transition != "processing->completed" {
		t.Fatalf("expected transition, got %q", st.Transition)
	}

	polls, fetches := fake.Calls()
	if _, err := svc.GetStatus(context.Background(), a.ID); err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	polls2, fetches2 := fake.Calls()
	if polls2 != polls || fetches2 != fetches {
		t.Fatalf("expected terminal record not to contact extractor")
	}

	preview, err := svc.GetPreview(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetPreview: %v", err)
	}
	if preview.Results == nil || preview.Results.Restaurant.Name != "Burger Place" {
		t.Fatalf("expected scored results, got %+v", preview.Results)
	}
}

func TestGetStatusFailure(t *testing.T) {
	svc, _, fake, _ := setupService(t)
	a := submitted(t, svc)
	fake.SetStatus(extraction.TaskStatus{Status: extraction.StatusFailed, Message: "page not found"})

	st, err := svc.GetStatus(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.Status != StatusFailed || st.Error != "page not found" {
		t.Fatalf("expected failed with message, got %+v", st)
	}

	fake.Result = sampleEstablishment()
	if _, err := svc.Complete(context.Background(), a.ID, fake.Result); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := svc.GetPreview(context.Background(), a.ID); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected failed record to stay failed, got %v", err)
	}
}

func TestGetStatusSwallowsUpstreamErrors(t *testing.T) {
	svc, _, fake, _ := setupService(t)
	a := submitted(t, svc)

	fake.PollErr = errors.New("connection reset")
	st, err := svc.GetStatus(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("expected swallowed poll error, got %v", err)
	}
	if st.Status != StatusProcessing {
		t.Fatalf("expected processing, got %q", st.Status)
	}

	fake.PollErr = nil
	fake.FetchErr = errors.New("timeout")
	fake.SetStatus(extraction.TaskStatus{Status: extraction.StatusCompleted})
	st, err = svc.GetStatus(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("expected swallowed fetch error, got %v", err)
	}
	if st.Status != StatusProcessing {
		t.Fatalf("expected processing after fetch error, got %q", st.Status)
	}
}

func TestGetStatusPollInterval(t *testing.T) {
	svc, _, fake, clock := setupService(t)
	svc.PollInterval = 2 * time.Second
	a := submitted(t, svc)

	for i := 0; i < 3; i++ {
		if _, err := svc.GetStatus(context.Background(), a.ID); err != nil {
			t.Fatalf("GetStatus: %v", err)
		}
	}
	if polls, _ := fake.Calls(); polls != 1 {
		t.Fatalf("expected 1 upstream poll inside the interval, got %d", polls)
	}

	clock.Advance(3 * time.Second)
	if _, err := svc.GetStatus(context.Background(), a.ID); err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if polls, _ := fake.Calls(); polls != 2 {
		t.Fatalf("expected 2 upstream polls, got %d", polls)
	}
}

func TestConcurrentStatusPollsScoreOnce(t *testing.T) {
	svc, repo, fake, _ := setupService(t)
	counting := &completionCountingRepo{Repo: repo}
	svc.Repo = counting
	a := submitted(t, svc)
	fake.Result = sampleEstablishment()
	fake.SetStatus(extraction.TaskStatus{Status: extraction.StatusCompleted})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := svc.GetStatus(context.Background(), a.ID)
			if err != nil {
				errs <- err
				return
			}
			if st.Status != StatusCompleted {
				errs <- errors.New("expected completed status, got " + st.Status)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent poll: %v", err)
	}
	if got := counting.completions.Load(); got != 1 {
		t.Fatalf("expected exactly one completion, got %d", got)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	svc, _, _, clock := setupService(t)
	a := submitted(t, svc)

	first, err := svc.Complete(context.Background(), a.ID, sampleEstablishment())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	clock.Advance(time.Minute)
	other := sampleEstablishment()
	other.Name = "Different"
	second, err := svc.Complete(context.Background(), a.ID, other)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if second.Results.Restaurant.Name != "Burger Place" {
		t.Fatalf("expected original results, got %q", second.Results.Restaurant.Name)
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatalf("expected no-op completion not to touch updatedAt")
	}
}

func TestCompleteUnknownID(t *testing.T) {
	svc, _, _, _ := setupService(t)
	if _, err := svc.Complete(context.Background(), "missing", sampleEstablishment()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFullResultChecksReadinessBeforePayment(t *testing.T) {
	svc, repo, _, _ := setupService(t)
	a := submitted(t, svc)

	if _, err := svc.GetFullResult(context.Background(), a.ID); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if _, err := svc.Complete(context.Background(), a.ID, sampleEstablishment()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := svc.GetFullResult(context.Background(), a.ID); !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("expected ErrPaymentRequired, got %v", err)
	}

	if _, err := repo.Update(context.Background(), a.ID, func(rec *Analysis) error {
		rec.Payment = &Payment{Status: PaymentCompleted, PayerEmail: "owner@example.com"}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	full, err := svc.GetFullResult(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetFullResult: %v", err)
	}
	if full.Results == nil {
		t.Fatalf("expected results")
	}
	if _, err := svc.GetFullResult(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestContactRoundTrip(t *testing.T) {
	svc, _, _, _ := setupService(t)
	a := submitted(t, svc)

	if err := svc.SaveContact(context.Background(), a.ID, Contact{Name: "Ana"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := svc.SaveContact(context.Background(), a.ID, Contact{Email: "not-an-email"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := svc.SaveContact(context.Background(), "missing", Contact{Email: "ana@example.com"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, found, err := svc.GetContact(context.Background(), a.ID)
	if err != nil || found {
		t.Fatalf("expected no contact yet, got found=%v err=%v", found, err)
	}

	if err := svc.SaveContact(context.Background(), a.ID, Contact{Name: " Ana ", Email: "ana@example.com", Phone: "+55 11 99999-0000"}); err != nil {
		t.Fatalf("SaveContact: %v", err)
	}
	contact, found, err := svc.GetContact(context.Background(), a.ID)
	if err != nil || !found {
		t.Fatalf("expected contact, got found=%v err=%v", found, err)
	}
	if contact.Name != "Ana" || contact.Email != "ana@example.com" {
		t.Fatalf("unexpected contact %+v", contact)
	}
	if contact.SavedAt.IsZero() {
		t.Fatalf("expected savedAt")
	}
}

// slowFetchExtractor answers FetchResult only after its delay, ignoring ctx.
type slowFetchExtractor struct {
	*extraction.Fake
	delay time.Duration
}

func (s slowFetchExtractor) FetchResult(ctx context.Context, taskID string) (scoring.Establishment, error) {
	time.Sleep(s.delay)
	return s.Fake.FetchResult(ctx, taskID)
}

func TestGetStatusStoresResultFetchedAtPollDeadline(t *testing.T) {
	svc, _, fake, _ := setupService(t)
	a := submitted(t, svc)
	fake.Result = sampleEstablishment()
	fake.SetStatus(extraction.TaskStatus{Status: extraction.StatusCompleted})
	svc.Extractor = slowFetchExtractor{Fake: fake, delay: 60 * time.Millisecond}
	svc.PollTimeout = 50 * time.Millisecond

	st, err := svc.GetStatus(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", st.Status)
	}
}
