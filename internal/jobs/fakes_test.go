package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sevigo/regression-warden/internal/core"
	"github.com/sevigo/regression-warden/internal/queue"
)

// fakeHost is an in-memory github.Client recording every interaction.
type fakeHost struct {
	meta    *core.PRMetadata
	metaErr error

	files    []core.ChangedFile
	filesErr error

	repoConfigData []byte
	repoConfigErr  error

	credentialErr error

	commentErr error
	voteErr    error

	comments []string
	votes    []bool
}

func (f *fakeHost) FetchPRMetadata(_ context.Context, _ int) (*core.PRMetadata, error) {
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	return f.meta, nil
}

func (f *fakeHost) FetchChangedFiles(_ context.Context, _ int, _ *core.PRMetadata) ([]core.ChangedFile, error) {
	if f.filesErr != nil {
		return nil, f.filesErr
	}
	return f.files, nil
}

func (f *fakeHost) PostComment(_ context.Context, _ int, body string) error {
	if f.commentErr != nil {
		return f.commentErr
	}
	f.comments = append(f.comments, body)
	return nil
}

func (f *fakeHost) SetVote(_ context.Context, _ int, reject bool) error {
	if f.voteErr != nil {
		return f.voteErr
	}
	f.votes = append(f.votes, reject)
	return nil
}

func (f *fakeHost) ValidateCredential(_ context.Context) error {
	return f.credentialErr
}

func (f *fakeHost) FetchRepoConfigData(_ context.Context, _ string) ([]byte, error) {
	if f.repoConfigErr != nil {
		return nil, f.repoConfigErr
	}
	return f.repoConfigData, nil
}

// fakeReviewer counts backend calls so tests can assert that idempotency
// suppresses duplicate model invocations.
type fakeReviewer struct {
	markdown string
	err      error
	calls    int
}

func (f *fakeReviewer) GenerateReview(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.markdown, nil
}

// fakeReviewStore records saved reviews under deterministic paths.
type fakeReviewStore struct {
	saved map[string]string
	err   error
}

func newFakeReviewStore() *fakeReviewStore {
	return &fakeReviewStore{saved: make(map[string]string)}
}

func (f *fakeReviewStore) SaveReview(_ context.Context, prID int, _ time.Time, markdown string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := fmt.Sprintf("reviews/pr-%d-%d-review.md", prID, len(f.saved))
	f.saved[path] = markdown
	return path, nil
}

// fakeOutcomeStore keeps outcomes in insertion order.
type fakeOutcomeStore struct {
	outcomes []*core.JobOutcome
	saveErr  error
}

func (f *fakeOutcomeStore) SaveOutcome(_ context.Context, o *core.JobOutcome) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.outcomes = append(f.outcomes, o)
	return nil
}

func (f *fakeOutcomeStore) GetLatestOutcome(_ context.Context, prID int, revision string) (*core.JobOutcome, error) {
	for i := len(f.outcomes) - 1; i >= 0; i-- {
		o := f.outcomes[i]
		if o.Request.PRID == prID && o.Request.Revision == revision {
			return o, nil
		}
	}
	return nil, nil
}

// fakeMarkers is a map-backed idempotency store with the same claim
// semantics as the Postgres implementation.
type fakeMarkers struct {
	mu      sync.Mutex
	markers map[string]*core.IdempotencyMarker
	ttl     time.Duration
	now     func() time.Time
}

func newFakeMarkers() *fakeMarkers {
	return &fakeMarkers{
		markers: make(map[string]*core.IdempotencyMarker),
		ttl:     time.Hour,
		now:     time.Now,
	}
}

func markerKey(prID int, revision string) string {
	return fmt.Sprintf("pr-%d-%s", prID, revision)
}

func (f *fakeMarkers) CreateIfAbsent(_ context.Context, prID int, revision string) (bool, *core.IdempotencyMarker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := markerKey(prID, revision)
	if m, ok := f.markers[key]; ok {
		if !m.Stale(f.ttl, f.now()) {
			copied := *m
			return false, &copied, nil
		}
	}
	f.markers[key] = &core.IdempotencyMarker{
		PRID:      prID,
		Revision:  revision,
		State:     core.MarkerInProgress,
		CreatedAt: f.now(),
	}
	return true, nil, nil
}

func (f *fakeMarkers) MarkDone(_ context.Context, prID int, revision string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.markers[markerKey(prID, revision)]; ok {
		m.State = core.MarkerDone
	}
	return nil
}

func (f *fakeMarkers) Delete(_ context.Context, prID int, revision string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.markers, markerKey(prID, revision))
	return nil
}

func (f *fakeMarkers) Get(_ context.Context, prID int, revision string) (*core.IdempotencyMarker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.markers[markerKey(prID, revision)]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, nil
}

// fakeQueue is an in-memory queue.Queue recording settlement calls.
type fakeQueue struct {
	published []core.ReviewRequest
	acked     []string
	nacked    []string
	deadSent  []string

	deadLetters []queue.DeadLetter
	dlAcked     []string

	publishErr  error
	pullDeadErr error
	ackDLErr    error
}

func (f *fakeQueue) Publish(_ context.Context, req core.ReviewRequest) (string, error) {
	if f.publishErr != nil {
		return "", f.publishErr
	}
	f.published = append(f.published, req)
	return fmt.Sprintf("msg-%d", len(f.published)), nil
}

func (f *fakeQueue) Pull(_ context.Context) (*core.QueueMessage, error) {
	return nil, nil
}

func (f *fakeQueue) Ack(_ context.Context, id string) error {
	f.acked = append(f.acked, id)
	return nil
}

func (f *fakeQueue) Nack(_ context.Context, id, _ string) error {
	f.nacked = append(f.nacked, id)
	return nil
}

func (f *fakeQueue) DeadLetter(_ context.Context, id, _ string) error {
	f.deadSent = append(f.deadSent, id)
	return nil
}

func (f *fakeQueue) PullDeadLetters(_ context.Context, max int) ([]queue.DeadLetter, error) {
	if f.pullDeadErr != nil {
		return nil, f.pullDeadErr
	}
	if max > 0 && len(f.deadLetters) > max {
		return f.deadLetters[:max], nil
	}
	return f.deadLetters, nil
}

func (f *fakeQueue) AckDeadLetter(_ context.Context, id string) error {
	if f.ackDLErr != nil {
		return f.ackDLErr
	}
	f.dlAcked = append(f.dlAcked, id)
	return nil
}
