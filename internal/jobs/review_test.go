package jobs

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/regression-warden/internal/config"
	"github.com/sevigo/regression-warden/internal/core"
)

func testJobConfig() *config.Config {
	return &config.Config{
		Jobs: config.JobsConfig{
			MaxWorkers:          2,
			JobTimeout:          time.Minute,
			MarkerTTL:           time.Hour,
			MaxDeliveryAttempts: 5,
			PollInterval:        time.Second,
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func strPtr(s string) *string { return &s }

type jobFixture struct {
	host     *fakeHost
	reviewer *fakeReviewer
	reviews  *fakeReviewStore
	outcomes *fakeOutcomeStore
	markers  *fakeMarkers
	job      *ReviewJob
}

func newJobFixture() *jobFixture {
	f := &jobFixture{
		host: &fakeHost{
			meta: &core.PRMetadata{
				Title:     "Add retry logic to payment client",
				Author:    "dave",
				SourceRef: "feature/retries",
				TargetRef: "main",
				HeadSHA:   "abc1234def",
				BaseSHA:   "000111222",
			},
			files: []core.ChangedFile{
				{Path: "payment/client.go", ChangeType: "modified", BeforeContent: strPtr("old"), AfterContent: strPtr("new")},
			},
		},
		reviewer: &fakeReviewer{markdown: "## Findings\n\nLooks fine.\n"},
		reviews:  newFakeReviewStore(),
		outcomes: &fakeOutcomeStore{},
		markers:  newFakeMarkers(),
	}
	f.job = NewReviewJob(testJobConfig(), f.host, f.reviewer, f.reviews, f.outcomes, f.markers, discardLogger())
	return f
}

func TestRunBlockingReview(t *testing.T) {
	f := newJobFixture()
	f.reviewer.markdown = "### Finding 1\n**Severity:** blocking\nRemoved null check.\n\n### Finding 2\n**Severity:** info\nMinor style.\n"

	outcome, err := f.job.Run(context.Background(), core.ReviewRequest{PRID: 1234, Source: core.SourceManual})
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, core.SeverityBlocking, outcome.Result.Severity)
	assert.Equal(t, core.ActionRejected, outcome.ActionTaken)
	assert.True(t, outcome.Commented)
	assert.Equal(t, core.StatusCompleted, outcome.Status)
	assert.NotEmpty(t, outcome.StoragePath)
	assert.Contains(t, f.reviews.saved[outcome.StoragePath], "Removed null check")

	require.Len(t, f.host.comments, 1)
	assert.Contains(t, f.host.comments[0], outcome.StoragePath)
	require.Len(t, f.host.votes, 1)
	assert.True(t, f.host.votes[0])

	// The revision was taken from head metadata.
	assert.Equal(t, "abc1234def", outcome.Request.Revision)

	marker, err := f.markers.Get(context.Background(), 1234, "abc1234def")
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, core.MarkerDone, marker.State)
}

func TestRunWarningCommentsWithoutRejecting(t *testing.T) {
	f := newJobFixture()
	f.reviewer.markdown = "### Finding 1\n**Severity:** warning\nMissing timeout on HTTP call.\n"

	outcome, err := f.job.Run(context.Background(), core.ReviewRequest{PRID: 7, Revision: "rev-1"})
	require.NoError(t, err)

	assert.Equal(t, core.SeverityWarning, outcome.Result.Severity)
	assert.Equal(t, core.ActionCommented, outcome.ActionTaken)
	assert.True(t, outcome.Commented)
	assert.Len(t, f.host.comments, 1)
	assert.Empty(t, f.host.votes)
}

func TestRunInfoStoresWithoutComment(t *testing.T) {
	f := newJobFixture()
	f.reviewer.markdown = "### Finding 1\n**Severity:** info\nConsider renaming.\n"

	outcome, err := f.job.Run(context.Background(), core.ReviewRequest{PRID: 7, Revision: "rev-1"})
	require.NoError(t, err)

	assert.Equal(t, core.SeverityInfo, outcome.Result.Severity)
	assert.Equal(t, core.ActionNone, outcome.ActionTaken)
	assert.False(t, outcome.Commented)
	assert.Empty(t, f.host.comments)
	assert.NotEmpty(t, outcome.StoragePath)
}

func TestRunDuplicateRevisionReturnsRecordedOutcome(t *testing.T) {
	f := newJobFixture()
	req := core.ReviewRequest{PRID: 42, Revision: "rev-dup"}

	first, err := f.job.Run(context.Background(), req)
	require.NoError(t, err)

	second, err := f.job.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.StoragePath, second.StoragePath)
	assert.Equal(t, 1, f.reviewer.calls, "duplicate trigger must not call the backend again")
	assert.Len(t, f.outcomes.outcomes, 1)
}

func TestRunInProgressMarkerShortCircuits(t *testing.T) {
	f := newJobFixture()
	req := core.ReviewRequest{PRID: 42, Revision: "rev-live"}

	claimed, _, err := f.markers.CreateIfAbsent(context.Background(), 42, "rev-live")
	require.NoError(t, err)
	require.True(t, claimed)

	outcome, err := f.job.Run(context.Background(), req)
	assert.Nil(t, outcome)
	assert.ErrorIs(t, err, ErrInProgress)
	assert.Equal(t, 0, f.reviewer.calls)
}

func TestRunStaleMarkerIsReclaimed(t *testing.T) {
	f := newJobFixture()
	f.markers.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	_, _, err := f.markers.CreateIfAbsent(context.Background(), 42, "rev-stale")
	require.NoError(t, err)
	f.markers.now = time.Now

	outcome, err := f.job.Run(context.Background(), core.ReviewRequest{PRID: 42, Revision: "rev-stale"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, outcome.Status)
	assert.Equal(t, 1, f.reviewer.calls)
}

func TestRunMissingPRLeavesNoMarker(t *testing.T) {
	f := newJobFixture()
	f.host.metaErr = core.Errorf(core.KindNotFound, "PR 5678 not found")

	outcome, err := f.job.Run(context.Background(), core.ReviewRequest{PRID: 5678})
	assert.Nil(t, outcome)
	require.Error(t, err)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	assert.Empty(t, f.markers.markers, "a vanished PR must not leave an idempotency marker")
	assert.Empty(t, f.outcomes.outcomes)
}

func TestRunFileFetchFailureKeepsMarkerInProgress(t *testing.T) {
	f := newJobFixture()
	f.host.filesErr = core.Errorf(core.KindTransient, "gateway timeout")

	_, err := f.job.Run(context.Background(), core.ReviewRequest{PRID: 9, Revision: "rev-1"})
	require.Error(t, err)
	assert.Equal(t, core.KindTransient, core.KindOf(err))

	marker, err := f.markers.Get(context.Background(), 9, "rev-1")
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, core.MarkerInProgress, marker.State)
}

func TestRunGenerationFailureRecordsFailedOutcome(t *testing.T) {
	f := newJobFixture()
	f.reviewer.err = core.Errorf(core.KindTransient, "model unavailable after 3 attempts")

	outcome, err := f.job.Run(context.Background(), core.ReviewRequest{PRID: 15, Revision: "rev-1"})
	require.NoError(t, err, "an exhausted backend is recorded, not escalated")
	require.NotNil(t, outcome)

	assert.Equal(t, core.StatusFailed, outcome.Status)
	assert.Contains(t, outcome.FailureReason, "model unavailable")
	assert.Equal(t, core.ActionNone, outcome.ActionTaken)
	assert.NotEmpty(t, outcome.StoragePath)
	assert.Contains(t, f.reviews.saved[outcome.StoragePath], "Review Failed")

	marker, err := f.markers.Get(context.Background(), 15, "rev-1")
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, core.MarkerDone, marker.State, "a recorded failure is terminal for this revision")
	assert.Empty(t, f.host.comments)
}

func TestRunEmptyChangeSetSkipsBackend(t *testing.T) {
	f := newJobFixture()
	f.host.files = nil

	outcome, err := f.job.Run(context.Background(), core.ReviewRequest{PRID: 3, Revision: "rev-1"})
	require.NoError(t, err)

	assert.Equal(t, 0, f.reviewer.calls)
	assert.Equal(t, core.StatusCompleted, outcome.Status)
	assert.Equal(t, core.SeverityInfo, outcome.Result.Severity)
	assert.Equal(t, 0, outcome.FilesChanged)
}

func TestRunRepoConfigIgnoresPaths(t *testing.T) {
	f := newJobFixture()
	f.host.files = []core.ChangedFile{
		{Path: "vendor/dep/code.go", ChangeType: "modified"},
		{Path: "payment/client.go", ChangeType: "modified", AfterContent: strPtr("new")},
	}
	f.host.repoConfigData = []byte("ignore_paths:\n  - \"vendor/*\"\n")

	outcome, err := f.job.Run(context.Background(), core.ReviewRequest{PRID: 3, Revision: "rev-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.FilesChanged)
}

func TestRunCommentFailureDoesNotAbortJob(t *testing.T) {
	f := newJobFixture()
	f.reviewer.markdown = "**Severity:** warning\nSomething.\n"
	f.host.commentErr = core.Errorf(core.KindTransient, "comment API down")

	outcome, err := f.job.Run(context.Background(), core.ReviewRequest{PRID: 3, Revision: "rev-1"})
	require.NoError(t, err)

	assert.False(t, outcome.Commented)
	assert.Equal(t, core.ActionNone, outcome.ActionTaken)
	assert.Equal(t, core.StatusCompleted, outcome.Status)
	assert.Len(t, f.outcomes.outcomes, 1)
}

func TestRunRejectsInvalidPRID(t *testing.T) {
	f := newJobFixture()

	for _, id := range []int{0, -5} {
		_, err := f.job.Run(context.Background(), core.ReviewRequest{PRID: id})
		require.Error(t, err)
		assert.Equal(t, core.KindInvalid, core.KindOf(err))
	}
	assert.Empty(t, f.markers.markers)
}
