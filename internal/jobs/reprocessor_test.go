package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/regression-warden/internal/core"
	"github.com/sevigo/regression-warden/internal/queue"
)

func deadLetter(id string, prID int, revision string) queue.DeadLetter {
	return queue.DeadLetter{
		Message: core.QueueMessage{
			ID:       id,
			PRID:     prID,
			Revision: revision,
			Source:   core.SourceWebhook,
			Attempts: 5,
		},
		Reason:   "credential rejected",
		FailedAt: time.Now(),
	}
}

func TestReprocessReplaysDeadLetters(t *testing.T) {
	q := &fakeQueue{deadLetters: []queue.DeadLetter{
		deadLetter("dl-1", 11, "rev-a"),
		deadLetter("dl-2", 12, "rev-b"),
	}}
	markers := newFakeMarkers()
	host := &fakeHost{}

	// Leftover in-progress markers from the failed runs.
	for _, dl := range q.deadLetters {
		_, _, err := markers.CreateIfAbsent(context.Background(), dl.Message.PRID, dl.Message.Revision)
		require.NoError(t, err)
	}

	r := NewReprocessor(q, markers, host, discardLogger())
	summary, err := r.Reprocess(context.Background(), 10, false)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Replayed)
	assert.Equal(t, 0, summary.Failed)

	require.Len(t, q.published, 2)
	for _, req := range q.published {
		assert.Equal(t, core.SourceDLQReplay, req.Source)
	}
	assert.Equal(t, []string{"dl-1", "dl-2"}, q.dlAcked)
	assert.Empty(t, markers.markers, "markers must be cleared so the replay is not short-circuited")
}

func TestReprocessDryRunChangesNothing(t *testing.T) {
	q := &fakeQueue{deadLetters: []queue.DeadLetter{deadLetter("dl-1", 11, "rev-a")}}
	markers := newFakeMarkers()
	_, _, err := markers.CreateIfAbsent(context.Background(), 11, "rev-a")
	require.NoError(t, err)

	r := NewReprocessor(q, markers, &fakeHost{}, discardLogger())
	summary, err := r.Reprocess(context.Background(), 10, true)
	require.NoError(t, err)

	assert.True(t, summary.DryRun)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 0, summary.Replayed)
	require.Len(t, summary.Reports, 1)
	assert.Equal(t, ReplayDryRun, summary.Reports[0].Status)

	assert.Empty(t, q.published)
	assert.Empty(t, q.dlAcked)
	assert.Len(t, markers.markers, 1, "dry run must not touch markers")
}

func TestReprocessAbortsOnBadCredential(t *testing.T) {
	q := &fakeQueue{deadLetters: []queue.DeadLetter{deadLetter("dl-1", 11, "rev-a")}}
	host := &fakeHost{credentialErr: core.Errorf(core.KindAuth, "token expired")}

	r := NewReprocessor(q, newFakeMarkers(), host, discardLogger())
	summary, err := r.Reprocess(context.Background(), 10, false)

	assert.Nil(t, summary)
	require.Error(t, err)
	assert.Equal(t, core.KindAuth, core.KindOf(err))
	assert.Empty(t, q.published, "no message may be replayed against a broken credential")
}

func TestReprocessPartialFailureContinuesBatch(t *testing.T) {
	q := &fakeQueue{deadLetters: []queue.DeadLetter{
		deadLetter("dl-1", 11, "rev-a"),
		deadLetter("dl-2", 12, "rev-b"),
	}}
	q.publishErr = assert.AnError

	r := NewReprocessor(q, newFakeMarkers(), &fakeHost{}, discardLogger())
	summary, err := r.Reprocess(context.Background(), 10, false)
	require.NoError(t, err, "per-message failures never abort the batch")

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 0, summary.Replayed)
	assert.Equal(t, 2, summary.Failed)
	for _, report := range summary.Reports {
		assert.Equal(t, ReplayFailed, report.Status)
		assert.NotEmpty(t, report.Error)
	}
	assert.Empty(t, q.dlAcked, "failed replays stay in the dead-letter table")
}

func TestReprocessAckFailureKeepsLetterForNextRun(t *testing.T) {
	q := &fakeQueue{deadLetters: []queue.DeadLetter{deadLetter("dl-1", 11, "rev-a")}}
	q.ackDLErr = assert.AnError

	r := NewReprocessor(q, newFakeMarkers(), &fakeHost{}, discardLogger())
	summary, err := r.Reprocess(context.Background(), 10, false)
	require.NoError(t, err)

	// The message was republished; the failed removal is tolerated and
	// the next run's duplicate is absorbed by the idempotency layer.
	assert.Equal(t, 1, summary.Replayed)
	assert.Len(t, q.published, 1)
}

func TestReprocessRespectsBatchLimit(t *testing.T) {
	q := &fakeQueue{deadLetters: []queue.DeadLetter{
		deadLetter("dl-1", 11, "rev-a"),
		deadLetter("dl-2", 12, "rev-b"),
		deadLetter("dl-3", 13, "rev-c"),
	}}

	r := NewReprocessor(q, newFakeMarkers(), &fakeHost{}, discardLogger())
	summary, err := r.Reprocess(context.Background(), 2, false)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
}
