package itemstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItem(id string) *Item {
	now := time.Now().UTC()
	return &Item{
		ID:        id,
		Kind:      KindReport,
		AuthorDID: "did:plc:author1",
		Content:   "bueiro aberto na rua principal",
		Category:  "infrastructure",
		Severity:  "medium",
		Status:    StatusSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemItemStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := NewMemItemStore()

	_, err := s.GetItem(ctx, "missing")
	assert.ErrorIs(err, ErrNotFound)

	require.NoError(t, s.CreateItem(ctx, testItem("item1")))
	got, err := s.GetItem(ctx, "item1")
	require.NoError(t, err)
	assert.Equal(StatusSubmitted, got.Status)
	assert.False(got.Terminal())

	// mutations on the returned copy must not leak into the store
	got.Status = StatusApproved
	again, err := s.GetItem(ctx, "item1")
	require.NoError(t, err)
	assert.Equal(StatusSubmitted, again.Status)

	updated, err := s.UpdateItem(ctx, "item1", func(item *Item) error {
		item.Status = StatusCommunityReview
		item.Consensus = &Consensus{}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(StatusCommunityReview, updated.Status)

	pending, err := s.ListByStatus(ctx, StatusCommunityReview, 10)
	require.NoError(t, err)
	assert.Len(pending, 1)
}

func TestMemItemStoreTokenLookup(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := NewMemItemStore()
	item := testItem("anon1")
	item.Kind = KindAnonymousReport
	item.AuthorDID = ""
	item.ProtocolToken = "tok-abc123"
	require.NoError(t, s.CreateItem(ctx, item))

	got, err := s.GetItemByToken(ctx, "tok-abc123")
	require.NoError(t, err)
	assert.Equal("anon1", got.ID)
	assert.Empty(got.AuthorDID)

	_, err = s.GetItemByToken(ctx, "tok-wrong")
	assert.ErrorIs(err, ErrNotFound)
}

func TestMemItemStoreMutationAborts(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := NewMemItemStore()
	require.NoError(t, s.CreateItem(ctx, testItem("item1")))

	boom := errors.New("nope")
	_, err := s.UpdateItem(ctx, "item1", func(item *Item) error {
		item.Status = StatusRejected
		return boom
	})
	assert.ErrorIs(err, boom)

	got, err := s.GetItem(ctx, "item1")
	require.NoError(t, err)
	assert.Equal(StatusSubmitted, got.Status)
}

// Concurrent voters racing UpdateItem must never double-count; run with -race.
func TestMemItemStoreConcurrentUpdates(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := NewMemItemStore()
	item := testItem("item1")
	item.Status = StatusCommunityReview
	item.Consensus = &Consensus{}
	require.NoError(t, s.CreateItem(ctx, item))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateItem(ctx, "item1", func(it *Item) error {
				it.Consensus.Upvotes++
				return nil
			})
			assert.NoError(err)
		}()
	}
	wg.Wait()

	got, err := s.GetItem(ctx, "item1")
	require.NoError(t, err)
	assert.Equal(20, got.Consensus.Upvotes)
}

func TestItemTerminal(t *testing.T) {
	assert := assert.New(t)

	item := testItem("item1")
	assert.False(item.Terminal())

	item.Status = StatusHidden
	assert.False(item.Terminal())

	item.Status = StatusBlocked
	assert.True(item.Terminal())

	item.Status = StatusActive
	item.Decision = &AuthorityDecision{ReviewerDID: "did:plc:admin", Decision: "approve", DecidedAt: time.Now()}
	assert.True(item.Terminal())
}

func TestRecordRoundTrip(t *testing.T) {
	assert := assert.New(t)

	item := testItem("item1")
	item.Status = StatusCommunityReview
	item.Scoring = &ScoreInfo{
		Score:          0.55,
		Recommendation: "review",
		Reasons:        []string{"no strong signals"},
		ScoredAt:       time.Now().UTC().Truncate(time.Second),
	}
	item.Consensus = &Consensus{
		Upvotes:   2,
		Downvotes: 1,
		VoterDIDs: []string{"did:plc:v1", "did:plc:v2", "did:plc:v3"},
	}

	rec, err := recordFromItem(item)
	require.NoError(t, err)
	back, err := itemFromRecord(rec)
	require.NoError(t, err)

	assert.Equal(item.Status, back.Status)
	assert.Equal(item.Scoring.Score, back.Scoring.Score)
	assert.Equal(item.Scoring.Reasons, back.Scoring.Reasons)
	assert.Equal(item.Consensus.VoterDIDs, back.Consensus.VoterDIDs)
	assert.True(back.Consensus.HasVoted("did:plc:v2"))
	assert.False(back.Consensus.HasVoted("did:plc:v9"))
}
