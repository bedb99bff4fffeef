package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agathx/climact/moderation/auditstore"
	"github.com/Agathx/climact/moderation/itemstore"
	"github.com/Agathx/climact/moderation/scorer"
)

func TestAuthorityDecidePermissions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	item := submitNeutralReport(t, eng)

	_, err := eng.AuthorityDecide(ctx, item.ID, "did:plc:randomcitizen", DecisionReject, "nope")
	assert.ErrorIs(err, ErrPermissionDenied)

	got, err := eng.Store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(itemstore.StatusCommunityReview, got.Status)
	assert.Nil(got.Decision)

	decided, err := eng.AuthorityDecide(ctx, item.ID, "did:plc:admin1", DecisionApprove, "verified on site")
	require.NoError(t, err)
	assert.Equal(itemstore.StatusApproved, decided.Status)
	require.NotNil(t, decided.Decision)
	assert.Equal("did:plc:admin1", decided.Decision.ReviewerDID)
}

func TestAuthorityDecideValidation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	item := submitNeutralReport(t, eng)

	_, err := eng.AuthorityDecide(ctx, item.ID, "", DecisionApprove, "")
	assert.ErrorIs(err, ErrValidation)
	_, err = eng.AuthorityDecide(ctx, item.ID, "did:plc:admin1", "maybe", "")
	assert.ErrorIs(err, ErrValidation)
	_, err = eng.AuthorityDecide(ctx, "missing", "did:plc:admin1", DecisionApprove, "")
	assert.ErrorIs(err, itemstore.ErrNotFound)
}

func TestAuthorityDecisionIsAbsorbing(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	item := submitNeutralReport(t, eng)

	decided, err := eng.AuthorityDecide(ctx, item.ID, "did:plc:defesa1", DecisionReject, "no such address")
	require.NoError(t, err)
	assert.Equal(itemstore.StatusRejected, decided.Status)

	// a second authority cannot overturn the first
	_, err = eng.AuthorityDecide(ctx, item.ID, "did:plc:admin1", DecisionApprove, "reconsidered")
	assert.ErrorIs(err, ErrAlreadyDecided)

	// community input is frozen
	_, err = eng.CastVote(ctx, item.ID, "did:plc:voter1", DirectionUp)
	assert.ErrorIs(err, ErrAlreadyDecided)

	// and a late scoring retry is a silent no-op
	err = eng.ApplyScore(ctx, item.ID, scorer.Result{Score: 0.95, Recommendation: scorer.RecommendApprove})
	assert.NoError(err)
	got, err := eng.Store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(itemstore.StatusRejected, got.Status)
	require.NotNil(t, got.Decision)
	assert.Equal("no such address", got.Decision.Reason)
}

func TestAuthorityDecideChatMessage(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()

	// approve keeps the message visible but frozen
	first := submitChatMessage(t, eng)
	decided, err := eng.AuthorityDecide(ctx, first.ID, "did:plc:admin1", DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(itemstore.StatusActive, decided.Status)
	require.NotNil(t, decided.Decision)
	assert.True(decided.Terminal())

	_, err = eng.CastReport(ctx, first.ID, "did:plc:reporter1")
	assert.ErrorIs(err, ErrAlreadyDecided)

	// reject blocks it, and the block escalates
	second := submitChatMessage(t, eng)
	decided, err = eng.AuthorityDecide(ctx, second.ID, "did:plc:defesa1", DecisionReject, "coordinated spam")
	require.NoError(t, err)
	assert.Equal(itemstore.StatusBlocked, decided.Status)

	events := eng.Notifier.(*CollectingNotifier).Events()
	require.Len(t, events, 1)
	assert.Equal(EventMessageBlocked, events[0].Kind)
	assert.Equal(second.ID, events[0].ItemID)
}

func TestAuthorityDecideDuringScoring(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	eng.Config.AsyncScoring = true

	// item is still waiting in the scoring queue when the authority acts
	item, err := eng.Submit(ctx, SubmitParams{
		Kind:      itemstore.KindReport,
		AuthorDID: "did:plc:author",
		Content:   "URGENTE: evacuação necessária, risco de vida",
		Category:  "landslide",
	})
	require.NoError(t, err)
	require.Equal(t, itemstore.StatusScoring, item.Status)

	decided, err := eng.AuthorityDecide(ctx, item.ID, "did:plc:defesa1", DecisionReject, "drill, not a real event")
	require.NoError(t, err)
	assert.Equal(itemstore.StatusRejected, decided.Status)

	// the queued scoring request is discarded on delivery
	queued := <-eng.scoringQueue()
	require.NoError(t, eng.ScoreItem(ctx, queued))
	got, err := eng.Store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(itemstore.StatusRejected, got.Status)
	assert.Nil(got.Scoring)
}

func TestAuthorityAuditEntry(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	item := submitNeutralReport(t, eng)

	_, err := eng.AuthorityDecide(ctx, item.ID, "did:plc:admin1", DecisionApprove, "")
	require.NoError(t, err)

	trail, err := eng.GetAuditTrail(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(auditstore.SourceAuthority, trail[1].Source)
	assert.Equal(itemstore.StatusApproved, trail[1].Decision)
	assert.Equal([]string{"(no reason given)"}, trail[1].Reasons)
	assert.Nil(trail[1].Confidence)
}
