package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agathx/climact/moderation/auditstore"
	"github.com/Agathx/climact/moderation/itemstore"
)

func submitNeutralReport(t *testing.T, eng *Engine) *itemstore.Item {
	t.Helper()
	item, err := eng.Submit(context.Background(), SubmitParams{
		Kind:      itemstore.KindReport,
		AuthorDID: "did:plc:author",
		Content:   "poste de luz com fiacao exposta perto da escola",
		Category:  "infrastructure",
	})
	require.NoError(t, err)
	require.Equal(t, itemstore.StatusCommunityReview, item.Status)
	return item
}

func submitChatMessage(t *testing.T, eng *Engine) *itemstore.Item {
	t.Helper()
	item, err := eng.Submit(context.Background(), SubmitParams{
		Kind:      itemstore.KindChatMessage,
		AuthorDID: "did:plc:chatter",
		Content:   "bom dia pessoal, alguem soube da chuva de ontem?",
	})
	require.NoError(t, err)
	require.Equal(t, itemstore.StatusActive, item.Status)
	return item
}

func TestCommunityApproval(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	item := submitNeutralReport(t, eng)

	votes := []string{DirectionUp, DirectionUp, DirectionUp, DirectionDown, DirectionDown}
	var last *itemstore.Item
	for i, dir := range votes {
		var err error
		last, err = eng.CastVote(ctx, item.ID, fmt.Sprintf("did:plc:voter%d", i), dir)
		require.NoError(t, err)
	}

	assert.Equal(itemstore.StatusApproved, last.Status)
	assert.Equal(3, last.Consensus.Upvotes)
	assert.Equal(2, last.Consensus.Downvotes)

	trail, err := eng.GetAuditTrail(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2) // automated review, then community approval
	assert.Equal(auditstore.SourceCommunity, trail[1].Source)
	assert.Equal(itemstore.StatusApproved, trail[1].Decision)
}

func TestDownvoteMajorityNeverAutoRejects(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	item := submitNeutralReport(t, eng)

	votes := []string{DirectionUp, DirectionUp, DirectionDown, DirectionDown, DirectionDown}
	var last *itemstore.Item
	for i, dir := range votes {
		var err error
		last, err = eng.CastVote(ctx, item.ID, fmt.Sprintf("did:plc:voter%d", i), dir)
		require.NoError(t, err)
	}

	// stalemate: the item waits for an authority
	assert.Equal(itemstore.StatusCommunityReview, last.Status)
	assert.Equal(2, last.Consensus.Upvotes)
	assert.Equal(3, last.Consensus.Downvotes)

	// late voters can still weigh in
	more, err := eng.CastVote(ctx, item.ID, "did:plc:voter5", DirectionUp)
	require.NoError(t, err)
	assert.Equal(itemstore.StatusCommunityReview, more.Status)

	// and an authority resolves it
	decided, err := eng.AuthorityDecide(ctx, item.ID, "did:plc:defesa1", DecisionReject, "duplicate of an earlier report")
	require.NoError(t, err)
	assert.Equal(itemstore.StatusRejected, decided.Status)
}

func TestDoubleVoteRejected(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	item := submitNeutralReport(t, eng)

	_, err := eng.CastVote(ctx, item.ID, "did:plc:voter1", DirectionUp)
	require.NoError(t, err)

	// same voter, either direction
	_, err = eng.CastVote(ctx, item.ID, "did:plc:voter1", DirectionDown)
	assert.ErrorIs(err, ErrAlreadyVoted)

	got, err := eng.Store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(1, got.Consensus.Upvotes)
	assert.Equal(0, got.Consensus.Downvotes)
}

func TestVoteStateChecks(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()

	chat := submitChatMessage(t, eng)
	_, err := eng.CastVote(ctx, chat.ID, "did:plc:voter1", DirectionUp)
	assert.ErrorIs(err, ErrInvalidState)

	approved, err := eng.Submit(ctx, SubmitParams{
		Kind:      itemstore.KindReport,
		AuthorDID: "did:plc:author",
		Content:   "URGENTE: evacuação necessária, risco de vida",
		Category:  "landslide",
	})
	require.NoError(t, err)
	require.Equal(t, itemstore.StatusApproved, approved.Status)
	_, err = eng.CastVote(ctx, approved.ID, "did:plc:voter1", DirectionUp)
	assert.ErrorIs(err, ErrInvalidState)

	_, err = eng.CastVote(ctx, "missing", "did:plc:voter1", DirectionUp)
	assert.ErrorIs(err, itemstore.ErrNotFound)

	item := submitNeutralReport(t, eng)
	_, err = eng.CastVote(ctx, item.ID, "", DirectionUp)
	assert.ErrorIs(err, ErrValidation)
	_, err = eng.CastVote(ctx, item.ID, "did:plc:voter1", "sideways")
	assert.ErrorIs(err, ErrValidation)
}

func TestConcurrentVotesCountOnce(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	eng.Config.VoteThreshold = 100 // keep the item in review for the whole test
	item := submitNeutralReport(t, eng)

	var wg sync.WaitGroup
	dupErrs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// every voter tries twice
			for j := 0; j < 2; j++ {
				_, err := eng.CastVote(ctx, item.ID, fmt.Sprintf("did:plc:voter%d", i), DirectionUp)
				if err != nil {
					dupErrs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(dupErrs)

	got, err := eng.Store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(20, got.Consensus.Upvotes)

	count := 0
	for err := range dupErrs {
		assert.ErrorIs(err, ErrAlreadyVoted)
		count++
	}
	assert.Equal(20, count)
}

func TestReportVolumeHidesChatMessage(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	item := submitChatMessage(t, eng)

	for i := 0; i < 2; i++ {
		got, err := eng.CastReport(ctx, item.ID, fmt.Sprintf("did:plc:reporter%d", i))
		require.NoError(t, err)
		assert.Equal(itemstore.StatusActive, got.Status)
	}
	got, err := eng.CastReport(ctx, item.ID, "did:plc:reporter2")
	require.NoError(t, err)
	assert.Equal(itemstore.StatusHidden, got.Status)
	assert.Equal(3, got.Consensus.ReportCount)

	flags, err := eng.Flags.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Contains(flags, "report-volume-hidden")

	trail, err := eng.GetAuditTrail(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2) // automated allow, then community hide
	assert.Equal(auditstore.SourceCommunity, trail[1].Source)
	assert.Equal(itemstore.StatusHidden, trail[1].Decision)

	events := eng.Notifier.(*CollectingNotifier).Events()
	require.Len(t, events, 1)
	assert.Equal(EventMessageReportVolume, events[0].Kind)

	// a fourth reporter still counts, with no second transition
	got, err = eng.CastReport(ctx, item.ID, "did:plc:reporter3")
	require.NoError(t, err)
	assert.Equal(itemstore.StatusHidden, got.Status)
	assert.Equal(4, got.Consensus.ReportCount)
	trail, err = eng.GetAuditTrail(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(trail, 2)
}

func TestDuplicateAbuseReportRejected(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	item := submitChatMessage(t, eng)

	_, err := eng.CastReport(ctx, item.ID, "did:plc:reporter1")
	require.NoError(t, err)
	_, err = eng.CastReport(ctx, item.ID, "did:plc:reporter1")
	assert.ErrorIs(err, ErrAlreadyVoted)

	got, err := eng.Store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(1, got.Consensus.ReportCount)
}

func TestAbuseReportOnReportKindRejected(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	item := submitNeutralReport(t, eng)

	_, err := eng.CastReport(ctx, item.ID, "did:plc:reporter1")
	assert.ErrorIs(err, ErrInvalidState)
}

func TestAbuseReportQuota(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	eng.Config.ReportQuotaDay = 2

	first := submitChatMessage(t, eng)
	second := submitChatMessage(t, eng)
	third := submitChatMessage(t, eng)

	_, err := eng.CastReport(ctx, first.ID, "did:plc:zealot")
	require.NoError(t, err)
	_, err = eng.CastReport(ctx, second.ID, "did:plc:zealot")
	require.NoError(t, err)
	_, err = eng.CastReport(ctx, third.ID, "did:plc:zealot")
	assert.ErrorIs(err, ErrRateLimited)
}
