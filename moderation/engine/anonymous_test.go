package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agathx/climact/moderation/itemstore"
)

func submitAnonymousReport(t *testing.T, eng *Engine) *itemstore.Item {
	t.Helper()
	item, err := eng.Submit(context.Background(), SubmitParams{
		Kind:     itemstore.KindAnonymousReport,
		Content:  "deposito clandestino de entulho bloqueando o corrego",
		Category: "flood",
	})
	require.NoError(t, err)
	require.NotEmpty(t, item.ProtocolToken)
	return item
}

func TestAnonymousSubmitMintsToken(t *testing.T) {
	assert := assert.New(t)
	eng := EngineTestFixture()

	first := submitAnonymousReport(t, eng)
	second := submitAnonymousReport(t, eng)

	assert.NotEqual(first.ProtocolToken, second.ProtocolToken)
	assert.Empty(first.AuthorDID)
	assert.Equal(itemstore.StatusCommunityReview, first.Status)
}

func TestAnonymousTokenLookup(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	item := submitAnonymousReport(t, eng)

	view, err := eng.LookupByToken(ctx, item.ProtocolToken)
	require.NoError(t, err)
	assert.Equal(itemstore.StatusCommunityReview, view.Status)
	assert.Equal(itemstore.KindAnonymousReport, view.Kind)
	// even the internal ID stays out of the anonymous surface
	assert.Empty(view.ID)

	// nothing in the serialized payload can link back to a person
	raw, err := json.Marshal(view)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, forbidden := range []string{"id", "authorDid", "author", "did", "voterDids", "reporterDids", "token"} {
		assert.NotContains(fields, forbidden)
	}

	_, err = eng.LookupByToken(ctx, "no-such-token")
	assert.ErrorIs(err, itemstore.ErrNotFound)
}

func TestAnonymousTokenSurvivesDecision(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	item := submitAnonymousReport(t, eng)

	_, err := eng.AuthorityDecide(ctx, item.ID, "did:plc:defesa1", DecisionApprove, "confirmed by field team")
	require.NoError(t, err)

	view, err := eng.LookupByToken(ctx, item.ProtocolToken)
	require.NoError(t, err)
	assert.Equal(itemstore.StatusApproved, view.Status)
	assert.True(view.Decided)
}

func TestAnonymousReviewRequiresPrivilege(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng := EngineTestFixture()
	item := submitAnonymousReport(t, eng)

	_, err := eng.CastVote(ctx, item.ID, "did:plc:ordinary", DirectionUp)
	assert.ErrorIs(err, ErrPermissionDenied)

	got, err := eng.CastVote(ctx, item.ID, "did:plc:defesa1", DirectionUp)
	require.NoError(t, err)
	assert.Equal(1, got.Consensus.Upvotes)

	got, err = eng.CastVote(ctx, item.ID, "did:plc:admin1", DirectionUp)
	require.NoError(t, err)
	assert.Equal(2, got.Consensus.Upvotes)
}
