package auditstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemAuditStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s := NewMemAuditStore()

	l, err := s.ListByItem(ctx, "item1")
	require.NoError(t, err)
	assert.Empty(l)

	conf := 0.91
	require.NoError(t, s.Append(ctx, &Entry{
		ItemID:     "item1",
		Source:     SourceAutomated,
		Decision:   "approved",
		Confidence: &conf,
		Reasons:    []string{"emergency terms matched: urgente"},
	}))
	require.NoError(t, s.Append(ctx, &Entry{
		ItemID:   "item2",
		Source:   SourceAuthority,
		Decision: "rejected",
		Reasons:  []string{"duplicate report"},
	}))
	require.NoError(t, s.Append(ctx, &Entry{
		ItemID:   "item1",
		Source:   SourceCommunity,
		Decision: "approved",
	}))

	l, err = s.ListByItem(ctx, "item1")
	require.NoError(t, err)
	require.Len(t, l, 2)
	assert.Equal(SourceAutomated, l[0].Source)
	assert.Equal(SourceCommunity, l[1].Source)
	assert.NotZero(l[0].ID)
	assert.False(l[0].CreatedAt.IsZero())
	require.NotNil(t, l[0].Confidence)
	assert.InDelta(0.91, *l[0].Confidence, 0.0001)
}
