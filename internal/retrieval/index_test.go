package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTermCounts(t *testing.T) {
	counts := termCounts("Billing API, billing! 料金体系の見直し a")

	assert.Equal(t, 2, counts["billing"])
	assert.Equal(t, 1, counts["api"])
	assert.Equal(t, 1, counts["料金"])
	assert.Equal(t, 1, counts["見直"])
	assert.NotContains(t, counts, "a", "single letters are dropped")
}

func TestRelevantRanksByOverlap(t *testing.T) {
	ix := New(WithChunking(60, 0))
	ix.AddDocument("doc", strings.Join([]string{
		"The billing system charges customers monthly.\n",
		"Our hiring plan adds two backend engineers.\n",
		"Billing errors caused refunds for customers last quarter.\n",
	}, ""))
	require.Equal(t, 3, ix.Len())

	got, err := ix.Relevant(context.Background(), "billing customers refunds", 2, false)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Contains(t, got[0], "refunds")
	assert.Contains(t, got[1], "charges")
}

func TestRelevantSkipsUnrelated(t *testing.T) {
	ix := New()
	ix.AddDocument("doc", "Quarterly revenue grew in every region.")

	got, err := ix.Relevant(context.Background(), "kubernetes upgrade", 3, false)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRelevantDiversifies(t *testing.T) {
	ix := New(WithChunking(80, 0), WithLambda(0.3))
	ix.AddDocument("doc", strings.Join([]string{
		"Pricing pricing pricing tiers for the pricing page.\n",
		"Pricing pricing pricing tiers for the pricing page!\n",
		"Pricing feedback from enterprise customers on support.\n",
	}, ""))
	require.Equal(t, 3, ix.Len())

	plain, err := ix.Relevant(context.Background(), "pricing tiers enterprise", 2, false)
	require.NoError(t, err)
	diverse, err := ix.Relevant(context.Background(), "pricing tiers enterprise", 2, true)
	require.NoError(t, err)

	require.Len(t, plain, 2)
	require.Len(t, diverse, 2)
	assert.Contains(t, diverse[1], "enterprise", "a near-duplicate loses to a novel passage")
}

func TestRelevantJapanese(t *testing.T) {
	ix := New(WithChunking(40, 0))
	ix.AddDocument("doc", "新しい料金体系を来月から導入する。\n採用計画ではエンジニアを二名増やす。\n")

	got, err := ix.Relevant(context.Background(), "料金体系について", 1, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "料金体系")
}

func TestRelevantEdgeCases(t *testing.T) {
	ix := New()

	got, err := ix.Relevant(context.Background(), "anything", 3, true)
	require.NoError(t, err)
	assert.Empty(t, got, "empty index")

	assert.Equal(t, 0, ix.AddDocument("doc", "   "))
	ix.AddDocument("doc", "some content here")

	got, err = ix.Relevant(context.Background(), "content", 0, false)
	require.NoError(t, err)
	assert.Empty(t, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ix.Relevant(ctx, "content", 1, false)
	assert.ErrorIs(t, err, context.Canceled)

	ix.Reset()
	assert.Equal(t, 0, ix.Len())
}
