package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterDisjointTags_EmptyFilterPassesEverything(t *testing.T) {
	records := []taggedRecord{{title: "a", tags: []string{"prod"}}}
	kept := filterDisjointTags(records, nil)
	assert.Equal(t, records, kept)
}

func TestFilterDisjointTags_DropsRecordsWithNoMatchingTag(t *testing.T) {
	records := []taggedRecord{
		{title: "a", tags: []string{"prod"}},
		{title: "b", tags: []string{"staging"}},
	}
	kept := filterDisjointTags(records, []string{"prod"})
	require.Len(t, kept, 1)
	assert.Equal(t, "a", kept[0].title)
}

func TestResolveTagPriority_HigherPriorityTagWins(t *testing.T) {
	records := []taggedRecord{
		{title: "db-password", value: "staging-value", tags: []string{"staging"}},
		{title: "db-password", value: "prod-value", tags: []string{"prod"}},
	}
	items := resolveTagPriority(records, []string{"staging", "prod"}, "onepassword")
	require.Len(t, items, 1)
	assert.Equal(t, "prod-value", items[0].Value)
}

func TestResolveTagPriority_TieBreaksToLastDiscovered(t *testing.T) {
	records := []taggedRecord{
		{title: "db-password", value: "first", tags: []string{"prod"}},
		{title: "db-password", value: "second", tags: []string{"prod"}},
	}
	items := resolveTagPriority(records, []string{"prod"}, "onepassword")
	require.Len(t, items, 1)
	assert.Equal(t, "second", items[0].Value)
}

func TestResolveTagPriority_PreservesDiscoveryOrderOfTitles(t *testing.T) {
	records := []taggedRecord{
		{title: "b", value: "1"},
		{title: "a", value: "2"},
	}
	items := resolveTagPriority(records, nil, "keeper")
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].Name)
	assert.Equal(t, "a", items[1].Name)
}

func TestRunBounded_ReturnsFailingTaskError(t *testing.T) {
	boom := errors.New("boom")
	err := runBounded(context.Background(), 2, 5, func(ctx context.Context, i int) error {
		if i == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestRunBounded_PropagatesPerTaskContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runBounded(ctx, 1, 3, func(ctx context.Context, i int) error {
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}
