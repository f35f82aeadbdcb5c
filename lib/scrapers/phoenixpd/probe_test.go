package phoenixpd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFirstMatchOrder(t *testing.T) {
	ctx := context.Background()

	hit := func(v string) func() (string, bool) {
		return func() (string, bool) { return v, true }
	}
	miss := func() (string, bool) { return "", false }

	value, name, ok := firstMatch(ctx, "control", []probe[string]{
		{name: "exact", run: miss},
		{name: "attribute", run: hit("from attribute")},
		{name: "fuzzy", run: hit("from fuzzy")},
	})
	require.True(t, ok)
	require.Equal(t, "from attribute", value)
	require.Equal(t, "attribute", name)
}

func TestFirstMatchExhausted(t *testing.T) {
	miss := func() (int, bool) { return 0, false }

	value, name, ok := firstMatch(context.Background(), "control", []probe[int]{
		{name: "a", run: miss},
		{name: "b", run: miss},
	})
	require.False(t, ok)
	require.Equal(t, 0, value)
	require.Equal(t, "", name)
}

func TestFirstMatchEmpty(t *testing.T) {
	_, _, ok := firstMatch[string](context.Background(), "control", nil)
	require.False(t, ok)
}
