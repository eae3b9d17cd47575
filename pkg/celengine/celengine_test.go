package celengine

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func attrs() map[string]any {
	return map[string]any{
		"first_name":        "Ada",
		"headline":          "CTO at Analytical Engines",
		"connections_count": int64(640),
		"network_distance":  "DISTANCE_2",
	}
}

func TestEvaluate(t *testing.T) {
	ok, err := Evaluate(`headline.contains("CTO") && connections_count > 500`, attrs())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Evaluate(`network_distance == "DISTANCE_1"`, attrs())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(`first_name != ""`, attrs()))
	require.Error(t, Validate(`unknown_field == 1`, attrs()))
	require.Error(t, Validate(`connections_count + 1`, attrs()))
	require.Error(t, Validate(`headline.contains(`, attrs()))
}

func TestProgram_Cached(t *testing.T) {
	a, err := Program(`connections_count >= 100`, attrs())
	require.NoError(t, err)
	b, err := Program(`connections_count >= 100`, attrs())
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestEnvKey_StableAcrossOrder(t *testing.T) {
	a := map[string]any{"a": "x", "b": int64(1)}
	b := map[string]any{"b": int64(2), "a": "y"}
	require.Equal(t, envKey(a), envKey(b))
	require.NotEqual(t, envKey(a), envKey(map[string]any{"a": int64(1), "b": int64(1)}))
}
