package rediskey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	require.Equal(t, "lock:workflow:42", BuildLockKey(BuildWorkflowLockName("42")))
	require.Equal(t, "a:b", NamespaceKey("a", "b"))
}
