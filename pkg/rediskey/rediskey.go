package rediskey

import "fmt"

const LockPrefix = "lock"

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildLockKey returns "lock:{name}"
func BuildLockKey(name string) string {
	return NamespaceKey(LockPrefix, name)
}

// BuildWorkflowLockName returns "workflow:{workflowID}", used with BuildLockKey.
func BuildWorkflowLockName(workflowID string) string {
	return NamespaceKey("workflow", workflowID)
}
