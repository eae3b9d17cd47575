package taskname

const (
	// Workflow tasks
	WorkflowTick = "workflow:tick"
)
