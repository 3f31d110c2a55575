package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newWorkflowExecutionID mints a workflow execution id in the same
// "<subject>-<epochMs>-<random>" shape agent.newExecutionID uses for
// per-invocation execution ids (spec §3).
func newWorkflowExecutionID(workflowID string) string {
	random := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%s-%d-%s", workflowID, time.Now().UnixMilli(), random[:12])
}
