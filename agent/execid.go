package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newExecutionID mints an executionId in the `<agentName>-<epochMs>-<random>`
// format spec §3 mandates (and the literal scenario in spec §8 checks
// against `/^echo-\d+-[a-z0-9]+$/`). The random suffix is a UUIDv4 with its
// dashes stripped, which is already lowercase hex — alnum, matching the
// regex without further encoding.
func newExecutionID(agentName string) string {
	random := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%s-%d-%s", agentName, time.Now().UnixMilli(), random[:12])
}
