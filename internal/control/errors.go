package control

import (
	"fmt"
	"strings"

	"dialer-platform/internal/readiness"
)

// NotReadyError blocks a start when pre-flight checks fail. It carries
// the failed checks so the API can show remediation steps.
type NotReadyError struct {
	Checks []readiness.Check
}

func (e *NotReadyError) Error() string {
	ids := make([]string, 0, len(e.Checks))
	for _, c := range e.Checks {
		ids = append(ids, c.ID)
	}
	return "control: broadcast not ready: " + strings.Join(ids, ", ")
}

// ConfirmationRequiredError asks the operator to confirm a risky start:
// a large queue on a small caller-id pool burns number reputation fast.
type ConfirmationRequiredError struct {
	PendingLeads  int
	UsableNumbers int
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("control: confirmation required: %d pending leads on %d numbers",
		e.PendingLeads, e.UsableNumbers)
}

// PartialFailureError reports an operation that succeeded for some
// targets and not others, with enough detail to retry the rest.
type PartialFailureError struct {
	Op        string
	Succeeded int
	Failed    int
	Problems  []string
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("control: %s partially failed: %d ok, %d failed", e.Op, e.Succeeded, e.Failed)
}
