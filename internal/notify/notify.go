// Package notify implements the NotificationService collaborator (spec
// §6): createApiBlocked and createHilApproval, surfaced to whichever
// backend the project is configured with.
//
// Grounded in the teacher's internal/escalate package (Escalator
// interface, Terminal/Slack/Webhook/Multi backends, FromConfig selection)
// generalized from "escalate a unit problem to the user" to the spec's
// two notification shapes.
package notify

import (
	"context"
	"fmt"

	"github.com/opensprint/core/internal/escalate"
)

// Service implements collab.NotificationService over an escalate.Escalator.
type Service struct {
	escalator escalate.Escalator
}

// New wraps an escalate.Escalator (terminal, Slack, webhook, or a Multi of
// several) as the NotificationService collaborator.
func New(e escalate.Escalator) *Service {
	return &Service{escalator: e}
}

// FromConfig builds a Service the same way the teacher's CLI wires its
// Escalator: one or more named backends, defaulting to terminal.
func FromConfig(cfg escalate.Config) (*Service, error) {
	e, err := escalate.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return New(e), nil
}

// CreateApiBlocked raises a blocking escalation when a provider's API
// becomes unusable (rate limited, unauthorized, out of credit), per spec
// §4.5 "Classifier for API-level errors ... emits an api_blocked
// notification".
func (s *Service) CreateApiBlocked(ctx context.Context, projectID, provider, code string) error {
	return s.escalator.Escalate(ctx, escalate.Escalation{
		Severity: escalate.SeverityBlocking,
		Unit:     projectID,
		Title:    fmt.Sprintf("Provider %s blocked: %s", provider, code),
		Message:  "Dispatch paused for this provider until it is cleared.",
		Context:  map[string]string{"provider": provider, "code": code},
	})
}

// CreateHilApproval raises a human-in-the-loop approval request, used by
// callers such as epic completion's deploy-on-epic gate.
func (s *Service) CreateHilApproval(ctx context.Context, projectID, taskID, reason string) error {
	return s.escalator.Escalate(ctx, escalate.Escalation{
		Severity: escalate.SeverityWarning,
		Unit:     projectID,
		Title:    "Approval requested",
		Message:  reason,
		Context:  map[string]string{"taskId": taskID},
	})
}
