// Package registry is the admin-side entry point: issuing agent credentials
// and creating jobs. Jobs enter the lifecycle here in state new; everything
// after that belongs to the dispatch core.
package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"yarad/internal/domain"
	"yarad/internal/notify"
	"yarad/internal/ports"
)

type Service struct {
	agents ports.AgentRepository
	jobs   ports.JobRepository
}

func New(agents ports.AgentRepository, jobs ports.JobRepository) *Service {
	return &Service{agents: agents, jobs: jobs}
}

// RegisterAgent mints a fresh opaque credential and stores the agent. The
// credential is returned exactly once; it is not recoverable later through
// this API.
func (s *Service) RegisterAgent(ctx context.Context, name string) (domain.Agent, error) {
	if name == "" {
		return domain.Agent{}, fmt.Errorf("agent name is required")
	}
	credential := uuid.NewString()
	return s.agents.Create(ctx, name, credential)
}

// CreateJob stores a new job. The description must be a JSON object when
// present; a notify_email inside it must be the no_emails_needed sentinel or
// a structurally valid address, rejecting typos before a worker ever tries
// to deliver to them.
func (s *Service) CreateJob(ctx context.Context, description json.RawMessage, rules []byte) (int64, error) {
	if len(description) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(description, &fields); err != nil {
			return 0, fmt.Errorf("description is not a JSON object: %w", err)
		}
		if target := domain.NotifyTarget(description); target != "" &&
			target != notify.NoEmailsNeeded && !notify.ValidEmail(target) {
			return 0, fmt.Errorf("invalid notify_email %q", target)
		}
	}
	return s.jobs.CreateJob(ctx, description, rules)
}
