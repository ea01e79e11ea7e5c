// Package dispatch orchestrates the agent-facing job lifecycle: authorize,
// list, claim, submit. The correctness-critical locking lives in the
// repository; this layer sequences calls and fans out notifications.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"yarad/internal/domain"
	"yarad/internal/notify"
	"yarad/internal/ports"
)

type Service struct {
	agents   ports.AgentRepository
	jobs     ports.JobRepository
	notifier ports.Notifier
}

func New(agents ports.AgentRepository, jobs ports.JobRepository, notifier ports.Notifier) *Service {
	return &Service{agents: agents, jobs: jobs, notifier: notifier}
}

// Authorize resolves an opaque credential to an agent identity. Advisory
// authentication: it gates which identity the rest of the pipeline trusts,
// nothing more.
func (s *Service) Authorize(ctx context.Context, credential string) (int64, error) {
	return s.agents.Resolve(ctx, credential)
}

func (s *Service) ListJobs(ctx context.Context) ([]domain.AvailableJob, error) {
	return s.jobs.ListEligible(ctx)
}

func (s *Service) JobDetails(ctx context.Context, jobID int64) (bool, domain.JobDetails, error) {
	return s.jobs.Details(ctx, jobID)
}

// Claim races the agent against every other concurrent claimant for jobID.
func (s *Service) Claim(ctx context.Context, agentID, jobID int64) (domain.Assignment, error) {
	a, err := s.jobs.Claim(ctx, agentID, jobID)
	if err != nil {
		return domain.Assignment{}, err
	}
	if a.Accepted {
		slog.Info("job assigned", "job_id", jobID, "agent_id", agentID)
	}
	return a, nil
}

// Submit ingests a completion report and, when the job names a notify
// target, mails the interested party. Notification failure never fails the
// submission.
func (s *Service) Submit(ctx context.Context, agentID int64, report domain.CompletionReport, outcome domain.JobStatus) error {
	if err := s.jobs.SaveResults(ctx, agentID, report, outcome); err != nil {
		return err
	}
	// Validation passed inside SaveResults, so the job id is present.
	s.notifyFinished(ctx, *report.JobID, outcome)
	return nil
}

func (s *Service) notifyFinished(ctx context.Context, jobID int64, outcome domain.JobStatus) {
	found, d, err := s.jobs.Details(ctx, jobID)
	if err != nil {
		slog.Warn("skipping notification, detail fetch failed", "job_id", jobID, "err", err)
		return
	}
	if !found {
		return
	}
	to := d.NotifyEmail
	if to != "" && to != notify.NoEmailsNeeded && !notify.ValidEmail(to) {
		slog.Warn("skipping notification, invalid target", "job_id", jobID, "to", to)
		return
	}
	subject := fmt.Sprintf("Scan job #%d finished: %s", jobID, outcome)
	body := fmt.Sprintf("Scan job #%d completed with status %q.\n", jobID, outcome)
	if !s.notifier.Send(to, subject, body) {
		slog.Warn("notification not delivered", "job_id", jobID, "to", to)
	}
}
