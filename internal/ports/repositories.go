package ports

import (
	"context"

	"yarad/internal/domain"
)

// AgentRepository resolves and issues agent credentials.
type AgentRepository interface {
	// Resolve maps an opaque credential to an agent id. Anything other than
	// exactly one match is domain.ErrNotAuthorized.
	Resolve(ctx context.Context, credential string) (agentID int64, err error)
	// Create registers a new agent with the given credential token.
	Create(ctx context.Context, name, credential string) (domain.Agent, error)
}

// JobRepository is the dispatch core: catalog reads plus the two row-locked
// mutation protocols (claim, result ingestion).
type JobRepository interface {
	// ListEligible returns every status=new job whose description carries a
	// well-formed fileset_scan payload. Ordering is unspecified.
	ListEligible(ctx context.Context) ([]domain.AvailableJob, error)

	// Claim atomically transitions jobID from new to assigned-to-agentID.
	// Exactly one concurrent claimant wins; everyone else gets
	// Accepted=false, as does a claim on a job that vanished.
	Claim(ctx context.Context, agentID, jobID int64) (domain.Assignment, error)

	// Details is an unlocked advisory read; found=false when the job is gone.
	Details(ctx context.Context, jobID int64) (found bool, d domain.JobDetails, err error)

	// SaveResults validates report and merges it into the job row under an
	// exclusive row lock, setting status to outcome. A vanished job is a
	// logged no-op, not an error.
	SaveResults(ctx context.Context, agentID int64, report domain.CompletionReport, outcome domain.JobStatus) error

	// CreateJob inserts a status=new job; the external entry point of the
	// lifecycle.
	CreateJob(ctx context.Context, description, rules []byte) (jobID int64, err error)
}
