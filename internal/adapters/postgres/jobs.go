package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"yarad/internal/domain"
)

// ListEligible returns every status=new job whose description carries a
// well-formed fileset_scan payload. A description that is valid JSON without
// the payload is simply not ready for dispatch; one that does not parse at
// all is worth a log line but is skipped the same way.
func (db *DB) ListEligible(ctx context.Context) ([]domain.AvailableJob, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, description FROM jobs WHERE status = 'new'`)
	if err != nil {
		return nil, fmt.Errorf("list eligible jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.AvailableJob
	for rows.Next() {
		var id int64
		var description []byte
		if err := rows.Scan(&id, &description); err != nil {
			return nil, fmt.Errorf("list eligible jobs: %w", err)
		}
		payload, eligibility := domain.ParseFilesetScan(description)
		switch eligibility {
		case domain.Eligible:
			out = append(out, domain.AvailableJob{ID: id, FilesetScan: payload})
		case domain.Corrupt:
			slog.Debug("skipping job with unparseable description", "job_id", id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list eligible jobs: %w", err)
	}
	return out, nil
}

// Claim transitions a job from new to assigned-to-agentID under an exclusive
// row lock. The catalog read that led here was unlocked and may be stale;
// the FOR UPDATE re-check is what makes exactly-one-winner hold. A job that
// vanished and a job another claimant already took are both plain rejections.
func (db *DB) Claim(ctx context.Context, agentID, jobID int64) (domain.Assignment, error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Assignment{}, fmt.Errorf("claim job %d: %w", jobID, err)
	}
	// Rollback after a successful commit is a no-op; this guarantees the row
	// lock is released on every exit path.
	defer tx.Rollback(ctx)

	var status domain.JobStatus
	var rules []byte
	err = tx.QueryRow(ctx, `
		SELECT status, rules FROM jobs WHERE id = $1 FOR UPDATE
	`, jobID).Scan(&status, &rules)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Assignment{}, nil
	}
	if err != nil {
		return domain.Assignment{}, fmt.Errorf("claim job %d: %w", jobID, err)
	}
	if status != domain.StatusNew {
		return domain.Assignment{}, nil
	}

	if _, err = tx.Exec(ctx, `
		UPDATE jobs SET status = 'assigned', agent_id = $1 WHERE id = $2
	`, agentID, jobID); err != nil {
		return domain.Assignment{}, fmt.Errorf("claim job %d: %w", jobID, err)
	}
	if err = tx.Commit(ctx); err != nil {
		return domain.Assignment{}, fmt.Errorf("claim job %d: commit: %w", jobID, err)
	}
	return domain.Assignment{Accepted: true, Rules: rules}, nil
}

// Details is an unlocked advisory read for the worker; staleness is fine,
// this is not a claim.
func (db *DB) Details(ctx context.Context, jobID int64) (bool, domain.JobDetails, error) {
	var description, rules []byte
	err := db.Pool.QueryRow(ctx, `
		SELECT description, rules FROM jobs WHERE id = $1
	`, jobID).Scan(&description, &rules)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, domain.JobDetails{}, nil
	}
	if err != nil {
		return false, domain.JobDetails{}, fmt.Errorf("job %d details: %w", jobID, err)
	}
	return true, domain.JobDetails{
		NotifyEmail: domain.NotifyTarget(description),
		Rules:       rules,
	}, nil
}

// SaveResults merges a completion report into the job row under the same
// row-lock discipline as Claim. The report is validated before any database
// interaction so an incomplete submission cannot corrupt an existing record.
func (db *DB) SaveResults(ctx context.Context, agentID int64, report domain.CompletionReport, outcome domain.JobStatus) error {
	if err := report.Validate(); err != nil {
		return err
	}
	if !outcome.Terminal() {
		return fmt.Errorf("save results: outcome must be done or error, got %q", outcome)
	}
	jobID := *report.JobID

	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("save results for job %d: %w", jobID, err)
	}
	defer tx.Rollback(ctx)

	var description []byte
	err = tx.QueryRow(ctx, `
		SELECT description FROM jobs WHERE id = $1 FOR UPDATE
	`, jobID).Scan(&description)
	if errors.Is(err, pgx.ErrNoRows) {
		// The job was removed out-of-band; there is no record to merge into.
		// Accepted data-loss edge, not an error.
		slog.Warn("discarding completion report for vanished job",
			"job_id", jobID, "agent_id", agentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("save results for job %d: %w", jobID, err)
	}

	merged, err := domain.MergeDescription(description, report)
	if err != nil {
		// Unattended path: a description we cannot parse means the report is
		// dropped, logged, and the caller carries on.
		slog.Error("dropping completion report, description merge failed",
			"job_id", jobID, "err", err)
		return nil
	}
	hashes, err := report.Hashes()
	if err != nil {
		slog.Error("dropping completion report, hash list unparseable",
			"job_id", jobID, "err", err)
		return nil
	}

	// Re-submission must neither duplicate association rows nor fail.
	for _, hash := range hashes {
		if _, err = tx.Exec(ctx, `
			INSERT INTO jobs_hashes (job_id, hash_md5)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, jobID, hash); err != nil {
			return fmt.Errorf("save results for job %d: insert hash: %w", jobID, err)
		}
	}

	if _, err = tx.Exec(ctx, `
		UPDATE jobs
		SET description = $1, results = $2, matched_files = $3, status = $4, finish_time = $5
		WHERE id = $6
	`, merged, *report.YaraResults, *report.MatchedFiles, outcome, *report.FinishTime, jobID); err != nil {
		return fmt.Errorf("save results for job %d: %w", jobID, err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("save results for job %d: commit: %w", jobID, err)
	}
	return nil
}

// CreateJob is the external entry point of the lifecycle: jobs always start
// out status=new.
func (db *DB) CreateJob(ctx context.Context, description, rules []byte) (int64, error) {
	if len(description) == 0 {
		description = []byte("{}")
	}
	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO jobs (description, rules)
		VALUES ($1, $2)
		RETURNING id
	`, description, rules).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create job: %w", err)
	}
	return id, nil
}
