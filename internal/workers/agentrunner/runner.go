package agentrunner

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"yarad/internal/domain"
)

// ScanProcessor executes one claimed scan job: the rules blob and the
// fileset_scan payload in, the raw scan outcome out.
type ScanProcessor interface {
	Process(ctx context.Context, rules []byte, filesetScan json.RawMessage) (ScanResult, error)
}

// ScanResult is the raw outcome of a scan run, before it is packaged into a
// completion report.
type ScanResult struct {
	YaraResults  string
	Hashes       []string
	MatchedFiles int64
	Errors       []string
	Warnings     []string
}

// NoopProcessor reports a clean empty scan without doing work. Replace with
// a real scanner binding.
type NoopProcessor struct{}

func (NoopProcessor) Process(ctx context.Context, rules []byte, filesetScan json.RawMessage) (ScanResult, error) {
	select {
	case <-ctx.Done():
		return ScanResult{}, ctx.Err()
	case <-time.After(150 * time.Millisecond):
	}
	return ScanResult{YaraResults: ""}, nil
}

// Run starts worker goroutines that poll the dispatcher, claim jobs and
// submit completion reports. A rejected claim just means another agent won
// the race; the worker moves on to the next catalog entry.
func Run(ctx context.Context, client *Client, processor ScanProcessor, concurrency int, pollInterval time.Duration) {
	if concurrency < 1 {
		return
	}
	jobsCh := make(chan domain.AvailableJob, concurrency)

	// dispatcher loop
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(jobsCh)
				return
			case <-ticker.C:
				jobs, err := client.ListJobs(ctx)
				if err != nil {
					slog.Warn("job poll failed", "err", err)
					continue
				}
				for _, job := range jobs {
					select {
					case jobsCh <- job:
					case <-ctx.Done():
						close(jobsCh)
						return
					}
				}
			}
		}
	}()

	// workers
	for i := 0; i < concurrency; i++ {
		go func(idx int) {
			for job := range jobsCh {
				runOne(ctx, client, processor, job, idx)
			}
		}(i)
	}
}

func runOne(ctx context.Context, client *Client, processor ScanProcessor, job domain.AvailableJob, worker int) {
	accepted, rules, err := client.Claim(ctx, job.ID)
	if err != nil {
		slog.Warn("claim attempt failed", "worker", worker, "job_id", job.ID, "err", err)
		return
	}
	if !accepted {
		return
	}

	started := time.Now()
	result, err := processor.Process(ctx, rules, job.FilesetScan)
	outcome := domain.StatusDone
	if err != nil {
		outcome = domain.StatusError
		result.Errors = append(result.Errors, err.Error())
		slog.Warn("scan failed", "worker", worker, "job_id", job.ID, "err", err)
	}

	report := BuildReport(job, started, result)
	if err := client.Submit(ctx, report, outcome); err != nil {
		slog.Error("could not submit results", "worker", worker, "job_id", job.ID, "err", err)
		return
	}
	slog.Info("job finished", "worker", worker, "job_id", job.ID, "status", outcome)
}

// BuildReport packages a scan outcome into the completion report the
// dispatcher's required-field contract expects. Every field is populated
// even for a failed run; lists stay empty rather than absent.
func BuildReport(job domain.AvailableJob, started time.Time, result ScanResult) domain.CompletionReport {
	if result.Errors == nil {
		result.Errors = []string{}
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}
	if result.Hashes == nil {
		result.Hashes = []string{}
	}
	hashes, _ := json.Marshal(result.Hashes)
	md5Results := string(hashes)

	finish := time.Now()
	execution := finish.Sub(started).Seconds()
	return domain.CompletionReport{
		JobID:         &job.ID,
		FinishTime:    &finish,
		FilesetScan:   job.FilesetScan,
		ExecutionTime: &execution,
		YaraErrors:    result.Errors,
		YaraWarnings:  result.Warnings,
		MatchedFiles:  &result.MatchedFiles,
		MD5Results:    &md5Results,
		YaraResults:   &result.YaraResults,
	}
}
