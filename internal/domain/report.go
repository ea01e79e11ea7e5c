package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CompletionReport is the structured result an agent submits after running a
// job. Field names follow the agent wire contract. Pointer and nil-able
// fields distinguish "absent" from zero values so validation can reject an
// incomplete report before any database interaction.
type CompletionReport struct {
	JobID         *int64          `json:"job_id"`
	FinishTime    *time.Time      `json:"finish_time"`
	FilesetScan   json.RawMessage `json:"fileset_scan"`
	ExecutionTime *float64        `json:"execution_time"`
	YaraErrors    []string        `json:"yara_errors"`
	YaraWarnings  []string        `json:"yara_warnings"`
	MatchedFiles  *int64          `json:"matched_files"`
	MD5Results    *string         `json:"md5_results"` // JSON-encoded list of hashes, kept raw
	YaraResults   *string         `json:"yara_results"`
}

// ValidationError rejects a completion report that is missing required
// fields. No mutation happens once this is returned.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("completion report missing fields: %s", strings.Join(e.Missing, ", "))
}

// Validate checks the required-field contract. Empty lists are fine; absent
// lists are not.
func (r CompletionReport) Validate() error {
	var missing []string
	if r.JobID == nil {
		missing = append(missing, "job_id")
	}
	if r.FinishTime == nil {
		missing = append(missing, "finish_time")
	}
	if r.FilesetScan == nil {
		missing = append(missing, "fileset_scan")
	}
	if r.ExecutionTime == nil {
		missing = append(missing, "execution_time")
	}
	if r.YaraErrors == nil {
		missing = append(missing, "yara_errors")
	}
	if r.YaraWarnings == nil {
		missing = append(missing, "yara_warnings")
	}
	if r.MatchedFiles == nil {
		missing = append(missing, "matched_files")
	}
	if r.MD5Results == nil {
		missing = append(missing, "md5_results")
	}
	if r.YaraResults == nil {
		missing = append(missing, "yara_results")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Hashes decodes the md5_results payload into the hash list to associate
// with the job.
func (r CompletionReport) Hashes() ([]string, error) {
	if r.MD5Results == nil {
		return nil, fmt.Errorf("md5_results not set")
	}
	var hashes []string
	if err := json.Unmarshal([]byte(*r.MD5Results), &hashes); err != nil {
		return nil, fmt.Errorf("parse md5_results: %w", err)
	}
	return hashes, nil
}

// MergeDescription folds the report's ancillary outcome fields into an
// existing job description. The original fileset_scan payload and any other
// keys survive untouched; execution_time, yara_errors and yara_warnings are
// added or overwritten.
func MergeDescription(description []byte, r CompletionReport) ([]byte, error) {
	fields := map[string]any{}
	if len(description) > 0 {
		if err := json.Unmarshal(description, &fields); err != nil {
			return nil, fmt.Errorf("parse job description: %w", err)
		}
	}
	fields["execution_time"] = r.ExecutionTime
	fields["yara_errors"] = r.YaraErrors
	fields["yara_warnings"] = r.YaraWarnings
	return json.Marshal(fields)
}
