package domain

import (
	"encoding/json"
	"time"
)

// Core domain models. Wire shapes for the agent API live in the http adapter;
// keep these decoupled where helpful.

// JobStatus is the job lifecycle state. Transitions only move forward:
//
//	new ──► assigned ──► done
//	                └──► error
//
// A job is never reassigned once it leaves "new".
type JobStatus string

const (
	StatusNew      JobStatus = "new"
	StatusAssigned JobStatus = "assigned"
	StatusDone     JobStatus = "done"
	StatusError    JobStatus = "error"
)

// Terminal reports whether s accepts no further transitions.
func (s JobStatus) Terminal() bool { return s == StatusDone || s == StatusError }

type Agent struct {
	ID        int64
	Name      string
	Auth      string // opaque credential token
	CreatedAt time.Time
}

type Job struct {
	ID           int64
	Status       JobStatus
	Description  []byte // JSON document, fileset_scan payload plus ancillary keys
	Rules        []byte // execution policy, handed verbatim to the assigned agent
	AgentID      *int64
	Results      *string
	MatchedFiles *int64
	FinishTime   *time.Time
	CreatedAt    time.Time
}

// AvailableJob is a catalog entry offered to polling agents.
type AvailableJob struct {
	ID          int64           `json:"id"`
	FilesetScan json.RawMessage `json:"fileset_scan"`
}

// Assignment is the outcome of a claim attempt. A lost race and a vanished
// job are deliberately indistinguishable: both come back Accepted=false.
type Assignment struct {
	Accepted bool
	Rules    []byte
}

// JobDetails is advisory execution metadata for a worker; reads are unlocked
// and may be stale.
type JobDetails struct {
	NotifyEmail string // empty when the job has no notify target
	Rules       []byte
}
