package domain

import "encoding/json"

// Eligibility classifies a job description for dispatch. The catalog filter
// needs "not yet ready" and "broken JSON" kept apart so the latter can be
// logged instead of silently skipped.
type Eligibility int

const (
	Eligible   Eligibility = iota // well-formed, fileset_scan present
	Ineligible                    // well-formed JSON but no fileset_scan yet
	Corrupt                       // description is not parseable JSON
)

const (
	fieldFilesetScan = "fileset_scan"
	fieldNotifyEmail = "notify_email"
)

// ParseFilesetScan extracts the fileset_scan payload from a raw description.
// The payload comes back verbatim, nested structure untouched.
func ParseFilesetScan(description []byte) (json.RawMessage, Eligibility) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(description, &fields); err != nil {
		return nil, Corrupt
	}
	payload, ok := fields[fieldFilesetScan]
	if !ok {
		return nil, Ineligible
	}
	return payload, Eligible
}

// NotifyTarget extracts description.notify_email, empty when absent or when
// the description does not parse.
func NotifyTarget(description []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(description, &fields); err != nil {
		return ""
	}
	raw, ok := fields[fieldNotifyEmail]
	if !ok {
		return ""
	}
	var target string
	if err := json.Unmarshal(raw, &target); err != nil {
		return ""
	}
	return target
}
