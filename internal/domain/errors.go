package domain

// ErrNotAuthorized is the fail-closed credential outcome: zero matches and
// ambiguous matches both land here.
var ErrNotAuthorized = errString("agent not authorized")

// ErrNotFound covers lookups of jobs that no longer exist.
var ErrNotFound = errString("not found")

type errString string

func (e errString) Error() string { return string(e) }
