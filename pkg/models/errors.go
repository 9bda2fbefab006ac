package models

import "errors"

// ErrNotFound is returned for unknown or stale identifiers: plans, tasks,
// subagents and mail items.
var ErrNotFound = errors.New("not found")
