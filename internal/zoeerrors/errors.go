// Package zoeerrors defines the typed error kinds passed between the
// backend abstraction layer and the scheduler, replacing the original
// implementation's exception hierarchy with explicit Go error values.
package zoeerrors

import "fmt"

// NotEnoughResources means the backend rejected a spawn because the
// underlying platform had no room for it right now. The scheduler treats
// this as retryable: the execution goes back on the queue.
type NotEnoughResources struct {
	Reason string
}

func (e *NotEnoughResources) Error() string {
	return fmt.Sprintf("not enough resources: %s", e.Reason)
}

// BackendFatal means the backend attempt cannot succeed no matter how many
// times it is retried (bad image, malformed service description, backend
// misconfiguration). The scheduler drops the execution.
type BackendFatal struct {
	Reason string
}

func (e *BackendFatal) Error() string {
	return fmt.Sprintf("fatal backend error: %s", e.Reason)
}

// NotFound means a backend-level object (container, replication controller,
// node) referenced by ID no longer exists.
type NotFound struct {
	Kind string
	ID   string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// BackendUnavailable means the backend's control plane could not be
// reached at all (connection refused, timeout). Distinct from
// NotEnoughResources: the backend never got a chance to answer.
type BackendUnavailable struct {
	Reason string
}

func (e *BackendUnavailable) Error() string {
	return fmt.Sprintf("backend unavailable: %s", e.Reason)
}

// SchemaMismatch means the database schema version found in
// public.versions does not match the version this binary expects.
type SchemaMismatch struct {
	Want, Found int
}

func (e *SchemaMismatch) Error() string {
	return fmt.Sprintf("sql database schema version mismatch: need %d, found %d", e.Want, e.Found)
}

// PolicyUnsupported means the configured scheduler policy name is not one
// this binary implements.
type PolicyUnsupported struct {
	Policy string
}

func (e *PolicyUnsupported) Error() string {
	return fmt.Sprintf("unsupported scheduler policy: %s", e.Policy)
}
