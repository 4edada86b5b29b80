package state

// Status is the closed set of deployment lifecycle phases. Engine code
// must never compare statuses as raw strings; Status only crosses the JSON
// boundary through (Un)MarshalJSON.
type Status string

const (
	StatusUnknown Status = "unknown"

	StatusInitialized Status = "initialized"

	StatusDeployInProgress Status = "deploy_in_progress"
	StatusDatabaseReady    Status = "database_ready"
	StatusDeploymentFailed Status = "deployment_failed"

	StatusStopInProgress Status = "stop_in_progress"
	StatusStopped        Status = "stopped"
	StatusStopFailed     Status = "stop_failed"

	StatusStartInProgress Status = "start_in_progress"
	StatusStarted         Status = "started"
	StatusStartFailed     Status = "start_failed"

	StatusDestroyInProgress Status = "destroy_in_progress"
	StatusDestroyed         Status = "destroyed"
	StatusDestroyFailed     Status = "destroy_failed"

	StatusDatabaseConnectionFailed Status = "database_connection_failed"
)

// validStatuses is the closed set consulted by Status.Valid.
var validStatuses = map[Status]bool{
	StatusUnknown:                  true,
	StatusInitialized:              true,
	StatusDeployInProgress:         true,
	StatusDatabaseReady:            true,
	StatusDeploymentFailed:         true,
	StatusStopInProgress:           true,
	StatusStopped:                  true,
	StatusStopFailed:               true,
	StatusStartInProgress:          true,
	StatusStarted:                  true,
	StatusStartFailed:              true,
	StatusDestroyInProgress:        true,
	StatusDestroyed:                true,
	StatusDestroyFailed:            true,
	StatusDatabaseConnectionFailed: true,
}

// Valid reports whether s belongs to the closed status set.
func (s Status) Valid() bool {
	return validStatuses[s]
}

// Retryable reports whether the operation that led to this status can be
// retried directly (the *_failed statuses plus database_connection_failed).
func (s Status) Retryable() bool {
	switch s {
	case StatusStartFailed, StatusStopFailed, StatusDeploymentFailed,
		StatusDestroyFailed, StatusDatabaseConnectionFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is expected from s.
func (s Status) Terminal() bool {
	return s == StatusDestroyed
}

// transitions is the closed adjacency list of the state machine from §3.
var transitions = map[Status][]Status{
	StatusInitialized:      {StatusDeployInProgress},
	StatusDeployInProgress: {StatusDatabaseReady, StatusDeploymentFailed},

	StatusDatabaseReady: {StatusStopInProgress, StatusDestroyInProgress},

	StatusStopInProgress: {StatusStopped, StatusStopFailed},
	StatusStopped:        {StatusStartInProgress, StatusDestroyInProgress},
	StatusStopFailed:     {StatusStopInProgress, StatusDestroyInProgress},

	StatusStartInProgress: {StatusStarted, StatusStartFailed},
	StatusStarted:         {StatusDatabaseReady, StatusStartFailed},
	StatusStartFailed:     {StatusStartInProgress, StatusDestroyInProgress},

	StatusDeploymentFailed:         {StatusDeployInProgress, StatusDestroyInProgress},
	StatusDatabaseConnectionFailed: {StatusStopInProgress, StatusDestroyInProgress, StatusStartInProgress},

	StatusDestroyInProgress: {StatusDestroyed, StatusDestroyFailed},
	StatusDestroyFailed:     {StatusDestroyInProgress},
}

// CanTransition reports whether moving from s to next is a permitted edge
// in the state machine. The health engine's status-correction policy
// bypasses this check deliberately (see internal/health); it is enforced
// by the lifecycle engines on every operator-driven transition.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
