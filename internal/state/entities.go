// Package state is Zoe's persistent state store (SS): typed accessors over
// a per-deployment Postgres schema for users, roles, quotas, executions,
// services, and ports.
package state

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuthSource enumerates where a User's credentials are verified.
type AuthSource string

const (
	AuthSourceInternal AuthSource = "internal"
	AuthSourceTextFile AuthSource = "textfile"
	AuthSourcePAM      AuthSource = "pam"
	AuthSourceLDAP     AuthSource = "ldap"
	AuthSourceLDAPSASL AuthSource = "ldap+sasl"
)

// User is an account that can submit executions.
type User struct {
	ID         int64
	Username   string
	Email      string
	FSUid      int
	Enabled    bool
	Priority   int
	AuthSource AuthSource
	RoleID     int64
	QuotaID    int64
}

// Role is a named bundle of capability flags.
type Role struct {
	ID                      int64
	Name                    string
	CanSeeStatus            bool
	CanChangeConfig         bool
	CanOperateOthers        bool
	CanDeleteExecutions     bool
	CanAccessAPI            bool
	CanCustomizeResources   bool
	CanAccessFullZAppShop   bool
}

// Quota bounds how much of the cluster a user (or group of users sharing a
// quota) may consume at once.
type Quota struct {
	ID                    int64
	Name                  string
	ConcurrentExecutions  int
	Cores                 int
	MemoryBytes           int64
	RuntimeLimitHours     int
}

// ExecutionStatus is a node in the scheduler's execution state machine
// (spec §4.6).
type ExecutionStatus string

const (
	ExecutionSubmitted  ExecutionStatus = "submitted"
	ExecutionQueued     ExecutionStatus = "queued"
	ExecutionStarting   ExecutionStatus = "starting"
	ExecutionRunning    ExecutionStatus = "running"
	ExecutionCleaningUp ExecutionStatus = "cleaning up"
	ExecutionTerminated ExecutionStatus = "terminated"
	ExecutionError      ExecutionStatus = "error"
	ExecutionFinished   ExecutionStatus = "finished"
)

// Execution is a user submission: a collection of services scheduled and
// torn down as a unit.
type Execution struct {
	ID                  int64
	Name                string
	OwnerID             int64
	Description         []byte // opaque application JSON, see internal/appdesc
	Status              ExecutionStatus
	Priority            int
	Size                float64
	ServicesCount       int
	RunningServicesCount int
	TimeSubmit          time.Time
	TimeStart           *time.Time
	TimeFinish          *time.Time

	// ProgressSequence and LastTimeScheduled are the scheduler's private
	// size-refresh bookkeeping (spec §4.6, "Progress accounting"). They are
	// not persisted; they live only for the lifetime of the in-memory
	// Execution value the scheduler holds.
	ProgressSequence  []float64
	LastTimeScheduled time.Time
	OriginalSize      float64

	// TerminationLock is acquired try-lock by the scheduler loop and
	// full-lock by termination workers (spec §9, "termination_lock on the
	// Execution value").
	TerminationLock sync.Mutex
}

// AllServicesActive reports whether every service belonging to this
// execution (as enumerated by the caller) is in its running backend state.
// The execution itself doesn't track its services; callers pass the
// current service snapshot.
func AllServicesActive(services []Service) bool {
	for _, s := range services {
		if s.BackendStatus != BackendStatusStarted {
			return false
		}
	}
	return true
}

// EssentialServicesRunning reports whether every essential service in the
// given slice has reached the started backend state.
func EssentialServicesRunning(services []Service) bool {
	for _, s := range services {
		if s.IsEssential && s.BackendStatus != BackendStatusStarted {
			return false
		}
	}
	return true
}

// BackendStatus mirrors the lifecycle a backend reports for a running
// container/pod.
type BackendStatus string

const (
	BackendStatusUndefined BackendStatus = "undefined"
	BackendStatusStart     BackendStatus = "start"
	BackendStatusStarted   BackendStatus = "started"
	BackendStatusDie       BackendStatus = "die"
	BackendStatusDestroy   BackendStatus = "destroy"
)

// ResourceBound is a min/max pair, used for both memory (bytes) and cores
// (fractional CPU count).
type ResourceBound struct {
	Min float64
	Max float64
}

// ResourceReservation is the resource ask attached to a Service.
type ResourceReservation struct {
	Memory ResourceBound
	Cores  ResourceBound
	ShmMB  int64
}

// EnvVar is a single (key, value) environment entry.
type EnvVar struct {
	Key   string
	Value string
}

// Volume describes one volume to mount into a service's container.
type Volume struct {
	HostPath  string
	MountPath string
	ReadOnly  bool
}

// Service is one long-lived container process belonging to an Execution.
type Service struct {
	ID                  int64
	ExecutionID         int64
	Name                string
	UniqueName          string
	DNSName             string
	IsEssential         bool
	IsMonitor           bool
	ResourceReservation ResourceReservation
	Environment         []EnvVar
	Volumes             []Volume
	Ports               []Port
	Image               string
	Command             string
	Network             string
	BackendID           string
	BackendHost         string
	BackendStatus       BackendStatus
}

// Port is one exposed port on a Service.
type Port struct {
	InternalNumber int
	Protocol       string
	ExternalNumber int
	Name           string
	IsMainEndpoint bool
}

// NewID produces a fresh random UUID string. The tables themselves use
// serial integer primary keys.
func NewID() string {
	return uuid.NewString()
}
