// Package appdesc parses the opaque execution-description JSON an
// application submission carries (spec §6) into a typed model, tolerating
// unknown fields rather than rejecting them. Unknown per-process fields are
// preserved in Process.Unknown; unknown top-level fields are dropped.
package appdesc

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Port describes one port a process exposes.
type Port struct {
	Name           string `json:"name"`
	Protocol       string `json:"protocol"`
	PortNumber     int    `json:"port_number"`
	Path           string `json:"path,omitempty"`
	IsMainEndpoint bool   `json:"is_main_endpoint,omitempty"`
}

// RequiredResources is a process's resource ask, as expressed in the
// description (memory only is referenced by the core per spec §6; cores
// are folded in here too since the Swarm/Kubernetes backends both need
// them and the field shape is identical).
type RequiredResources struct {
	Memory float64 `json:"memory"`
	Cores  float64 `json:"cores,omitempty"`
}

// EnvEntry is one [key, value] environment pair, matching the
// description's `[[k, v], ...]` encoding.
type EnvEntry [2]string

// Process is one service within an application description.
type Process struct {
	Name               string     `json:"name"`
	DockerImage        string     `json:"docker_image"`
	Monitor            bool       `json:"monitor,omitempty"`
	RequiredResources  RequiredResources `json:"required_resources"`
	Ports              []Port     `json:"ports,omitempty"`
	Environment        []EnvEntry `json:"environment,omitempty"`
	Command            *string    `json:"command,omitempty"`
	Essential          bool       `json:"essential"`
	Network            *string    `json:"network,omitempty"`
	Volumes            []string   `json:"volumes,omitempty"`
	WorkDir            *string    `json:"work_dir,omitempty"`
	ShmMB              int64      `json:"shm,omitempty"`

	// Unknown carries any fields not modeled above so re-serialization
	// (e.g. by an external collaborator) doesn't silently drop data.
	Unknown map[string]json.RawMessage `json:"-"`
}

// Description is the typed, tolerant model of an execution's submitted
// application description.
type Description struct {
	Name            string    `json:"name"`
	Version         int       `json:"version"`
	WillEnd         bool      `json:"will_end,omitempty"`
	Priority        int       `json:"priority,omitempty"`
	RequiresBinary  bool      `json:"requires_binary,omitempty"`
	Processes       []Process `json:"processes"`
}

// Parse decodes raw application-description JSON. Unknown top-level fields
// are tolerated (encoding/json already ignores them); per-process unknown
// fields are captured into Process.Unknown via a two-pass decode.
func Parse(raw []byte) (Description, error) {
	var d Description
	if err := json.Unmarshal(raw, &d); err != nil {
		return Description{}, fmt.Errorf("decoding application description: %w", err)
	}

	var wire struct {
		Processes []map[string]json.RawMessage `json:"processes"`
	}
	if err := json.Unmarshal(raw, &wire); err == nil {
		known := knownProcessFields()
		for i := range d.Processes {
			if i >= len(wire.Processes) {
				break
			}
			unknown := map[string]json.RawMessage{}
			for k, v := range wire.Processes[i] {
				if !known[k] {
					unknown[k] = v
				}
			}
			if len(unknown) > 0 {
				d.Processes[i].Unknown = unknown
			}
		}
	}

	return d, nil
}

func knownProcessFields() map[string]bool {
	return map[string]bool{
		"name": true, "docker_image": true, "monitor": true, "required_resources": true,
		"ports": true, "environment": true, "command": true, "essential": true,
		"network": true, "volumes": true, "work_dir": true, "shm": true,
	}
}

// ServicesCount is the number of processes in the description, used by the
// scheduler's progress accounting (spec §4.6).
func (d Description) ServicesCount() int {
	return len(d.Processes)
}

// Substitution tokens recognized in environment values and commands
// (spec §6).
const (
	tokenNamePrefix       = "{name_prefix}"
	tokenExecutionID      = "{execution_id}"
	tokenUserID           = "{user_id}"
	tokenUserName         = "{user_name}"
	tokenApplicationBinary = "{application_binary}"
)

// Substitutions holds the concrete values each token resolves to for one
// execution.
type Substitutions struct {
	NamePrefix        string
	ExecutionID       string
	UserID            string
	UserName          string
	ApplicationBinary string
}

// Apply replaces every recognized substitution token in text with its
// concrete value for this execution.
func (s Substitutions) Apply(text string) string {
	replacer := strings.NewReplacer(
		tokenNamePrefix, s.NamePrefix,
		tokenExecutionID, s.ExecutionID,
		tokenUserID, s.UserID,
		tokenUserName, s.UserName,
		tokenApplicationBinary, s.ApplicationBinary,
	)
	return replacer.Replace(text)
}

// ApplyToEnv returns a copy of env with substitutions applied to every
// value (keys are left untouched).
func (s Substitutions) ApplyToEnv(env []EnvEntry) []EnvEntry {
	out := make([]EnvEntry, len(env))
	for i, kv := range env {
		out[i] = EnvEntry{kv[0], s.Apply(kv[1])}
	}
	return out
}
