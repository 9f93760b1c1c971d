package oci

import specs "github.com/opencontainers/runtime-spec/specs-go"

// OCIVersion is the runtime-spec version this core implements.
const OCIVersion = "1.0.2-dev"

// Status values, matching the specs.ContainerState constants' spirit
// (the upstream package does not export the string constants we need
// directly, so they are declared locally).
const (
	StatusCreating = "creating"
	StatusCreated  = "created"
	StatusRunning  = "running"
	StatusStopped  = "stopped"
)

// State is exactly the OCI runtime-spec State document: ociVersion,
// id, status, pid, bundle, annotations. It doubles as the payload
// piped to hooks on stdin.
type State = specs.State

// NewState builds the initial state document for a freshly created
// container, per spec.md section 4.2: status Creating, pid 0 until the
// child is cloned.
func NewState(id string, bundle string) *State {
	return &State{
		Version:     OCIVersion,
		ID:          id,
		Status:      StatusCreating,
		Pid:         0,
		Bundle:      bundle,
		Annotations: map[string]string{},
	}
}
