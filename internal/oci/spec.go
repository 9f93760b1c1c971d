// Package oci holds the subset of the OCI runtime-spec bundle format
// that the create pipeline needs: the container Spec parsed from
// config.json, and the State document persisted to state.json.
package oci

import (
	"encoding/json"
	"fmt"
	"os"

	cerrors "github.com/greenhandatsjtu/pura/internal/errors"
)

// ConfigFileName is the fixed name of the bundle's configuration
// document, per spec.md section 3.
const ConfigFileName = "config.json"

// Spec is the subset of an OCI config.json this runtime understands.
// Unknown fields are ignored by encoding/json, matching spec.md's
// "Unknown fields are ignored" contract.
type Spec struct {
	Root        Root              `json:"root"`
	Hostname    string            `json:"hostname,omitempty"`
	Mounts      []Mount           `json:"mounts,omitempty"`
	Process     *Process          `json:"process,omitempty"`
	Linux       *Linux            `json:"linux,omitempty"`
	Hooks       *Hooks            `json:"hooks,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Root describes the container's root filesystem.
type Root struct {
	Path     string `json:"path"`
	Readonly bool   `json:"readonly,omitempty"`
}

// Mount is a single ordered mount entry.
type Mount struct {
	Destination string   `json:"destination"`
	Type        string   `json:"type,omitempty"`
	Source      string   `json:"source,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// Process describes the container's entry point.
type Process struct {
	Terminal     bool          `json:"terminal,omitempty"`
	Args         []string      `json:"args"`
	Env          []string      `json:"env,omitempty"`
	Cwd          string        `json:"cwd,omitempty"`
	User         User          `json:"user,omitempty"`
	Capabilities *Capabilities `json:"capabilities,omitempty"`
}

// User identifies the uid/gid the process execs as.
type User struct {
	UID uint32 `json:"uid"`
	GID uint32 `json:"gid"`
}

// Capabilities is the supplemented field described in SPEC_FULL.md
// section 4.8: only the bounding set is honored.
type Capabilities struct {
	Bounding []string `json:"bounding,omitempty"`
}

// Linux holds Linux-specific configuration.
type Linux struct {
	Devices           []Device    `json:"devices,omitempty"`
	Namespaces        []Namespace `json:"namespaces,omitempty"`
	RootfsPropagation string      `json:"rootfsPropagation,omitempty"`
}

// Namespace is an explicit namespace entry; an empty Path means "create
// a new namespace of this type", a non-empty Path means "join it".
type Namespace struct {
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
}

// Device describes a device node to create inside the rootfs.
type Device struct {
	Path     string `json:"path"`
	Type     string `json:"type"`
	Major    int64  `json:"major"`
	Minor    int64  `json:"minor"`
	FileMode uint32 `json:"fileMode,omitempty"`
	UID      uint32 `json:"uid,omitempty"`
	GID      uint32 `json:"gid,omitempty"`
}

// Hooks is lifecycle-keyed; only Prestart and CreateRuntime are invoked
// by the core (spec.md section 3: "others ignored by the core").
type Hooks struct {
	Prestart      []Hook `json:"prestart,omitempty"`
	CreateRuntime []Hook `json:"createRuntime,omitempty"`
	// Remaining lifecycle points are parsed for pass-through but never
	// run by this core.
	CreateContainer []Hook `json:"createContainer,omitempty"`
	StartContainer  []Hook `json:"startContainer,omitempty"`
	Poststart       []Hook `json:"poststart,omitempty"`
	Poststop        []Hook `json:"poststop,omitempty"`
}

// Hook is a single executable hook entry.
type Hook struct {
	Path    string   `json:"path"`
	Args    []string `json:"args,omitempty"`
	Env     []string `json:"env,omitempty"`
	Timeout *int     `json:"timeout,omitempty"`
}

// Load reads and parses the bundle's config.json.
func Load(bundle string) (*Spec, error) {
	path := bundle + "/" + ConfigFileName
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cerrors.New(cerrors.Spec, "load spec", fmt.Sprintf("%s not found", path))
		}
		return nil, cerrors.Wrap(cerrors.Spec, "open "+path, err)
	}
	defer f.Close()

	var s Spec
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return nil, cerrors.Wrap(cerrors.Spec, "decode "+path, err)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}

	return &s, nil
}

func (s *Spec) validate() error {
	if s.Root.Path == "" {
		return cerrors.New(cerrors.Spec, "validate spec", "root.path is required")
	}
	if s.Process != nil && len(s.Process.Args) == 0 {
		return cerrors.New(cerrors.Spec, "validate spec", "process.args must be non-empty when process is set")
	}
	return nil
}

// HasTerminal reports whether the process requests a pseudo-terminal.
func (s *Spec) HasTerminal() bool {
	return s.Process != nil && s.Process.Terminal
}
