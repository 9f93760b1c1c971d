// Package state persists and loads the container State document
// described in spec.md section 4.2: one state.json per container
// directory, written atomically.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"

	cerrors "github.com/greenhandatsjtu/pura/internal/errors"
	"github.com/greenhandatsjtu/pura/internal/oci"
)

// FileName is the on-disk name of the state document.
const FileName = "state.json"

// Dir returns the per-container state directory under root.
func Dir(root, id string) string {
	return filepath.Join(root, id)
}

// Path returns the full path to a container's state.json.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Save serializes s to dir/state.json, creating dir if absent and
// writing via a temp-file-then-rename so a reader never observes a
// truncated document (spec.md section 9, "State persistence
// atomicity").
func Save(dir string, s *oci.State) error {
	if err := os.MkdirAll(dir, 0711); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "create state dir "+dir, err)
	}

	data, err := json.MarshalIndent(s, "", "\t")
	if err != nil {
		return cerrors.Wrap(cerrors.Runtime, "marshal state", err)
	}

	final := Path(dir)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "write "+tmp, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return cerrors.Wrap(cerrors.Runtime, "rename "+tmp+" to "+final, err)
	}
	return nil
}

// Load reads and deserializes the state document in dir.
func Load(dir string) (*oci.State, error) {
	path := Path(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.Runtime, "read "+path, err)
	}
	var s oci.State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, cerrors.Wrap(cerrors.Runtime, "unmarshal "+path, err)
	}
	return &s, nil
}

// Remove deletes the container's entire state directory, used during
// best-effort teardown (spec.md section 7).
func Remove(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "remove state dir "+dir, err)
	}
	return nil
}
