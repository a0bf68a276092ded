// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

// Package pin manages the filesystem layout for exposing kernel
// descriptors at a path on the dedicated BPF filesystem, and verifies
// that a pin target actually lives on that filesystem before the
// kernel is asked to create the pin.
//
// This resolves the open question in spec.md §9: a failed statfs is
// always treated as a hard error, never as "not bpffs" with a stale
// f_type read afterward.
package pin

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kernmod/bpfloader/pkg/kernel"
)

// CheckPath verifies that the parent directory of path is mounted on
// the BPF filesystem. A statfs failure is itself the error returned;
// it is never papered over by reading an uninitialized filesystem type.
func CheckPath(path string) error {
	dir := filepath.Dir(path)
	magic, err := kernel.Statfs(dir)
	if err != nil {
		return fmt.Errorf("statfs %s: %w", dir, err)
	}
	if magic != kernel.BPFFSMagic {
		return fmt.Errorf("%s is not on a bpf filesystem", dir)
	}
	return nil
}

// Layout describes the directory structure the loader creates when
// pinning an Object: path/<map_name> for every map, and
// path/<section_name>/<instance_index> for every program instance.
type Layout struct {
	Root string
}

// EnsureRoot creates the object's pin root directory (0700) if absent,
// after verifying it sits on a bpf filesystem.
func EnsureRoot(root string) (*Layout, error) {
	if err := CheckPath(root); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", root, err)
	}
	return &Layout{Root: root}, nil
}

// MapPath returns the pin path for a map named name.
func (l *Layout) MapPath(name string) string {
	return filepath.Join(l.Root, name)
}

// ProgramPath returns the pin path for instance index of the program
// in section section.
func (l *Layout) ProgramPath(section string, index int) string {
	return filepath.Join(l.Root, section, fmt.Sprintf("%d", index))
}

// EnsureProgramDir makes sure the section subdirectory for a program's
// instances exists.
func (l *Layout) EnsureProgramDir(section string) error {
	return os.MkdirAll(filepath.Join(l.Root, section), 0700)
}
