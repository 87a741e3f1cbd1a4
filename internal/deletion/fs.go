package deletion

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// FS is the set of filesystem primitives the removal engine needs.
type FS interface {
	// Exists reports whether a directory entry is present at path. Errors
	// other than not-exist count as present.
	Exists(path string) bool
	Writable(path string) bool
	MakeWritable(path string) error
	Remove(path string) error
	// Canonical returns the absolute, symlink-free form of path.
	Canonical(path string) (string, error)
}

// OSFS implements FS against the local filesystem.
type OSFS struct{}

func (OSFS) Exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Lstat(path)
	if err == nil {
		return true
	}
	return !errors.Is(err, fs.ErrNotExist)
}

func (OSFS) Writable(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}

func (OSFS) MakeWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.Chmod(path, info.Mode().Perm()|0o666)
}

func (OSFS) Remove(path string) error {
	return os.Remove(path)
}

func (OSFS) Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// CommandRunner runs an external command to completion.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}
