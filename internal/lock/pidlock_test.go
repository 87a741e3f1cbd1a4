package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquirePIDLockWritesPID(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "run", "hostbridge.lock")
	l, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("AcquirePIDLock: %v", err)
	}
	t.Cleanup(func() { _ = l.Release() })

	pid, ok := HolderPID(lockPath)
	if !ok || pid != os.Getpid() {
		t.Fatalf("HolderPID = %d, %v; want %d", pid, ok, os.Getpid())
	}
}

func TestSecondAcquireFails(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "hostbridge.lock")
	first, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("first AcquirePIDLock: %v", err)
	}

	if _, err := AcquirePIDLock(lockPath); !errors.Is(err, ErrLocked) {
		t.Fatalf("second AcquirePIDLock error = %v, want ErrLocked", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	again, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("AcquirePIDLock after release: %v", err)
	}
	_ = again.Release()
	if err := again.Release(); err != nil {
		t.Fatalf("double Release: %v", err)
	}
}

func TestAcquireEmptyPath(t *testing.T) {
	if _, err := AcquirePIDLock(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestInspect(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "hostbridge.lock")
	if _, held, err := Inspect(lockPath); err != nil || held {
		t.Fatalf("Inspect(missing) = held %v, err %v", held, err)
	}

	l, err := AcquirePIDLock(lockPath)
	if err != nil {
		t.Fatalf("AcquirePIDLock: %v", err)
	}
	pid, held, err := Inspect(lockPath)
	if err != nil || !held || pid != os.Getpid() {
		t.Fatalf("Inspect(held) = %d, %v, %v", pid, held, err)
	}

	_ = l.Release()
	if _, held, err := Inspect(lockPath); err != nil || held {
		t.Fatalf("Inspect(released) = held %v, err %v", held, err)
	}
}
