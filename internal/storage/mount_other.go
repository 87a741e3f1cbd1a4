//go:build !linux

package storage

// filesystemType has no detector here; callers treat "" as local.
func filesystemType(string) (string, error) {
	return "", nil
}
