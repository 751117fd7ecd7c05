//go:build !unix

package store

// fileLock is a no-op where flock is unavailable; the in-process mutex still
// serializes mutations from this process.
type fileLock struct{}

func lockFile(string) (*fileLock, error) { return &fileLock{}, nil }

func (*fileLock) Unlock() error { return nil }
