//go:build !unix

package db

const (
	lockShared = iota
	lockExclusive
	lockRelease
)

// flock is a no-op where flock(2) does not exist; the in-process lock
// still applies.
func flock(int, int) error { return nil }
