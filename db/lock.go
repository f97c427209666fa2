package db

import "sync"

// rwLock is the store-wide reader/writer lock. When a process lock is
// attached it also takes flock(2) on the store file, so scopes in different
// processes exclude each other the same way goroutines do.
type rwLock struct {
	mu sync.RWMutex

	// Cross-process state. flock locks belong to the open file description,
	// so readers in this process share one shared lock, taken by the first
	// and dropped by the last.
	fd      int
	pmu     sync.Mutex
	readers int
}

func newRWLock(fd int) *rwLock {
	return &rwLock{fd: fd}
}

func (l *rwLock) Lock() error {
	l.mu.Lock()
	if l.fd < 0 {
		return nil
	}
	if err := flock(l.fd, lockExclusive); err != nil {
		l.mu.Unlock()
		return err
	}
	return nil
}

func (l *rwLock) Unlock() error {
	var err error
	if l.fd >= 0 {
		err = flock(l.fd, lockRelease)
	}
	l.mu.Unlock()
	return err
}

func (l *rwLock) RLock() error {
	l.mu.RLock()
	if l.fd < 0 {
		return nil
	}
	l.pmu.Lock()
	defer l.pmu.Unlock()
	if l.readers == 0 {
		if err := flock(l.fd, lockShared); err != nil {
			l.mu.RUnlock()
			return err
		}
	}
	l.readers++
	return nil
}

func (l *rwLock) RUnlock() error {
	var err error
	if l.fd >= 0 {
		l.pmu.Lock()
		l.readers--
		if l.readers == 0 {
			err = flock(l.fd, lockRelease)
		}
		l.pmu.Unlock()
	}
	l.mu.RUnlock()
	return err
}
