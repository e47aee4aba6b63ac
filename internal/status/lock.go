package status

import (
	"fmt"
	"os"
	"time"
)

// lockBackoff is the sleep between lock acquisition attempts. Contention
// is expected to be sub-millisecond, so a short busy-wait is enough.
const lockBackoff = 50 * time.Millisecond

// dirLock is a cross-process mutex built on the atomicity of mkdir.
// It guards the entire read-modify-write cycle of a status document,
// not just the final write.
type dirLock struct {
	path    string
	timeout time.Duration
}

func newDirLock(path string) *dirLock {
	return &dirLock{path: path, timeout: 5 * time.Second}
}

// acquire blocks until the lock directory is created or the timeout passes.
func (l *dirLock) acquire() error {
	deadline := time.Now().Add(l.timeout)
	for {
		err := os.Mkdir(l.path, 0755)
		if err == nil {
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("acquire status lock: %w", err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("could not acquire status lock %s after %s", l.path, l.timeout)
		}
		time.Sleep(lockBackoff)
	}
}

// release removes the lock directory. Safe to call if never acquired.
func (l *dirLock) release() {
	_ = os.Remove(l.path)
}
