package runner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrEmployerBusy means another process or goroutine holds the employer's
// reconciliation lock.
var ErrEmployerBusy = errors.New("employer crawl already running")

func isBusy(err error) bool { return errors.Is(err, ErrEmployerBusy) }

// employerLock takes the per-employer file lock without waiting. The
// returned func releases it.
func employerLock(dir string, employerID int64) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lock dir: %w", err)
	}
	fl := flock.New(filepath.Join(dir, fmt.Sprintf("employer-%d.lock", employerID)))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock employer %d: %w", employerID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: employer %d", ErrEmployerBusy, employerID)
	}
	return func() { _ = fl.Unlock() }, nil
}
