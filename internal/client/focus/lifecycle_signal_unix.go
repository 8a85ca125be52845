//go:build unix

package focus

import (
	"os"
	"os/signal"
	"syscall"
)

// SuspendSignalObserver treats SIGTSTP (Ctrl+Z, job control backgrounding)
// as a loss of focus. The signal is consumed, so the process is not stopped
// while it is observed.
type SuspendSignalObserver struct{}

// Observe implements LifecycleObserver.
func (SuspendSignalObserver) Observe(onSuspend func(source string)) func() {
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(ch, syscall.SIGTSTP)

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ch:
				onSuspend("sigtstp")
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
