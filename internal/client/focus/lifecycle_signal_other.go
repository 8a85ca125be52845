//go:build !unix

package focus

// SuspendSignalObserver is a no-op where job control signals do not exist.
type SuspendSignalObserver struct{}

// Observe implements LifecycleObserver.
func (SuspendSignalObserver) Observe(func(string)) func() { return func() {} }
