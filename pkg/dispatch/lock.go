package dispatch

import "sync"

// ExecLock enforces at most one concurrent run per command name. A failed
// acquisition returns immediately; callers never queue.
type ExecLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewExecLock() *ExecLock {
	return &ExecLock{held: make(map[string]bool)}
}

// TryAcquire atomically claims the flag for a command. Returns false when
// the command is already running.
func (l *ExecLock) TryAcquire(command string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[command] {
		return false
	}
	l.held[command] = true
	return true
}

// Release frees the flag. Safe to call for a command that is not held.
func (l *ExecLock) Release(command string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, command)
}

// Held reports whether a command currently holds its flag.
func (l *ExecLock) Held(command string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[command]
}
