package shell

import (
	"bytes"
	"os/exec"
	"strings"
	"sync"
)

// TaskHandle tracks a long-running child process started in the background.
// The UI polls Running for liveness while the pipeline blocks on Wait; the
// poll is operator feedback only and has no effect on the outcome.
type TaskHandle struct {
	Description string

	done chan struct{}

	mu   sync.Mutex
	err  error
	tail []string
}

// Start launches name args... as a background child process and returns a
// handle to it. Combined output is captured for the diagnostic tail.
func (r *Runner) Start(description string, name string, args ...string) *TaskHandle {
	t := &TaskHandle{Description: description, done: make(chan struct{})}
	r.log.Debugf("starting background: %s %s", name, strings.Join(args, " "))
	cmd := exec.Command(name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	go func() {
		err := cmd.Run()
		t.mu.Lock()
		t.err = err
		t.tail = Tail(out.String(), TailLines)
		t.mu.Unlock()
		close(t.done)
	}()
	return t
}

// Done is closed when the child has exited.
func (t *TaskHandle) Done() <-chan struct{} {
	return t.done
}

// Running reports whether the child is still alive.
func (t *TaskHandle) Running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the child exits and returns its final error.
func (t *TaskHandle) Wait() error {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Tail returns the last diagnostic lines of the child's combined output.
// Valid after Wait.
func (t *TaskHandle) Tail() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tail
}
