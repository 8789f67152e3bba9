package device

// Task is the pending result of one action. It completes exactly once.
type Task[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newTask[T any]() *Task[T] {
	return &Task[T]{done: make(chan struct{})}
}

func failedTask[T any](err error) *Task[T] {
	t := newTask[T]()
	t.complete(t.val, err)
	return t
}

func (t *Task[T]) complete(v T, err error) {
	t.val, t.err = v, err
	close(t.done)
}

// Done is closed when the result is available.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Result blocks until the action finishes and returns its outcome.
func (t *Task[T]) Result() (T, error) {
	<-t.done
	return t.val, t.err
}
