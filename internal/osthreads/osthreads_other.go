//go:build !linux

package osthreads

func gettid() int {
	return 0
}

func list() ([]Task, error) {
	return nil, ErrNotSupported
}
