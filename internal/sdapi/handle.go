package sdapi

import (
	"context"

	"github.com/google/uuid"
)

// JobHandle tracks one in-flight generation request. It resolves exactly once.
type JobHandle struct {
	id   string
	done chan struct{}
	resp Response
	err  error
}

func newJobHandle() *JobHandle {
	return &JobHandle{id: uuid.NewString(), done: make(chan struct{})}
}

func (h *JobHandle) resolve(resp Response, err error) {
	h.resp = resp
	h.err = err
	close(h.done)
}

// ID identifies the handle in logs.
func (h *JobHandle) ID() string { return h.id }

// Done is closed once the request has a result or a failure.
func (h *JobHandle) Done() <-chan struct{} { return h.done }

// Finished reports whether the handle has resolved.
func (h *JobHandle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the handle resolves or ctx is cancelled.
func (h *JobHandle) Wait(ctx context.Context) (Response, error) {
	select {
	case <-h.done:
		return h.resp, h.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}
