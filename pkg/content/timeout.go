package content

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrInactivityTimeout is the cause of a fetch context cancelled because no
// data arrived for the configured fetch timeout.
var ErrInactivityTimeout = errors.New("content: no data received within the fetch timeout")

// inactivity cancels a context when it is not touched for d.
type inactivity struct {
	d      time.Duration
	timer  *time.Timer
	cancel context.CancelCauseFunc
	once   sync.Once
}

// withInactivityTimeout derives a context from parent that is cancelled
// with ErrInactivityTimeout after d without activity, or when parent is.
func withInactivityTimeout(parent context.Context, d time.Duration) (context.Context, *inactivity) {
	ctx, cancel := context.WithCancelCause(parent)
	in := &inactivity{d: d, cancel: cancel}
	in.timer = time.AfterFunc(d, func() { cancel(ErrInactivityTimeout) })
	return ctx, in
}

func (in *inactivity) touch() {
	in.timer.Reset(in.d)
}

// stop releases the context.
func (in *inactivity) stop() {
	in.once.Do(func() {
		in.timer.Stop()
		in.cancel(context.Canceled)
	})
}

func timedOut(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrInactivityTimeout)
}

// activityBody resets the inactivity timer on every chunk and stops it when
// the body is closed.
type activityBody struct {
	io.ReadCloser
	in *inactivity
}

func (b *activityBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 {
		b.in.touch()
	}
	return n, err
}

func (b *activityBody) Close() error {
	err := b.ReadCloser.Close()
	b.in.stop()
	return err
}
