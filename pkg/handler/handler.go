// Package handler holds the request handlers of the gateway and the ordered
// chain they are consulted in.
package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/logs"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/uri"
	"github.com/sirupsen/logrus"
)

// Event is one incoming request.
type Event struct {
	Request *http.Request
	// URL is the absolute URL the browser requested.
	URL *url.URL
	// Resource is the classified request, nil when it names nothing the
	// gateway recognizes.
	Resource  uri.Resolvable
	RequestID string
	Logs      *logs.Collector
	// WaitUntil keeps the gateway alive until task returns. When nil tasks
	// run inline.
	WaitUntil func(task func())
}

func (ev *Event) log() *logrus.Entry {
	return logrus.WithField(logs.FieldRequestID, ev.RequestID)
}

func (ev *Event) background(task func()) {
	if ev.WaitUntil == nil {
		task()
		return
	}
	ev.WaitUntil(task)
}

func (ev *Event) lines() []string {
	if ev.Logs == nil {
		return nil
	}
	return ev.Logs.Lines()
}

type Handler interface {
	Name() string
	CanHandle(ev *Event) bool
	Handle(ctx context.Context, ev *Event) (*http.Response, error)
}

// Chain is consulted in order, the first handler that accepts a request
// serves it.
type Chain []Handler

// Find returns the handler for ev, or nil.
func (c Chain) Find(ev *Event) Handler {
	for _, h := range c {
		if h.CanHandle(ev) {
			return h
		}
	}
	return nil
}

// Dispatch serves ev with the first handler that accepts it. A nil response
// and handler mean no handler wanted the request.
func (c Chain) Dispatch(ctx context.Context, ev *Event) (*http.Response, Handler, error) {
	h := c.Find(ev)
	if h == nil {
		return nil, nil, nil
	}
	ev.log().Tracef("handler: %s serves %s", h.Name(), ev.URL)
	resp, err := h.Handle(ctx, ev)
	return resp, h, err
}
