package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/content"
)

// UnregisterParam in the query string tears the gateway registration down.
const UnregisterParam = "ipfs-sw-unregister"

type Unregister struct {
	OnUnregister func(ctx context.Context) error
}

func (*Unregister) Name() string { return "unregister-handler" }

func (*Unregister) CanHandle(ev *Event) bool {
	return strings.Contains(ev.URL.RawQuery, UnregisterParam)
}

func (h *Unregister) Handle(_ context.Context, ev *Event) (*http.Response, error) {
	ev.background(func() {
		if h.OnUnregister == nil {
			return
		}
		if err := h.OnUnregister(context.Background()); err != nil {
			ev.log().Errorf("unregister: %v", err)
		}
	})
	return content.Text(http.StatusOK, "Service worker unregistered", nil), nil
}
