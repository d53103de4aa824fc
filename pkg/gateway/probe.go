package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/content"
	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/uri"
	"github.com/sirupsen/logrus"
)

// ProbeSubdomains checks whether <probe>.ipfs.<root host> reaches this
// gateway and records the answer for the root host.
func (g *Gateway) ProbeSubdomains(ctx context.Context, client *http.Client) (bool, error) {
	if client == nil {
		client = http.DefaultClient
	}
	u := &url.URL{
		Scheme: g.Root.Scheme,
		Host:   content.ProbeCID + "." + uri.ProtocolIPFS + "." + g.Root.Host,
		Path:   "/",
	}
	supported := false
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(req)
	if err == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		supported = resp.StatusCode == http.StatusOK
	}
	logrus.Infof("gateway: subdomain support on %s: %t", g.Root.Host, supported)

	if serr := g.State.Store.SetSubdomainSupport(ctx, g.Root.Host, supported); serr != nil {
		return supported, fmt.Errorf("record subdomain support: %w", serr)
	}
	return supported, nil
}
