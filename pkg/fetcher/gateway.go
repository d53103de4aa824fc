package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxRetries    = 2
	defaultRetryInterval = 200 * time.Millisecond
	// blocks are at most 2MiB, anything bigger cannot verify
	maxBlockSize = 4 << 20
)

// forwarded request headers
var forwardHeaders = []string{
	"Accept",
	"Range",
	"If-None-Match",
	"If-Modified-Since",
	"Cache-Control",
}

// TrustlessGateway fetches resources from HTTP gateways. Gateway hints are
// tried first, then the configured gateways, in order. Raw blocks requested
// by bare CID are verified against their multihash.
type TrustlessGateway struct {
	Gateways      []string
	Client        *http.Client
	MaxRetries    uint64
	RetryInterval time.Duration
}

func NewTrustlessGateway(gateways []string, client *http.Client) *TrustlessGateway {
	if client == nil {
		client = &http.Client{}
	}
	// redirects go back to the browser
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &TrustlessGateway{
		Gateways:      gateways,
		Client:        &c,
		MaxRetries:    defaultMaxRetries,
		RetryInterval: defaultRetryInterval,
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gateway answered %d %s", e.code, http.StatusText(e.code))
}

func (g *TrustlessGateway) candidates(hints []*url.URL) []*url.URL {
	var out []*url.URL
	seen := map[string]bool{}
	add := func(u *url.URL) {
		k := strings.TrimSuffix(u.String(), "/")
		if !seen[k] {
			seen[k] = true
			out = append(out, u)
		}
	}
	for _, h := range hints {
		add(h)
	}
	for _, s := range g.Gateways {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			add(u)
		}
	}
	return out
}

func (g *TrustlessGateway) Fetch(ctx context.Context, resource string, opts Options) (*http.Response, error) {
	res, err := ParseResource(resource)
	if err != nil {
		return nil, err
	}

	gateways := g.candidates(opts.Gateways)
	if len(gateways) == 0 {
		return nil, errors.New("fetcher: no gateways configured")
	}

	var lastErr error
	notFound := 0
	for _, gw := range gateways {
		opts.emit(ProgressEvent{
			Type:     "trustless-gateway:found-provider",
			Provider: Provider{Type: ProviderTrustlessGateway, Routing: "gateway", URL: gw.String()},
		})

		resp, err := g.fetchFrom(ctx, gw, res, opts.Headers)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			var se *statusError
			if errors.As(err, &se) && se.code == http.StatusNotFound {
				notFound++
			}
			logrus.Debugf("fetcher: %s via %s: %v", resource, gw, err)
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusOK && res.Namespace == "ipfs" && res.IsRoot() &&
			acceptedMediaType(opts.Headers.Get("Accept")) == MediaTypeRaw {
			return verifyBlock(res.Name, resp)
		}
		rewriteLocation(gw, resp)
		return resp, nil
	}

	if notFound == len(gateways) {
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("fetcher: all gateways failed: %w", lastErr)
}

func (g *TrustlessGateway) fetchFrom(ctx context.Context, gw *url.URL, res *Resource, headers http.Header) (*http.Response, error) {
	target := strings.TrimSuffix(gw.String(), "/") + res.ContentPath()
	if res.RawQuery != "" {
		target += "?" + res.RawQuery
	}

	op := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		for _, h := range forwardHeaders {
			if v := headers.Get(h); v != "" {
				req.Header.Set(h, v)
			}
		}

		resp, err := g.Client.Do(req)
		if err != nil {
			return nil, err
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return nil, backoff.Permanent(&statusError{code: resp.StatusCode})
		case resp.StatusCode >= 500:
			resp.Body.Close()
			return nil, &statusError{code: resp.StatusCode}
		}
		return resp, nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = g.RetryInterval
	b := backoff.WithContext(backoff.WithMaxRetries(eb, g.MaxRetries), ctx)
	return backoff.RetryNotifyWithData(op, b, func(err error, wait time.Duration) {
		logrus.Debugf("fetcher: retrying %s in %s: %v", target, wait, err)
	})
}

// verifyBlock reads the whole block and checks it hashes to name.
func verifyBlock(name string, resp *http.Response) (*http.Response, error) {
	defer resp.Body.Close()

	c, err := cid.Decode(name)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBlockSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBlockSize {
		return nil, fmt.Errorf("%w: block larger than %d bytes", ErrVerificationFailed, maxBlockSize)
	}

	dec, err := mh.Decode(c.Hash())
	if err != nil {
		return nil, err
	}
	sum, err := mh.Sum(body, dec.Code, dec.Length)
	if err != nil {
		if errors.Is(err, mh.ErrSumNotSupported) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedHash, mh.Codes[dec.Code])
		}
		return nil, err
	}
	if !bytes.Equal(sum, c.Hash()) {
		return nil, ErrVerificationFailed
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", fmt.Sprint(len(body)))
	return resp, nil
}

// rewriteLocation turns a gateway's own /ipfs/ or /ipns/ redirect into the
// native form so the caller can map it onto its origin.
func rewriteLocation(gw *url.URL, resp *http.Response) {
	loc := resp.Header.Get("Location")
	if loc == "" {
		return
	}
	u, err := gw.Parse(loc)
	if err != nil || u.Host != gw.Host {
		return
	}
	for _, ns := range []string{"ipfs", "ipns"} {
		if rest, ok := strings.CutPrefix(u.EscapedPath(), "/"+ns+"/"); ok {
			native := ns + "://" + rest
			if u.RawQuery != "" {
				native += "?" + u.RawQuery
			}
			if u.Fragment != "" {
				native += "#" + u.EscapedFragment()
			}
			resp.Header.Set("Location", native)
			return
		}
	}
}
