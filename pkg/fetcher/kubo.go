package fetcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	shell "github.com/ipfs/go-ipfs-api"
)

// Kubo fetches resources through the RPC API of a Kubo node.
type Kubo struct {
	endpoint string
	sh       *shell.Shell
}

func NewKubo(endpoint string) *Kubo {
	return &Kubo{endpoint: endpoint, sh: shell.NewShell(endpoint)}
}

type dagResolveResult struct {
	Cid     map[string]string `json:"Cid"`
	RemPath string            `json:"RemPath"`
}

func (k *Kubo) Fetch(ctx context.Context, resource string, opts Options) (*http.Response, error) {
	res, err := ParseResource(resource)
	if err != nil {
		return nil, err
	}

	opts.emit(ProgressEvent{
		Type:     "kubo:found-provider",
		Provider: Provider{Type: "kubo", Routing: "kubo-rpc", URL: k.endpoint},
	})

	query, _ := url.ParseQuery(res.RawQuery)
	mediaType := acceptedMediaType(opts.Headers.Get("Accept"))
	if f := query.Get("format"); f != "" {
		mediaType = formatMediaType(f)
	}

	p, err := url.PathUnescape(res.ContentPath())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResource, err)
	}

	switch mediaType {
	case MediaTypeRaw:
		c, err := k.resolve(ctx, p)
		if err != nil {
			return nil, err
		}
		return k.stream(ctx, MediaTypeRaw, "block/get", c)
	case MediaTypeCAR:
		c, err := k.resolve(ctx, p)
		if err != nil {
			return nil, err
		}
		return k.stream(ctx, MediaTypeCAR, "dag/export", c)
	case MediaTypeDagJSON, MediaTypeJSON:
		return k.dagGet(ctx, p, "dag-json", mediaType)
	case MediaTypeDagCBOR, MediaTypeCBOR:
		return k.dagGet(ctx, p, "dag-cbor", mediaType)
	case MediaTypeIPNSRecord:
		if res.Namespace != "ipns" {
			return nil, fmt.Errorf("%w: ipns-record requires an ipns:// resource", ErrBadResource)
		}
		return k.stream(ctx, MediaTypeIPNSRecord, "routing/get", "/ipns/"+res.Name)
	}

	resp, err := k.cat(ctx, p)
	if errors.Is(err, errIsDirectory) {
		return k.directory(ctx, p, opts)
	}
	if errors.Is(err, ErrNotFound) && opts.SupportWebRedirects {
		return k.webRedirect(ctx, res, err)
	}
	return resp, err
}

var errIsDirectory = errors.New("is a directory")

func (k *Kubo) send(ctx context.Context, command string, args ...string) (*shell.Response, error) {
	resp, err := k.sh.Request(command, args...).Send(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		resp.Close()
		return nil, classify(resp.Error)
	}
	return resp, nil
}

// classify maps Kubo error messages onto the fetcher's typed errors.
func classify(e *shell.Error) error {
	msg := strings.ToLower(e.Message)
	switch {
	case strings.Contains(msg, "is a directory"):
		return errIsDirectory
	case strings.Contains(msg, "no link named"),
		strings.Contains(msg, "not found"),
		strings.Contains(msg, "could not resolve"):
		return fmt.Errorf("%w: %s", ErrNotFound, e.Message)
	case strings.Contains(msg, "hash") && strings.Contains(msg, "not supported"):
		return fmt.Errorf("%w: %s", ErrUnsupportedHash, e.Message)
	}
	return e
}

func (k *Kubo) resolve(ctx context.Context, p string) (string, error) {
	resp, err := k.send(ctx, "dag/resolve", p)
	if err != nil {
		return "", err
	}
	var out dagResolveResult
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	if out.RemPath != "" {
		return "", fmt.Errorf("%w: %s has unresolved path %s", ErrNotFound, p, out.RemPath)
	}
	return out.Cid["/"], nil
}

func (k *Kubo) stream(ctx context.Context, mediaType, command string, args ...string) (*http.Response, error) {
	resp, err := k.send(ctx, command, args...)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Content-Type", mediaType)
	return newResponse(http.StatusOK, h, resp.Output, -1), nil
}

func (k *Kubo) dagGet(ctx context.Context, p, codec, mediaType string) (*http.Response, error) {
	resp, err := k.sh.Request("dag/get", p).Option("output-codec", codec).Send(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		resp.Close()
		return nil, classify(resp.Error)
	}
	h := http.Header{}
	h.Set("Content-Type", mediaType)
	return newResponse(http.StatusOK, h, resp.Output, -1), nil
}

func (k *Kubo) cat(ctx context.Context, p string) (*http.Response, error) {
	resp, err := k.send(ctx, "cat", p)
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	ct := mime.TypeByExtension(path.Ext(p))
	body := bufio.NewReader(resp.Output)
	if ct == "" {
		head, _ := body.Peek(512)
		ct = http.DetectContentType(head)
	}
	h.Set("Content-Type", ct)
	return newResponse(http.StatusOK, h, readCloser{Reader: body, Closer: resp.Output}, -1), nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// directory serves index.html when present and allowed, otherwise the
// dag-json form of the directory node marked with HeaderDirectory.
func (k *Kubo) directory(ctx context.Context, p string, opts Options) (*http.Response, error) {
	if opts.SupportDirectoryIndexes {
		resp, err := k.cat(ctx, strings.TrimSuffix(p, "/")+"/index.html")
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	resp, err := k.dagGet(ctx, p, "dag-json", MediaTypeDagJSON)
	if err != nil {
		return nil, err
	}
	resp.Header.Set(HeaderDirectory, "true")
	return resp, nil
}

// webRedirect applies the _redirects file at the root of the resource.
func (k *Kubo) webRedirect(ctx context.Context, res *Resource, notFound error) (*http.Response, error) {
	root := "/" + res.Namespace + "/" + res.Name
	file, err := k.cat(ctx, root+"/_redirects")
	if err != nil {
		return nil, notFound
	}
	rules, err := ParseRedirects(io.LimitReader(file.Body, maxRedirectsSize))
	file.Body.Close()
	if err != nil {
		return nil, notFound
	}

	p, _ := url.PathUnescape(res.Path)
	rule, to, ok := rules.Match(p)
	if !ok {
		return nil, notFound
	}

	if rule.Status >= 300 && rule.Status < 400 {
		h := http.Header{}
		if strings.HasPrefix(to, "/") {
			to = res.Namespace + "://" + res.Name + to
		}
		h.Set("Location", to)
		return newResponse(rule.Status, h, nil, 0), nil
	}

	resp, err := k.cat(ctx, root+to)
	if err != nil {
		return nil, err
	}
	resp.StatusCode = rule.Status
	resp.Status = fmt.Sprintf("%d %s", rule.Status, http.StatusText(rule.Status))
	return resp, nil
}

func formatMediaType(format string) string {
	switch format {
	case "raw":
		return MediaTypeRaw
	case "car":
		return MediaTypeCAR
	case "tar":
		return MediaTypeTAR
	case "json":
		return MediaTypeJSON
	case "cbor":
		return MediaTypeCBOR
	case "dag-json":
		return MediaTypeDagJSON
	case "dag-cbor":
		return MediaTypeDagCBOR
	case "ipns-record":
		return MediaTypeIPNSRecord
	}
	return ""
}
