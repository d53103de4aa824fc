package pages

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/providers"
)

// ErrorObject is the serializable form of an error chain.
type ErrorObject struct {
	Name    string        `json:"name"`
	Message string        `json:"message"`
	Cause   *ErrorObject  `json:"cause,omitempty"`
	Errors  []ErrorObject `json:"errors,omitempty"`
}

// ErrorToObject walks err. Joined errors are listed under Errors, a single
// wrapped error becomes the Cause.
func ErrorToObject(err error) ErrorObject {
	if err == nil {
		return ErrorObject{}
	}
	obj := ErrorObject{Name: fmt.Sprintf("%T", err), Message: err.Error()}
	switch e := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			obj.Errors = append(obj.Errors, ErrorToObject(inner))
		}
	default:
		if inner := errors.Unwrap(err); inner != nil {
			c := ErrorToObject(inner)
			obj.Cause = &c
		}
	}
	return obj
}

var serverErrorBody = withBody("server-error", `
<p>An error occurred while handling <code>{{.Props.URL}}</code>.</p>
<pre>{{.Props.Error.Message}}</pre>
{{with .Props.Error.Errors}}<ul>{{range .}}<li>{{.Name}}: {{.Message}}</li>{{end}}</ul>{{end}}
{{with .Props.Logs}}<h2>Logs</h2><pre>{{range .}}{{.}}
{{end}}</pre>{{end}}
`)

type serverErrorProps struct {
	URL   string      `json:"url"`
	Error ErrorObject `json:"error"`
	Title string      `json:"title"`
	Logs  []string    `json:"logs"`
}

// ServerError renders err as a status page; status 0 means 500.
func ServerError(u *url.URL, err error, logs []string, status int) *http.Response {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	title := fmt.Sprintf("%d %s", status, http.StatusText(status))
	props := serverErrorProps{URL: u.String(), Error: ErrorToObject(err), Title: title, Logs: logs}

	h := http.Header{}
	h.Set("X-Debug-Request-Uri", u.String())
	return response(status, h, page(serverErrorBody, title, props))
}

// RequestDetails describes the request made to the content fetcher.
type RequestDetails struct {
	Resource string            `json:"resource"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers"`
}

// ResponseDetails describes what the content fetcher answered.
type ResponseDetails struct {
	Resource   string            `json:"resource"`
	Headers    map[string]string `json:"headers"`
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Body       string            `json:"body"`
}

// GatewayDetails describes the gateway instance.
type GatewayDetails struct {
	Config      interface{} `json:"config"`
	InstallTime string      `json:"installTime"`
	Origin      string      `json:"origin"`
	Version     string      `json:"version"`
}

type FetchErrorDetails struct {
	RequestID string            `json:"requestId"`
	Request   RequestDetails    `json:"request"`
	Response  ResponseDetails   `json:"response"`
	Gateway   GatewayDetails    `json:"config"`
	Providers providers.Summary `json:"providers"`
	Logs      []string          `json:"logs"`
	Title     string            `json:"title"`
}

var fetchErrorBody = withBody("fetch-error", `
<p>Fetching <code>{{.Props.Request.Resource}}</code> failed with <b>{{.Props.Response.Status}} {{.Props.Response.StatusText}}</b>.</p>
{{with .Props.Response.Body}}<h2>Response</h2><pre>{{.}}</pre>{{end}}
<h2>Providers</h2>
{{if .Props.Providers.Providers}}<p>{{.Props.Providers.Total}} provider events.</p>
<table><tr><th>Type</th><th>Routing</th><th>Provider</th></tr>
{{range .Props.Providers.Providers}}<tr><td>{{.Type}}</td><td>{{.Routing}}</td><td>{{if .URL}}{{.URL}}{{else}}{{.PeerID}}{{range .Multiaddrs}}<br><span class="muted">{{.}}</span>{{end}}{{end}}</td></tr>
{{end}}</table>{{else}}<p class="muted">No providers were found.</p>{{end}}
<h2>Request</h2><pre>{{range $k, $v := .Props.Request.Headers}}{{$k}}: {{$v}}
{{end}}</pre>
<p class="muted">Request {{.Props.RequestID}}, gateway {{.Props.Gateway.Version}} installed {{.Props.Gateway.InstallTime}}.</p>
{{with .Props.Logs}}<h2>Logs</h2><pre>{{range .}}{{.}}
{{end}}</pre>{{end}}
`)

// FetchError renders a failed fetch. upstream holds the fetcher's response
// headers, kept on the page response except for the body framing ones.
func FetchError(d FetchErrorDetails, upstream http.Header) *http.Response {
	if d.Response.StatusText == "" {
		d.Response.StatusText = http.StatusText(d.Response.Status)
	}
	d.Title = fmt.Sprintf("%d %s", d.Response.Status, d.Response.StatusText)

	h := upstream.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Del("Content-Encoding")
	h.Del("Content-Disposition")
	h.Set("X-Debug-Request-Id", d.RequestID)
	return response(d.Response.Status, h, page(fetchErrorBody, d.Title, d))
}

// InstallTimeString formats t the way error pages show it.
func InstallTimeString(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(http.TimeFormat)
}
