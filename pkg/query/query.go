// Package query handles ordered search parameters.
//
// url.Values loses parameter order and encodes spaces as "+", both of which
// leak into canonical URLs, so gateway URLs are built from an ordered list
// encoded the way browsers' encodeURIComponent does it.
package query

import (
	"net/url"
	"strings"
)

// Param is a single key/value pair from a search string.
type Param struct {
	Key   string
	Value string
}

// Params keeps search parameters in the order they appeared.
type Params []Param

// Parse splits a raw query (without the leading "?") into ordered params.
// Malformed escapes are kept verbatim.
func Parse(raw string) Params {
	raw = strings.TrimPrefix(raw, "?")
	if raw == "" {
		return nil
	}
	var out Params
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		out = append(out, Param{Key: unescape(key), Value: unescape(value)})
	}
	return out
}

func unescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}

// Escape encodes s like encodeURIComponent: spaces become %20, not "+".
func Escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Get returns the last value for key.
func (p Params) Get(key string) (string, bool) {
	var (
		v  string
		ok bool
	)
	for _, param := range p {
		if param.Key == key {
			v, ok = param.Value, true
		}
	}
	return v, ok
}

// GetAll returns every value for key in order.
func (p Params) GetAll(key string) []string {
	var out []string
	for _, param := range p {
		if param.Key == key {
			out = append(out, param.Value)
		}
	}
	return out
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Without returns a copy of p with every key in keys removed.
func (p Params) Without(keys ...string) Params {
	out := make(Params, 0, len(p))
	for _, param := range p {
		drop := false
		for _, k := range keys {
			if param.Key == k {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, param)
		}
	}
	return out
}

// Set replaces every value of key with values, appending at the end.
func (p Params) Set(key string, values ...string) Params {
	out := p.Without(key)
	for _, v := range values {
		out = append(out, Param{Key: key, Value: v})
	}
	return out
}

// Encode returns the raw query without the leading "?".
func (p Params) Encode() string {
	parts := make([]string, 0, len(p))
	for _, param := range p {
		parts = append(parts, Escape(param.Key)+"="+Escape(param.Value))
	}
	return strings.Join(parts, "&")
}

// Search returns the query with a leading "?", or "" when empty.
func (p Params) Search() string {
	if len(p) == 0 {
		return ""
	}
	return "?" + p.Encode()
}
