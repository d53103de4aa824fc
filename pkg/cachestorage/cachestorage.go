// Package cachestorage keeps named buckets of stored HTTP responses on top of
// a driver.IDB. Bucket names embed a version so that bumping the version
// orphans every old entry at once; orphaned buckets are removed by Prune.
package cachestorage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/IceFireDB/IceFireDB-SWGateway/driver"
	"github.com/philippgille/gokv/encoding"
)

const Version = 2

const (
	namePrefix  = "n/"
	entryPrefix = "b/"
)

var (
	MutableName   = fmt.Sprintf("mutable-cache-v%d", Version)
	ImmutableName = fmt.Sprintf("immutable-cache-v%d", Version)
	AssetsName    = fmt.Sprintf("sw-assets-v%d", Version)
)

// CurrentNames are the buckets a running gateway uses.
func CurrentNames() []string {
	return []string{MutableName, ImmutableName, AssetsName}
}

// Entry is a stored response.
type Entry struct {
	Status     int         `json:"status"`
	StatusText string      `json:"statusText"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
}

// NewEntry copies the status line and headers of resp. body is the complete
// response body.
func NewEntry(resp *http.Response, body []byte) *Entry {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return &Entry{
		Status:     resp.StatusCode,
		StatusText: text,
		Header:     resp.Header.Clone(),
		Body:       body,
	}
}

// Response builds a fresh response from the entry. Every call returns an
// independent body.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, e.StatusText),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Storage is the set of buckets kept in one database.
type Storage struct {
	db    driver.IDB
	codec encoding.Codec

	mu      sync.Mutex
	buckets map[string]*Bucket
}

func New(db driver.IDB) *Storage {
	return &Storage{
		db:      db,
		codec:   encoding.JSON,
		buckets: make(map[string]*Bucket),
	}
}

// Open returns the bucket name, creating it if needed.
func (s *Storage) Open(ctx context.Context, name string) (*Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[name]; ok {
		return b, nil
	}
	if err := s.db.Put(ctx, namePrefix+name, []byte{1}); err != nil {
		return nil, fmt.Errorf("open cache %s: %w", name, err)
	}
	b := &Bucket{name: name, prefix: entryPrefix + name + "/", db: s.db, codec: s.codec}
	s.buckets[name] = b
	return b, nil
}

// Has reports whether a bucket called name exists.
func (s *Storage) Has(ctx context.Context, name string) (bool, error) {
	_, err := s.db.Get(ctx, namePrefix+name)
	if errors.Is(err, driver.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Keys lists the bucket names.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.db.Keys(ctx, namePrefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, namePrefix)
	}
	return keys, nil
}

// Delete removes the bucket name and every entry in it. It reports whether
// the bucket existed.
func (s *Storage) Delete(ctx context.Context, name string) (bool, error) {
	ok, err := s.Has(ctx, name)
	if err != nil || !ok {
		return false, err
	}

	prefix := entryPrefix + name + "/"
	keys, err := s.db.Keys(ctx, prefix)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if err := s.db.Delete(ctx, k); err != nil {
			return false, err
		}
	}
	if err := s.db.Delete(ctx, namePrefix+name); err != nil {
		return false, err
	}

	s.mu.Lock()
	delete(s.buckets, name)
	s.mu.Unlock()
	return true, nil
}

// Prune deletes every bucket whose name is not in keep and returns the
// deleted names.
func (s *Storage) Prune(ctx context.Context, keep ...string) ([]string, error) {
	names, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(keep))
	for _, k := range keep {
		wanted[k] = true
	}

	var deleted []string
	for _, name := range names {
		if wanted[name] {
			continue
		}
		if _, err := s.Delete(ctx, name); err != nil {
			return deleted, err
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Bucket is a named set of stored responses.
type Bucket struct {
	name   string
	prefix string
	db     driver.IDB
	codec  encoding.Codec
}

func (b *Bucket) Name() string {
	return b.name
}

// Match returns the entry stored under key, or nil if there is none.
func (b *Bucket) Match(ctx context.Context, key string) (*Entry, error) {
	data, err := b.db.Get(ctx, b.prefix+key)
	if errors.Is(err, driver.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e := new(Entry)
	if err := b.codec.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return e, nil
}

func (b *Bucket) Put(ctx context.Context, key string, e *Entry) error {
	data, err := b.codec.Marshal(e)
	if err != nil {
		return err
	}
	return b.db.Put(ctx, b.prefix+key, data)
}

func (b *Bucket) Delete(ctx context.Context, key string) error {
	return b.db.Delete(ctx, b.prefix+key)
}

// Keys lists the keys stored in the bucket.
func (b *Bucket) Keys(ctx context.Context) ([]string, error) {
	keys, err := b.db.Keys(ctx, b.prefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, b.prefix)
	}
	return keys, nil
}

// Clear removes every entry but keeps the bucket.
func (b *Bucket) Clear(ctx context.Context) error {
	keys, err := b.db.Keys(ctx, b.prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := b.db.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
