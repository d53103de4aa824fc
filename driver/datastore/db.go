// Package datastore adapts an ipfs go-datastore to the driver interface.
// Keys are hex encoded below /<name>/ so that any string, including URLs
// with trailing slashes, is a valid datastore key.
package datastore

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/IceFireDB/IceFireDB-SWGateway/driver"
	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dssync "github.com/ipfs/go-datastore/sync"
	gokvutil "github.com/philippgille/gokv/util"
)

const StorageName = "datastore"

func init() {
	driver.Register(Store{})
}

type Store struct{}

func (s Store) String() string {
	return StorageName
}

// Open opens name on a fresh thread safe in-memory datastore.
func (s Store) Open(name string, cfg *driver.Config) (driver.IDB, error) {
	return New(dssync.MutexWrap(ds.NewMapDatastore()), name), nil
}

// New wraps an existing datastore. Close closes the datastore.
func New(d ds.Datastore, name string) *DB {
	return &DB{ds: d, namespace: "/" + hex.EncodeToString([]byte(name))}
}

type DB struct {
	ds        ds.Datastore
	namespace string
}

var _ driver.IDB = (*DB)(nil)

func (db *DB) key(k string) ds.Key {
	return ds.RawKey(db.namespace + "/" + hex.EncodeToString([]byte(k)))
}

func (db *DB) Get(ctx context.Context, key string) ([]byte, error) {
	if err := gokvutil.CheckKey(key); err != nil {
		return nil, err
	}
	v, err := db.ds.Get(ctx, db.key(key))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, driver.ErrNotFound
	}
	return v, err
}

func (db *DB) Put(ctx context.Context, key string, value []byte) error {
	if err := gokvutil.CheckKey(key); err != nil {
		return err
	}
	return db.ds.Put(ctx, db.key(key), value)
}

func (db *DB) Delete(ctx context.Context, key string) error {
	if err := gokvutil.CheckKey(key); err != nil {
		return err
	}
	return db.ds.Delete(ctx, db.key(key))
}

func (db *DB) Keys(ctx context.Context, prefix string) ([]string, error) {
	q := dsq.Query{
		Prefix:   db.namespace,
		KeysOnly: true,
		Filters: []dsq.Filter{
			dsq.FilterKeyPrefix{Prefix: db.namespace + "/" + hex.EncodeToString([]byte(prefix))},
		},
	}
	res, err := db.ds.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	var keys []string
	for r := range res.Next() {
		if r.Error != nil {
			return nil, r.Error
		}
		raw, err := hex.DecodeString(strings.TrimPrefix(r.Key, db.namespace+"/"))
		if err != nil {
			return nil, err
		}
		keys = append(keys, string(raw))
	}
	return keys, nil
}

func (db *DB) Close() error {
	return db.ds.Close()
}
