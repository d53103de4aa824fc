// Package buntdb_memory is an in-memory backend on tidwall/buntdb. Nothing
// survives a restart.
package buntdb_memory

import (
	"context"
	"errors"
	"strings"

	"github.com/IceFireDB/IceFireDB-SWGateway/driver"
	gokvutil "github.com/philippgille/gokv/util"
	"github.com/tidwall/buntdb"
)

const StorageName = "buntdb-memory"

func init() {
	driver.Register(Store{})
}

type Store struct{}

func (s Store) String() string {
	return StorageName
}

// Open ignores name: every database is a separate in-memory instance.
func (s Store) Open(name string, cfg *driver.Config) (driver.IDB, error) {
	return NewDB()
}

type DB struct {
	db *buntdb.DB
}

var _ driver.IDB = (*DB)(nil)

func NewDB() (*DB, error) {
	bdb, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	return &DB{db: bdb}, nil
}

func (d *DB) Get(_ context.Context, key string) ([]byte, error) {
	if err := gokvutil.CheckKey(key); err != nil {
		return nil, err
	}
	var value []byte
	err := d.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(key)
		if err != nil {
			return err
		}
		value = []byte(val)
		return nil
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, driver.ErrNotFound
	}
	return value, err
}

func (d *DB) Put(_ context.Context, key string, value []byte) error {
	if err := gokvutil.CheckKey(key); err != nil {
		return err
	}
	return d.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(value), nil)
		return err
	})
}

func (d *DB) Delete(_ context.Context, key string) error {
	if err := gokvutil.CheckKey(key); err != nil {
		return err
	}
	err := d.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil
	}
	return err
}

// Keys walks the key space from prefix; keys may hold glob characters so
// AscendKeys patterns are not used.
func (d *DB) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := d.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendGreaterOrEqual("", prefix, func(key, _ string) bool {
			if !strings.HasPrefix(key, prefix) {
				return false
			}
			keys = append(keys, key)
			return true
		})
	})
	return keys, err
}

func (d *DB) Close() error {
	return d.db.Close()
}
