package badger

import (
	"context"
	"errors"

	"github.com/IceFireDB/IceFireDB-SWGateway/driver"
	"github.com/dgraph-io/badger/v4"
	gokvutil "github.com/philippgille/gokv/util"
)

var _ driver.IDB = (*DB)(nil)

type DB struct {
	db           *badger.DB
	iteratorOpts badger.IteratorOptions
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) Put(ctx context.Context, key string, value []byte) error {
	if err := gokvutil.CheckKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (db *DB) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var v []byte
	err := db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		v, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, driver.ErrNotFound
	}
	return v, err
}

func (db *DB) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (db *DB) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := db.db.View(func(txn *badger.Txn) error {
		opts := db.iteratorOpts
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}
