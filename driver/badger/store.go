package badger

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/IceFireDB/IceFireDB-SWGateway/driver"
	"github.com/dgraph-io/badger/v4"
)

const StorageName = "badger"

var _ driver.Store = (*Store)(nil)

func init() {
	driver.Register(Store{})
}

type Store struct {
}

func (s Store) String() string {
	return StorageName
}

// Open opens <DataDir>/<name>. An empty DataDir keeps the database in memory.
func (s Store) Open(name string, cfg *driver.Config) (driver.IDB, error) {
	var opts badger.Options
	if cfg.DataDir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		path := filepath.Join(cfg.DataDir, name)
		if err := os.MkdirAll(path, fs.ModePerm); err != nil {
			return nil, err
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db := new(DB)
	db.iteratorOpts = badger.DefaultIteratorOptions
	db.iteratorOpts.PrefetchValues = false

	var err error
	db.db, err = badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return db, nil
}
