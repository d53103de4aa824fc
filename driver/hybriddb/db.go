package hybriddb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/IceFireDB/IceFireDB-SWGateway/driver"
	"github.com/dgraph-io/ristretto/v2"
	gokvutil "github.com/philippgille/gokv/util"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	StorageName                = "hybriddb"
	MB                         = 1024 * 1024
	defaultHotCacheSize        = 256 // unit:MB
	defaultHotCacheNumCounters = 1e7
	defaultFilterBits          = 10
	defaultBlockCacheSize      = 8 * MB
)

// cacheItem is a struct that holds both the key and value.
// We store this in the cache so that we can access the key
// during eviction.
type cacheItem struct {
	key   string
	value []byte
}

var _ driver.IDB = (*DB)(nil)

func init() {
	driver.Register(Store{})
}

type Store struct{}

func (s Store) String() string {
	return StorageName
}

// Open opens <DataDir>/<name> as a leveldb cold tier fronted by a ristretto
// hot tier.
func (s Store) Open(name string, cfg *driver.Config) (driver.IDB, error) {
	path := filepath.Join(cfg.DataDir, name)
	if err := os.MkdirAll(path, fs.ModePerm); err != nil {
		return nil, err
	}

	db := &DB{path: path}
	db.initOpts()

	var err error
	db.db, err = leveldb.OpenFile(db.path, db.opts)
	if err != nil {
		return nil, err
	}

	hotCacheSize := cfg.HotCacheSize
	if hotCacheSize <= 0 {
		hotCacheSize = defaultHotCacheSize
	}

	db.cache, err = ristretto.NewCache(&ristretto.Config[string, *cacheItem]{
		MaxCost:     hotCacheSize * MB,
		NumCounters: defaultHotCacheNumCounters,
		BufferItems: 64,
		Metrics:     true,
		// The cost is the size of the value in bytes.
		Cost: func(item *cacheItem) int64 {
			return int64(len(item.value))
		},
	})
	if err != nil {
		db.db.Close()
		return nil, err
	}

	return db, nil
}

type DB struct {
	path string
	db   *leveldb.DB // Cold tier storage
	opts *opt.Options

	iteratorOpts *opt.ReadOptions

	cache *ristretto.Cache[string, *cacheItem] // Hot tier storage
}

func (db *DB) initOpts() {
	db.opts = &opt.Options{
		ErrorIfMissing:     false,
		BlockCacheCapacity: defaultBlockCacheSize,
		Filter:             filter.NewBloomFilter(defaultFilterBits),
		Compression:        opt.SnappyCompression,
	}
	db.iteratorOpts = &opt.ReadOptions{DontFillCache: true}
}

func (db *DB) Close() error {
	// Close the cache and wait for all OnEvict writes to complete.
	db.cache.Close()
	return db.db.Close()
}

func (db *DB) Put(ctx context.Context, key string, value []byte) error {
	if err := gokvutil.CheckKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// Write-through caching: write to persistent storage first
	if err := db.db.Put([]byte(key), value, nil); err != nil {
		return err
	}
	db.cache.Set(key, &cacheItem{key: key, value: value}, int64(len(value)))
	return nil
}

func (db *DB) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// 1. Check hot tier
	if item, ok := db.cache.Get(key); ok {
		return item.value, nil
	}

	// 2. Check cold tier
	v, err := db.db.Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, driver.ErrNotFound
		}
		return nil, err
	}

	// 3. Promote to hot tier
	db.cache.Set(key, &cacheItem{key: key, value: v}, int64(len(v)))
	return v, nil
}

func (db *DB) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := db.db.Delete([]byte(key), nil); err != nil {
		return err
	}
	db.cache.Del(key)
	return nil
}

func (db *DB) Keys(ctx context.Context, prefix string) ([]string, error) {
	it := db.db.NewIterator(util.BytesPrefix([]byte(prefix)), db.iteratorOpts)
	defer it.Release()

	var keys []string
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		keys = append(keys, string(it.Key()))
	}
	return keys, it.Error()
}

// Metrics reports the hot tier counters.
func (db *DB) Metrics() (tit string, metrics []map[string]interface{}) {
	tit = "hybriddb cache"
	if db.cache == nil || db.cache.Metrics == nil {
		return tit, nil
	}
	m := db.cache.Metrics
	metrics = []map[string]interface{}{
		{"used_cost": m.CostAdded() - m.CostEvicted()},
		{"hits": m.Hits()},
		{"misses": m.Misses()},
		{"ratio": fmt.Sprintf("%.2f", m.Ratio())},
		{"keys_added": m.KeysAdded()},
		{"keys_evicted": m.KeysEvicted()},
	}
	return
}
