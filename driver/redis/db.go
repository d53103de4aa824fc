package redis

import (
	"context"
	"errors"
	"strings"

	"github.com/IceFireDB/IceFireDB-SWGateway/driver"
	gokvutil "github.com/philippgille/gokv/util"
	goredis "github.com/redis/go-redis/v9"
)

const (
	StorageName = "redis"
	scanCount   = 256
)

func init() {
	driver.Register(Store{})
}

type Store struct{}

func (s Store) String() string {
	return StorageName
}

// Open connects to cfg.Redis.Addr. Every key is stored as "<name>:<key>".
func (s Store) Open(name string, cfg *driver.Config) (driver.IDB, error) {
	if cfg.Redis.Addr == "" {
		return nil, errors.New("redis: addr must not be empty")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &DB{client: client, prefix: name + ":"}, nil
}

type DB struct {
	client *goredis.Client
	prefix string
}

var _ driver.IDB = (*DB)(nil)

func (db *DB) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := db.client.Get(ctx, db.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, driver.ErrNotFound
	}
	return v, err
}

func (db *DB) Put(ctx context.Context, key string, value []byte) error {
	if err := gokvutil.CheckKey(key); err != nil {
		return err
	}
	return db.client.Set(ctx, db.prefix+key, value, 0).Err()
}

func (db *DB) Delete(ctx context.Context, key string) error {
	return db.client.Del(ctx, db.prefix+key).Err()
}

func (db *DB) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := db.client.Scan(ctx, 0, escapeGlob(db.prefix+prefix)+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), db.prefix))
	}
	return keys, iter.Err()
}

func (db *DB) Close() error {
	return db.client.Close()
}

// escapeGlob quotes the characters SCAN MATCH treats as patterns.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
