package oss

import (
	"context"
	"strings"

	"github.com/IceFireDB/IceFireDB-SWGateway/driver"
)

const StorageName = "oss"

func init() {
	driver.Register(Store{})
}

type Store struct{}

func (s Store) String() string {
	return StorageName
}

// Open stores name as the "<name>/" key prefix in the configured bucket.
func (s Store) Open(name string, cfg *driver.Config) (driver.IDB, error) {
	c, err := NewClient(optionsFrom(cfg))
	if err != nil {
		return nil, err
	}
	return &DB{client: c, prefix: name + "/"}, nil
}

func optionsFrom(cfg *driver.Config) Options {
	return Options{
		BucketName:             cfg.OSS.Bucket,
		Region:                 cfg.OSS.Region,
		AWSaccessKeyID:         cfg.OSS.AccessKey,
		AWSsecretAccessKey:     cfg.OSS.SecretKey,
		CustomEndpoint:         cfg.OSS.Endpoint,
		UsePathStyleAddressing: cfg.OSS.PathStyle,
	}
}

type DB struct {
	client Client
	prefix string
}

var _ driver.IDB = (*DB)(nil)

func (db *DB) Get(ctx context.Context, key string) ([]byte, error) {
	return db.client.Get(ctx, db.prefix+key)
}

func (db *DB) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return db.client.Set(ctx, db.prefix+key, value)
}

func (db *DB) Delete(ctx context.Context, key string) error {
	return db.client.Delete(ctx, db.prefix+key)
}

func (db *DB) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := db.client.List(ctx, db.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, db.prefix)
	}
	return keys, nil
}

// Close has no effect, the S3 client keeps no connection open.
func (db *DB) Close() error {
	return nil
}
