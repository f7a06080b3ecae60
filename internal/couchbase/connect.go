package couchbase

import (
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
)

// Config holds the cluster connection settings.
type Config struct {
	ConnectionString string        `env:"COUCHBASE_CONNECTION_STRING" envDefault:"couchbase://localhost"`
	Username         string        `env:"COUCHBASE_USERNAME" envDefault:"Administrator"`
	Password         string        `env:"COUCHBASE_PASSWORD" envDefault:"password"`
	Bucket           string        `env:"COUCHBASE_BUCKET_NAME" envDefault:"flightbus"`
	Scope            string        `env:"COUCHBASE_SCOPE_NAME" envDefault:"_default"`
	ReadyTimeout     time.Duration `env:"COUCHBASE_READY_TIMEOUT" envDefault:"5s"`
}

// Connect opens the cluster and waits for the configured bucket.
func Connect(config Config) (*gocb.Cluster, *gocb.Bucket, error) {
	cluster, err := gocb.Connect(config.ConnectionString, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: config.Username,
			Password: config.Password,
		},
		TimeoutsConfig: gocb.TimeoutsConfig{
			ConnectTimeout: 10 * time.Second,
			KVTimeout:      5 * time.Second,
			QueryTimeout:   30 * time.Second,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}

	bucket := cluster.Bucket(config.Bucket)
	if err := bucket.WaitUntilReady(config.ReadyTimeout, nil); err != nil {
		_ = cluster.Close(nil)
		return nil, nil, fmt.Errorf("bucket not ready: %w", err)
	}

	return cluster, bucket, nil
}

// NewStore opens the named collection of scope as a typed store.
func NewStore[T any](cluster *gocb.Cluster, bucket *gocb.Bucket, scope, collection string) (*Couchbase[T], error) {
	store, err := NewCouchbase[T](cluster, bucket, bucket.Scope(scope).Collection(collection))
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", collection, err)
	}
	return store, nil
}
