package session

import (
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "localStorage"

// ErrNotFound is returned when a key has no value
var ErrNotFound = errors.New("item not found")

// Local is a persistent string key-value store for a single front-end installation
type Local struct {
	db *bbolt.DB
}

// OpenLocal opens, creating it if needed, the store at path
func OpenLocal(path string) (*Local, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening local storage: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Local{db: db}, nil
}

// GetItem returns the value stored under key
func (l *Local) GetItem(key string) (string, error) {
	var value string
	err := l.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		value = string(data)
		return nil
	})
	return value, err
}

// SetItem stores value under key, replacing any previous value
func (l *Local) SetItem(key, value string) error {
	return l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), []byte(value))
	})
}

// RemoveItem deletes key. Removing a missing key is not an error.
func (l *Local) RemoveItem(key string) error {
	return l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(key))
	})
}

// Close closes the underlying database
func (l *Local) Close() error {
	return l.db.Close()
}
