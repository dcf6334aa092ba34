package storage

import (
	"bytes"
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucketArtifacts = []byte("session_artifacts") // sessionID/objectName -> bytes

// BoltArtifactStore implements ArtifactStore on a single-file BoltDB
// bucket. Suitable for single-node deployments where the upload volume
// is one small PDF per session.
type BoltArtifactStore struct {
	db *bolt.DB
}

func NewBoltArtifactStore(db *bolt.DB) (*BoltArtifactStore, error) {
	if err := db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(bucketArtifacts)
		return createErr
	}); err != nil {
		return nil, fmt.Errorf("create artifacts bucket: %w", err)
	}
	return &BoltArtifactStore{db: db}, nil
}

// OpenBoltArtifactStore opens (or creates) the database file at path.
// The caller owns the returned *bolt.DB and must close it on shutdown.
func OpenBoltArtifactStore(path string) (*BoltArtifactStore, *bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("open artifact store %s: %w", path, err)
	}
	store, err := NewBoltArtifactStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, db, nil
}

func (s *BoltArtifactStore) Put(_ context.Context, key string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketArtifacts).Put([]byte(key), data)
	})
}

func (s *BoltArtifactStore) Get(_ context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketArtifacts).Get([]byte(key))
		if v == nil {
			return ErrObjectNotFound
		}
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *BoltArtifactStore) ListByPrefix(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketArtifacts).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *BoltArtifactStore) Copy(_ context.Context, srcKey, dstKey string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArtifacts)
		v := b.Get([]byte(srcKey))
		if v == nil {
			return ErrObjectNotFound
		}
		return b.Put([]byte(dstKey), v)
	})
}

func (s *BoltArtifactStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketArtifacts).Delete([]byte(key))
	})
}
