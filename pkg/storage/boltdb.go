package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/radgate/radgate/pkg/types"
)

var bucketNasClients = []byte("nas_clients")

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "radgate.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketNasClients); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketNasClients, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) CreateNas(rec *types.NasRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNasClients)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.Key()), data)
	})
}

func (s *BoltStore) GetNas(listenAddr, nasIP string) (*types.NasRecord, error) {
	var rec types.NasRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNasClients)
		data := b.Get([]byte(listenAddr + "/" + nasIP))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BoltStore) ListNas() ([]*types.NasRecord, error) {
	var recs []*types.NasRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNasClients)
		return b.ForEach(func(k, v []byte) error {
			var rec types.NasRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, &rec)
			return nil
		})
	})
	return recs, err
}

func (s *BoltStore) ListNasByServer(listenAddr string) ([]*types.NasRecord, error) {
	prefix := listenAddr + "/"
	var recs []*types.NasRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNasClients)
		return b.ForEach(func(k, v []byte) error {
			if !strings.HasPrefix(string(k), prefix) {
				return nil
			}
			var rec types.NasRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, &rec)
			return nil
		})
	})
	return recs, err
}

func (s *BoltStore) UpdateNas(rec *types.NasRecord) error {
	return s.CreateNas(rec) // Same as create (upsert)
}

func (s *BoltStore) DeleteNas(listenAddr, nasIP string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNasClients)
		return b.Delete([]byte(listenAddr + "/" + nasIP))
	})
}
