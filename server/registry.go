package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// ErrConsumerNotFound is reported when no consumer exists for an id.
var ErrConsumerNotFound = errors.New("consumer not found")

// ConsumerRegistry abstracts storage of consumer records. The admin
// workflow treats the registry as an opaque collaborator: identity and
// credential generation belong here, never to callers. Update touches the
// core record only; the callback lives in associated metadata and is
// written through SetCallback as a distinct operation.
type ConsumerRegistry interface {
	Create(params ConsumerParams) (*Consumer, error)
	Update(id, name, description string) (*Consumer, error)
	SetCallback(id, callback string) error
	Get(id string) (*Consumer, error)
	Delete(id string) bool
	List() ([]*Consumer, error)
}

const (
	registryDirPerm  = fs.FileMode(0o700)
	registryFilePerm = fs.FileMode(0o600)

	// registryOpenTimeout bounds the wait for the bolt file lock.
	registryOpenTimeout = 5 * time.Second

	consumerKeyBytes    = 12
	consumerSecretBytes = 24
)

var consumersBucket = []byte("consumers")

// BoltRegistry persists consumers in a bbolt database.
type BoltRegistry struct {
	db *bolt.DB
}

// OpenBoltRegistry opens the registry database at path, creating it and
// its parent directory if necessary.
func OpenBoltRegistry(path string) (*BoltRegistry, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, registryDirPerm); err != nil {
			return nil, fmt.Errorf("create registry directory: %w", err)
		}
	}

	db, err := bolt.Open(path, registryFilePerm, &bolt.Options{Timeout: registryOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(consumersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init registry bucket: %w", err)
	}

	return &BoltRegistry{db: db}, nil
}

// Close releases the underlying database.
func (r *BoltRegistry) Close() error { return r.db.Close() }

// Create stores a fully formed consumer. The registry is the sole
// authority for id, key, and secret.
func (r *BoltRegistry) Create(params ConsumerParams) (*Consumer, error) {
	now := time.Now().UTC()
	consumer := &Consumer{
		ID:          uuid.NewString(),
		Name:        params.Name,
		Description: params.Description,
		Callback:    params.Callback,
		Key:         randomHexToken(consumerKeyBytes),
		Secret:      randomHexToken(consumerSecretBytes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.put(consumer); err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}
	return consumer, nil
}

// Update rewrites the name and description of an existing consumer.
func (r *BoltRegistry) Update(id, name, description string) (*Consumer, error) {
	var updated *Consumer
	err := r.db.Update(func(tx *bolt.Tx) error {
		consumer, err := getConsumer(tx, id)
		if err != nil {
			return err
		}
		consumer.Name = name
		consumer.Description = description
		consumer.UpdatedAt = time.Now().UTC()
		updated = consumer
		return putConsumer(tx, consumer)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetCallback persists the callback URL for an existing consumer.
func (r *BoltRegistry) SetCallback(id, callback string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		consumer, err := getConsumer(tx, id)
		if err != nil {
			return err
		}
		consumer.Callback = callback
		consumer.UpdatedAt = time.Now().UTC()
		return putConsumer(tx, consumer)
	})
}

// Get fetches a consumer by id.
func (r *BoltRegistry) Get(id string) (*Consumer, error) {
	var consumer *Consumer
	err := r.db.View(func(tx *bolt.Tx) error {
		c, err := getConsumer(tx, id)
		if err != nil {
			return err
		}
		consumer = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return consumer, nil
}

// Delete removes a consumer and reports whether it existed.
func (r *BoltRegistry) Delete(id string) bool {
	existed := false
	err := r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(consumersBucket)
		if bucket.Get([]byte(id)) == nil {
			return nil
		}
		existed = true
		return bucket.Delete([]byte(id))
	})
	return err == nil && existed
}

// List returns all consumers ordered by creation time, oldest first.
func (r *BoltRegistry) List() ([]*Consumer, error) {
	var consumers []*Consumer
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(consumersBucket).ForEach(func(_, v []byte) error {
			var consumer Consumer
			if err := json.Unmarshal(v, &consumer); err != nil {
				return fmt.Errorf("decode consumer record: %w", err)
			}
			consumers = append(consumers, &consumer)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(consumers, func(i, j int) bool {
		if consumers[i].CreatedAt.Equal(consumers[j].CreatedAt) {
			return consumers[i].Name < consumers[j].Name
		}
		return consumers[i].CreatedAt.Before(consumers[j].CreatedAt)
	})
	return consumers, nil
}

func (r *BoltRegistry) put(consumer *Consumer) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return putConsumer(tx, consumer)
	})
}

func getConsumer(tx *bolt.Tx, id string) (*Consumer, error) {
	raw := tx.Bucket(consumersBucket).Get([]byte(id))
	if raw == nil {
		return nil, ErrConsumerNotFound
	}
	var consumer Consumer
	if err := json.Unmarshal(raw, &consumer); err != nil {
		return nil, fmt.Errorf("decode consumer record: %w", err)
	}
	return &consumer, nil
}

func putConsumer(tx *bolt.Tx, consumer *Consumer) error {
	raw, err := json.Marshal(consumer)
	if err != nil {
		return fmt.Errorf("encode consumer record: %w", err)
	}
	return tx.Bucket(consumersBucket).Put([]byte(consumer.ID), raw)
}

// randomHexToken generates a cryptographically random hex string of
// twice the given byte length.
func randomHexToken(byteLen int) string {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
