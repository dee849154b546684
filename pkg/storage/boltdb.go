package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/burrow/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketACMEAccounts = []byte("acme_accounts")
	bucketVirtualHosts = []byte("virtual_hosts")
)

// BoltStore implements Store interface using BoltDB.
//
// The database file is opened for each transaction and closed right after, so
// a long-running serve process never holds the bolt file lock while a CLI
// invocation needs it.
type BoltStore struct {
	path    string
	timeout time.Duration
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &BoltStore{
		path:    filepath.Join(dataDir, "burrow.db"),
		timeout: 10 * time.Second,
	}

	err := s.update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketACMEAccounts, bucketVirtualHosts} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Path returns the database file location
func (s *BoltStore) Path() string {
	return s.path
}

// Close is a no-op; the file is only open inside a transaction
func (s *BoltStore) Close() error {
	return nil
}

func (s *BoltStore) open() (*bolt.DB, error) {
	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: s.timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func (s *BoltStore) update(fn func(tx *bolt.Tx) error) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Update(fn)
}

func (s *BoltStore) view(fn func(tx *bolt.Tx) error) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return db.View(fn)
}

// ACME account operations
func (s *BoltStore) SaveACMEAccount(account *ACMEAccount) error {
	return s.put(bucketACMEAccounts, account.Email, account)
}

func (s *BoltStore) GetACMEAccount(email string) (*ACMEAccount, error) {
	var account ACMEAccount
	if err := s.get(bucketACMEAccounts, email, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// Virtual host operations
func (s *BoltStore) PutVirtualHost(vhost *types.VirtualHost) error {
	return s.put(bucketVirtualHosts, vhost.ServerName, vhost)
}

func (s *BoltStore) GetVirtualHost(serverName string) (*types.VirtualHost, error) {
	var vhost types.VirtualHost
	if err := s.get(bucketVirtualHosts, serverName, &vhost); err != nil {
		return nil, err
	}
	return &vhost, nil
}

func (s *BoltStore) ListVirtualHosts() ([]*types.VirtualHost, error) {
	var vhosts []*types.VirtualHost
	err := s.view(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVirtualHosts)
		return b.ForEach(func(k, v []byte) error {
			var vhost types.VirtualHost
			if err := json.Unmarshal(v, &vhost); err != nil {
				return err
			}
			vhosts = append(vhosts, &vhost)
			return nil
		})
	})
	return vhosts, err
}

func (s *BoltStore) DeleteVirtualHost(serverName string) error {
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVirtualHosts)
		if b.Get([]byte(serverName)) == nil {
			return fmt.Errorf("virtual host %s: %w", serverName, types.ErrNotFound)
		}
		return b.Delete([]byte(serverName))
	})
}

func (s *BoltStore) put(bucket []byte, key string, v interface{}) error {
	return s.update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (s *BoltStore) get(bucket []byte, key string, v interface{}) error {
	return s.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s %s: %w", bucket, key, types.ErrNotFound)
		}
		return json.Unmarshal(data, v)
	})
}
