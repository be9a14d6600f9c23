// internal/storage/leveldb/client.go
package leveldb

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fawad-mazhar/jobcards/internal/config"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// CacheEntry wraps a cached value with its expiry
type CacheEntry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Client is a TTL cache of job card views on top of LevelDB
type Client struct {
	db              *leveldb.DB
	ttl             time.Duration
	cleanupInterval time.Duration
	mutex           sync.RWMutex
	stopCleanup     chan struct{}
	closeOnce       sync.Once
	now             func() time.Time
}

func NewClient(cfg config.LevelDBConfig) (*Client, error) {
	opts := &opt.Options{
		CompactionTableSize: 2 * 1024 * 1024, // 2MB
		WriteBuffer:         1 * 1024 * 1024, // 1MB
	}

	db, err := leveldb.OpenFile(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb: %w", err)
	}

	ttl := time.Duration(cfg.TTLHours) * time.Hour
	cleanupInterval := ttl / 4
	if cleanupInterval < time.Minute {
		cleanupInterval = time.Minute
	}

	client := &Client{
		db:              db,
		ttl:             ttl,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
	}

	go client.startCleanupRoutine()

	return client, nil
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stopCleanup)
		err = c.db.Close()
	})
	return err
}

func (c *Client) Put(key string, value []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry := CacheEntry{
		Value:     value,
		ExpiresAt: c.now().Add(c.ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	return c.db.Put([]byte(key), data, nil)
}

// Get returns the cached value, or nil when the key is absent or expired
func (c *Client) Get(key string) ([]byte, error) {
	c.mutex.RLock()
	data, err := c.db.Get([]byte(key), nil)
	c.mutex.RUnlock()
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	if c.now().After(entry.ExpiresAt) {
		if err := c.Delete(key); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return entry.Value, nil
}

// PutJSON caches v encoded as JSON
func (c *Client) PutJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return c.Put(key, data)
}

// GetJSON decodes a cached value into v and reports whether it was found
func (c *Client) GetJSON(key string, v any) (bool, error) {
	data, err := c.Get(key)
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (c *Client) Delete(key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.db.Delete([]byte(key), nil)
}

func (c *Client) startCleanupRoutine() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

// cleanup removes every expired entry and returns how many were dropped
func (c *Client) cleanup() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	iter := c.db.NewIterator(util.BytesPrefix([]byte{}), nil)
	defer iter.Release()

	var keysToDelete [][]byte
	now := c.now()

	for iter.Next() {
		var entry CacheEntry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			continue
		}

		if now.After(entry.ExpiresAt) {
			keysToDelete = append(keysToDelete, append([]byte(nil), iter.Key()...))
		}
	}

	batch := new(leveldb.Batch)
	for _, key := range keysToDelete {
		batch.Delete(key)
	}
	if err := c.db.Write(batch, nil); err != nil {
		return 0
	}
	return len(keysToDelete)
}
