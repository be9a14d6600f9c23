// internal/storage/bolt/client.go
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/boltdb/bolt"
	"github.com/fawad-mazhar/jobcards/internal/config"
	"github.com/fawad-mazhar/jobcards/internal/lifecycle"
	"github.com/fawad-mazhar/jobcards/internal/models"
	"github.com/fawad-mazhar/jobcards/internal/storage"
)

// FileMode is the permission used when the bolt file is created
const FileMode os.FileMode = 0o600

var (
	jobCardsBucket = []byte("job_cards")
	tasksBucket    = []byte("tasks")
	historyBucket  = []byte("history")
)

// taskRecord keeps the insertion position next to the task so listing preserves creation order
type taskRecord struct {
	Seq  uint64      `json:"seq"`
	Task models.Task `json:"task"`
}

// Client is a storage.Store backed by a single bolt file.
// Layout: <root>/job_cards/<id>, <root>/tasks/<jobCardID>/<taskID>, <root>/history/<jobCardID>/<seq>.
type Client struct {
	db     *bolt.DB
	bucket []byte
}

var _ storage.Store = (*Client)(nil)

func NewClient(cfg config.StorageConfig) (*Client, error) {
	db, err := bolt.Open(cfg.BoltPath, FileMode, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt file %s: %w", cfg.BoltPath, err)
	}

	c := &Client{db: db, bucket: []byte(cfg.BoltBucket)}
	err = db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(c.bucket)
		if err != nil {
			return err
		}
		for _, name := range [][]byte{jobCardsBucket, tasksBucket, historyBucket} {
			if _, err := root.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return c, nil
}

// Path returns the file backing the store
func (c *Client) Path() string {
	return c.db.Path()
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) CreateJobCard(ctx context.Context, jc models.JobCard, m storage.Mutation) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		cards := tx.Bucket(c.bucket).Bucket(jobCardsBucket)
		if cards.Get([]byte(jc.ID)) != nil {
			return fmt.Errorf("job card %s already exists", jc.ID)
		}
		if err := putJSON(cards, []byte(jc.ID), jc); err != nil {
			return err
		}

		m.JobCardID = jc.ID
		return c.applyMutation(tx, m)
	})
}

func (c *Client) GetJobCard(ctx context.Context, id string) (*models.JobCard, error) {
	var jc models.JobCard
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(c.bucket).Bucket(jobCardsBucket).Get([]byte(id))
		if raw == nil {
			return storage.ErrJobCardNotFound
		}
		return json.Unmarshal(raw, &jc)
	})
	if err != nil {
		return nil, err
	}
	return &jc, nil
}

func (c *Client) ListJobCards(ctx context.Context) ([]models.JobCard, error) {
	cards := make([]models.JobCard, 0)
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(c.bucket).Bucket(jobCardsBucket).ForEach(func(k, v []byte) error {
			var jc models.JobCard
			if err := json.Unmarshal(v, &jc); err != nil {
				return err
			}
			cards = append(cards, jc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(cards, func(i, j int) bool {
		if cards[i].CreatedAt.Equal(cards[j].CreatedAt) {
			return cards[i].ID < cards[j].ID
		}
		return cards[i].CreatedAt.Before(cards[j].CreatedAt)
	})
	return cards, nil
}

func (c *Client) ListTasks(ctx context.Context, jobCardID string) ([]models.Task, error) {
	var records []taskRecord
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket).Bucket(tasksBucket).Bucket([]byte(jobCardID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var rec taskRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	tasks := make([]models.Task, 0, len(records))
	for _, rec := range records {
		tasks = append(tasks, rec.Task)
	}
	return tasks, nil
}

func (c *Client) ListHistory(ctx context.Context, jobCardID string) ([]models.HistoryEntry, error) {
	entries := make([]models.HistoryEntry, 0)
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket).Bucket(historyBucket).Bucket([]byte(jobCardID))
		if b == nil {
			return nil
		}
		// keys are big endian sequence numbers, so ForEach walks insertion order
		return b.ForEach(func(k, v []byte) error {
			var entry models.HistoryEntry
			if err := entry.FromJSON(v); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Apply writes a mutation in one bolt transaction. A version mismatch on any task
// rolls back everything and returns lifecycle.ErrConflict.
func (c *Client) Apply(ctx context.Context, m storage.Mutation) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return c.applyMutation(tx, m)
	})
}

func (c *Client) applyMutation(tx *bolt.Tx, m storage.Mutation) error {
	root := tx.Bucket(c.bucket)
	cardKey := []byte(m.JobCardID)

	if root.Bucket(jobCardsBucket).Get(cardKey) == nil {
		return storage.ErrJobCardNotFound
	}
	if m.JobCard != nil {
		if err := putJSON(root.Bucket(jobCardsBucket), cardKey, m.JobCard); err != nil {
			return err
		}
	}

	tasks, err := root.Bucket(tasksBucket).CreateBucketIfNotExists(cardKey)
	if err != nil {
		return fmt.Errorf("failed to create task bucket: %w", err)
	}

	for _, w := range m.Writes {
		key := []byte(w.Task.ID)
		var rec taskRecord
		raw := tasks.Get(key)

		if w.ExpectedVersion == 0 {
			if raw != nil {
				return fmt.Errorf("task %s already exists", w.Task.ID)
			}
			seq, err := tasks.NextSequence()
			if err != nil {
				return err
			}
			rec.Seq = seq
		} else {
			if raw == nil {
				return conflictErr(w.Task.ID)
			}
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal task: %w", err)
			}
			if rec.Task.Version != w.ExpectedVersion {
				return conflictErr(w.Task.ID)
			}
		}

		rec.Task = w.Task
		if err := putJSON(tasks, key, rec); err != nil {
			return err
		}
	}

	for _, d := range m.Deletes {
		key := []byte(d.ID)
		raw := tasks.Get(key)
		if raw == nil {
			return conflictErr(d.ID)
		}
		var rec taskRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal task: %w", err)
		}
		if rec.Task.Version != d.ExpectedVersion {
			return conflictErr(d.ID)
		}
		if err := tasks.Delete(key); err != nil {
			return err
		}
	}

	if len(m.History) > 0 {
		history, err := root.Bucket(historyBucket).CreateBucketIfNotExists(cardKey)
		if err != nil {
			return fmt.Errorf("failed to create history bucket: %w", err)
		}
		for _, entry := range m.History {
			seq, err := history.NextSequence()
			if err != nil {
				return err
			}
			entry.JobCardID = m.JobCardID
			if err := putJSON(history, itob(seq), entry); err != nil {
				return err
			}
		}
	}

	return nil
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return b.Put(key, buf)
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func conflictErr(taskID string) error {
	return fmt.Errorf("%w: task %s", lifecycle.ErrConflict, taskID)
}
