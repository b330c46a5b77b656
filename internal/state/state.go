package state

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketState  = []byte("state")
	keyWatermark = []byte("watermark")
)

// Store persists the monitor watermark in a local bolt database so a restart
// resumes from the last processed instant instead of silently skipping the
// downtime gap.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the state database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketState)
		return e
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init state db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error { return s.db.Close() }

// Watermark returns the persisted watermark, or the zero time when none has
// been recorded yet.
func (s *Store) Watermark() (time.Time, error) {
	var out time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketState).Get(keyWatermark)
		if raw == nil {
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, string(raw))
		if err != nil {
			return fmt.Errorf("corrupt watermark %q: %w", raw, err)
		}
		out = t
		return nil
	})
	return out, err
}

// SetWatermark persists the watermark. Called only after a check completes.
func (s *Store) SetWatermark(t time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketState).Put(keyWatermark, []byte(t.UTC().Format(time.RFC3339Nano)))
	})
}
