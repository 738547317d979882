package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"dungeonload/internal/engine"
	"dungeonload/internal/schedule"
	"dungeonload/internal/stats"
	"dungeonload/internal/threshold"
)

const (
	BucketRuns  = "runs"
	BucketIndex = "run_ids"
)

var ErrNotFound = errors.New("run not found")

// RunRecord is one finished run as kept in the history.
type RunRecord struct {
	ID          string           `json:"id"`
	StartedAt   time.Time        `json:"started_at"`
	EndedAt     time.Time        `json:"ended_at"`
	BaseURL     string           `json:"base_url"`
	Variant     string           `json:"variant"`
	Stages      []schedule.Stage `json:"stages,omitempty"`
	VUs         int              `json:"vus,omitempty"`
	MaxVUs      int              `json:"max_vus"`
	Summary     stats.Summary    `json:"summary"`
	Thresholds  threshold.Report `json:"thresholds"`
	Interrupted bool             `json:"interrupted"`
}

func (r RunRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

func (r RunRecord) Passed() bool {
	return r.Thresholds.Passed && !r.Interrupted
}

// NewRecord captures a finished run.
func NewRecord(res *engine.Result, baseURL, variant string) RunRecord {
	rec := RunRecord{
		ID:          res.RunID,
		StartedAt:   res.StartedAt,
		EndedAt:     res.EndedAt,
		BaseURL:     baseURL,
		Variant:     variant,
		Stages:      res.Profile.Stages,
		MaxVUs:      res.Profile.MaxTarget(),
		Summary:     res.Summary,
		Thresholds:  res.Thresholds,
		Interrupted: res.Interrupted,
	}
	if res.Profile.IsFlat() {
		rec.VUs = res.Profile.VUs
	}
	return rec
}

// Result rebuilds the parts of the run result a record keeps. Samples are
// never stored.
func (r RunRecord) Result() *engine.Result {
	p := schedule.Profile{Stages: r.Stages}
	if len(r.Stages) == 0 {
		p = schedule.Flat(r.VUs, r.Duration())
	}
	return &engine.Result{
		RunID:       r.ID,
		StartedAt:   r.StartedAt,
		EndedAt:     r.EndedAt,
		Profile:     p,
		Summary:     r.Summary,
		Thresholds:  r.Thresholds,
		Interrupted: r.Interrupted,
		Drained:     true,
	}
}

// Store keeps run records in a bbolt file, ordered by start time.
type Store struct {
	db       *bbolt.DB
	filePath string
}

// DefaultPath is ~/.dungeonload/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".dungeonload", "history.db"), nil
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	// Initialize Buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketRuns)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(BucketIndex))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:       db,
		filePath: path,
	}, nil
}

func (s *Store) Path() string {
	return s.filePath
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// runKey sorts by start time, then id.
func runKey(r RunRecord) []byte {
	key := make([]byte, 8, 8+len(r.ID))
	binary.BigEndian.PutUint64(key, uint64(r.StartedAt.UnixNano()))
	return append(key, r.ID...)
}

func (s *Store) Save(r RunRecord) error {
	if r.ID == "" {
		return errors.New("run record needs an id")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(BucketRuns))
		index := tx.Bucket([]byte(BucketIndex))

		if old := index.Get([]byte(r.ID)); old != nil {
			if err := runs.Delete(old); err != nil {
				return err
			}
		}
		key := runKey(r)
		if err := runs.Put(key, data); err != nil {
			return err
		}
		return index.Put([]byte(r.ID), key)
	})
}

// List returns up to limit records, newest first. limit <= 0 means all.
func (s *Store) List(limit int) ([]RunRecord, error) {
	var items []RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var item RunRecord
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("decode run %x: %w", k, err)
			}
			items = append(items, item)
			if limit > 0 && len(items) == limit {
				break
			}
		}
		return nil
	})
	return items, err
}

// Get looks a run up by id or by an unambiguous id prefix.
func (s *Store) Get(id string) (*RunRecord, error) {
	var item RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		key, err := resolve(tx, id)
		if err != nil {
			return err
		}
		v := tx.Bucket([]byte(BucketRuns)).Get(key)
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		key, err := resolve(tx, id)
		if err != nil {
			return err
		}
		key = append([]byte(nil), key...)
		if err := tx.Bucket([]byte(BucketRuns)).Delete(key); err != nil {
			return err
		}
		return tx.Bucket([]byte(BucketIndex)).Delete(key[8:])
	})
}

func resolve(tx *bbolt.Tx, id string) ([]byte, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	index := tx.Bucket([]byte(BucketIndex))
	if key := index.Get([]byte(id)); key != nil {
		return key, nil
	}

	var match []byte
	c := index.Cursor()
	prefix := []byte(id)
	for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), id); k, v = c.Next() {
		if match != nil {
			return nil, fmt.Errorf("run id %q is ambiguous", id)
		}
		match = v
	}
	if match == nil {
		return nil, ErrNotFound
	}
	return match, nil
}
