package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrLaunchNotFound is returned when no launch matches the requested id
var ErrLaunchNotFound = errors.New("launch not found")

// ErrAmbiguousID is returned when an id prefix matches several launches
var ErrAmbiguousID = errors.New("launch id prefix is ambiguous")

// Bucket names
var (
	launchesBucket  = []byte("launches")
	timeIndexBucket = []byte("indexes_by_time")
)

// Launch is the persisted record of one build session
type Launch struct {
	ID         string    `json:"id"`
	BuildSpec  string    `json:"build_spec"`
	URLPath    string    `json:"url_path,omitempty"`
	BaseURL    string    `json:"base_url,omitempty"`
	State      string    `json:"state"`
	ImageName  string    `json:"image_name,omitempty"`
	ServerURL  string    `json:"server_url,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Duration returns how long the launch took, or 0 while it is running
func (l *Launch) Duration() time.Duration {
	if l.FinishedAt.IsZero() {
		return 0
	}

	return l.FinishedAt.Sub(l.StartedAt)
}

// Storage wraps BoltDB with launch history tracking
type Storage struct {
	db   *bolt.DB
	path string
}

// NewStorage opens the BoltDB file at dbPath and creates the buckets
func NewStorage(dbPath string) (*Storage, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &Storage{
		db:   db,
		path: dbPath,
	}

	if err := storage.initBuckets(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return storage, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Storage) Path() string {
	return s.path
}

func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{launchesBucket, timeIndexBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", string(bucket), err)
			}
		}

		return nil
	})
}

// UpsertLaunch inserts or replaces a launch record
func (s *Storage) UpsertLaunch(launch *Launch) error {
	if launch.ID == "" {
		return errors.New("launch id is empty")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(launchesBucket)
		key := []byte(launch.ID)

		if existing := bucket.Get(key); existing != nil {
			var old Launch
			if err := json.Unmarshal(existing, &old); err == nil {
				if err := tx.Bucket(timeIndexBucket).Delete(timeKey(&old)); err != nil {
					return fmt.Errorf("failed to delete old time index: %w", err)
				}
			}
		}

		data, err := json.Marshal(launch)
		if err != nil {
			return fmt.Errorf("failed to marshal launch: %w", err)
		}

		if err := bucket.Put(key, data); err != nil {
			return fmt.Errorf("failed to put launch: %w", err)
		}

		if err := tx.Bucket(timeIndexBucket).Put(timeKey(launch), key); err != nil {
			return fmt.Errorf("failed to update time index: %w", err)
		}

		return nil
	})
}

// GetLaunch retrieves a launch by its full id or by a unique id prefix
func (s *Storage) GetLaunch(id string) (*Launch, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrLaunchNotFound
	}

	var launch *Launch

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(launchesBucket)

		data := bucket.Get([]byte(id))
		if data == nil {
			var matches [][]byte

			cursor := bucket.Cursor()
			prefix := []byte(id)

			for k, v := cursor.Seek(prefix); k != nil && strings.HasPrefix(string(k), id); k, v = cursor.Next() {
				matches = append(matches, v)
			}

			switch len(matches) {
			case 0:
				return fmt.Errorf("%w: %s", ErrLaunchNotFound, id)
			case 1:
				data = matches[0]
			default:
				return fmt.Errorf("%w: %s matches %d launches", ErrAmbiguousID, id, len(matches))
			}
		}

		launch = &Launch{}
		if err := json.Unmarshal(data, launch); err != nil {
			return fmt.Errorf("failed to unmarshal launch: %w", err)
		}

		return nil
	})

	return launch, err
}

// ListLaunches returns launches ordered by start time, most recent first.
// limit <= 0 returns all of them.
func (s *Storage) ListLaunches(limit int) ([]*Launch, error) {
	var launches []*Launch

	err := s.db.View(func(tx *bolt.Tx) error {
		launchesBkt := tx.Bucket(launchesBucket)
		cursor := tx.Bucket(timeIndexBucket).Cursor()

		for k, v := cursor.Last(); k != nil; k, v = cursor.Prev() {
			if limit > 0 && len(launches) >= limit {
				break
			}

			data := launchesBkt.Get(v)
			if data == nil {
				continue
			}

			launch := &Launch{}
			if err := json.Unmarshal(data, launch); err != nil {
				return fmt.Errorf("failed to unmarshal launch: %w", err)
			}

			launches = append(launches, launch)
		}

		return nil
	})

	return launches, err
}

// DeleteLaunch removes a launch and its index entry
func (s *Storage) DeleteLaunch(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(launchesBucket)
		key := []byte(id)

		data := bucket.Get(key)
		if data == nil {
			return fmt.Errorf("%w: %s", ErrLaunchNotFound, id)
		}

		var launch Launch
		if err := json.Unmarshal(data, &launch); err != nil {
			return fmt.Errorf("failed to unmarshal launch: %w", err)
		}

		if err := bucket.Delete(key); err != nil {
			return fmt.Errorf("failed to delete launch: %w", err)
		}

		if err := tx.Bucket(timeIndexBucket).Delete(timeKey(&launch)); err != nil {
			return fmt.Errorf("failed to delete from time index: %w", err)
		}

		return nil
	})
}

// Clear removes every launch record
func (s *Storage) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{launchesBucket, timeIndexBucket} {
			if err := tx.DeleteBucket(bucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return fmt.Errorf("failed to delete bucket %s: %w", string(bucket), err)
			}

			if _, err := tx.CreateBucket(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", string(bucket), err)
			}
		}

		return nil
	})
}

// CountLaunches returns the number of stored launches
func (s *Storage) CountLaunches() (int64, error) {
	var count int64

	err := s.db.View(func(tx *bolt.Tx) error {
		count = int64(tx.Bucket(launchesBucket).Stats().KeyN)
		return nil
	})

	return count, err
}

// timeKey is zero-padded so the index sorts lexicographically by start time
func timeKey(l *Launch) []byte {
	return fmt.Appendf(nil, "%020d-%s", l.StartedAt.UnixNano(), l.ID)
}
