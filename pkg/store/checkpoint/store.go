package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/de-tools/dino/pkg/models/domain"
)

const DefaultFileName = "dino-checkpoints.db"

var environmentsBucket = []byte("environments")

type Store interface {
	Save(ctx context.Context, cp domain.Checkpoint) error
	Load(ctx context.Context, environment string) (map[string]domain.Checkpoint, error)
	Environments(ctx context.Context) ([]string, error)
	DeleteStep(ctx context.Context, environment, step string) error
	Delete(ctx context.Context, environment string) error
	Close() error
}

type boltStore struct {
	db *bolt.DB
}

// Open creates the database file and its parent directory when missing.
func Open(path string) (Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store %q: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(environmentsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialise checkpoint store: %w", err)
	}

	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error {
	return s.db.Close()
}

func (s *boltStore) Save(ctx context.Context, cp domain.Checkpoint) error {
	if cp.Environment == "" || cp.Step == "" {
		return errors.New("checkpoint requires environment and step")
	}

	value, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		env, err := tx.Bucket(environmentsBucket).CreateBucketIfNotExists([]byte(cp.Environment))
		if err != nil {
			return err
		}
		return env.Put([]byte(cp.Step), value)
	})
	if err != nil {
		return fmt.Errorf("error saving checkpoint %s/%s: %w", cp.Environment, cp.Step, err)
	}

	zerolog.Ctx(ctx).Debug().Str("environment", cp.Environment).Str("step", cp.Step).Msg("checkpoint saved")
	return nil
}

func (s *boltStore) Load(_ context.Context, environment string) (map[string]domain.Checkpoint, error) {
	checkpoints := map[string]domain.Checkpoint{}

	err := s.db.View(func(tx *bolt.Tx) error {
		env := tx.Bucket(environmentsBucket).Bucket([]byte(environment))
		if env == nil {
			return nil
		}
		return env.ForEach(func(k, v []byte) error {
			var cp domain.Checkpoint
			if err := json.Unmarshal(v, &cp); err != nil {
				return fmt.Errorf("corrupt checkpoint %q: %w", k, err)
			}
			checkpoints[string(k)] = cp
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("error loading checkpoints for %s: %w", environment, err)
	}
	return checkpoints, nil
}

func (s *boltStore) Environments(_ context.Context) ([]string, error) {
	var envs []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(environmentsBucket).ForEach(func(k, v []byte) error {
			// nested buckets have a nil value
			if v == nil {
				envs = append(envs, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("error listing environments: %w", err)
	}
	sort.Strings(envs)
	return envs, nil
}

func (s *boltStore) DeleteStep(_ context.Context, environment, step string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		env := tx.Bucket(environmentsBucket).Bucket([]byte(environment))
		if env == nil {
			return nil
		}
		return env.Delete([]byte(step))
	})
	if err != nil {
		return fmt.Errorf("error deleting checkpoint %s/%s: %w", environment, step, err)
	}
	return nil
}

func (s *boltStore) Delete(_ context.Context, environment string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket(environmentsBucket).DeleteBucket([]byte(environment))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("error deleting checkpoints for %s: %w", environment, err)
	}
	return nil
}
