// Package memstore keeps the credential in process memory. It is not durable
// and suits tests and embedded widgets whose host owns persistence.
package memstore

import (
	"context"

	"github.com/joy-dx/lockablemap"
)

const credentialKey = "credential"

type Store struct {
	values *lockablemap.LockableMap[string, string]
}

func New() *Store {
	return &Store{values: lockablemap.NewLockableMap[string, string]()}
}

func (s *Store) Get(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	raw := s.values.GetAll()[credentialKey]
	return raw, raw != "", nil
}

func (s *Store) Set(ctx context.Context, raw string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.values.Set(credentialKey, raw)
	return nil
}

// Clear stores the empty string, which Get reports as absent.
func (s *Store) Clear(ctx context.Context) error {
	s.values.Set(credentialKey, "")
	return nil
}
