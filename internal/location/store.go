// Package location keeps the user's last known coordinates and drives the
// acquisition state machine that obtains new ones from the device.
package location

import (
	"context"
	"encoding/json"
	"errors"

	"dishfinder/internal/domain/entities"
	"dishfinder/internal/logger"
	"dishfinder/internal/repository"
	"dishfinder/internal/scope"

	"go.uber.org/zap"
)

const promptDismissedValue = "1"

// Store persists one UserLocation per user scope in a key-value store.
// Reads never fail: a missing, unparsable or incomplete record is simply
// absent.
type Store struct {
	kv  repository.KeyValueStore
	log *zap.SugaredLogger
}

func NewStore(kv repository.KeyValueStore, log *zap.SugaredLogger) *Store {
	return &Store{kv: kv, log: logger.OrNop(log)}
}

// Read returns the stored location for scope, or nil.
func (s *Store) Read(ctx context.Context, sc string) *entities.UserLocation {
	raw, err := s.kv.Get(ctx, scope.LocationKey(sc))
	if err != nil {
		if !errors.Is(err, repository.ErrKeyNotFound) {
			s.log.Warnf("[LOCATION] reading stored location: %v", err)
		}
		return nil
	}
	loc, ok := entities.ParseUserLocation([]byte(raw))
	if !ok {
		s.log.Debugf("[LOCATION] ignoring malformed location record for scope %q", sc)
		return nil
	}
	return loc
}

// Write overwrites the stored location for scope.
func (s *Store) Write(ctx context.Context, loc *entities.UserLocation, sc string) error {
	b, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, scope.LocationKey(sc), string(b))
}

// Remove deletes the stored location for scope and, best effort, the
// unscoped legacy record.
func (s *Store) Remove(ctx context.Context, sc string) error {
	if err := s.kv.Delete(ctx, scope.LocationKey(sc)); err != nil {
		return err
	}
	if sc != "" {
		if err := s.kv.Delete(ctx, scope.LocationKeyPrefix); err != nil {
			s.log.Debugf("[LOCATION] removing legacy location key: %v", err)
		}
	}
	return nil
}

// DismissPrompt records that the user declined to be asked for location.
func (s *Store) DismissPrompt(ctx context.Context, sc string) error {
	return s.kv.Set(ctx, scope.PromptDismissedKey(sc), promptDismissedValue)
}

// PromptDismissed reports whether the location prompt was dismissed.
func (s *Store) PromptDismissed(ctx context.Context, sc string) bool {
	v, err := s.kv.Get(ctx, scope.PromptDismissedKey(sc))
	return err == nil && v == promptDismissedValue
}

// ClearAll removes the location, the distance cache and the prompt flag for
// scope, plus their unscoped legacy keys. It runs on logout and account
// switch. Every key is attempted; the first failure is returned.
func (s *Store) ClearAll(ctx context.Context, sc string) error {
	keys := []string{
		scope.LocationKey(sc),
		scope.DistanceCacheKey(sc),
		scope.PromptDismissedKey(sc),
		scope.LocationKeyPrefix,
		scope.DistanceCacheKeyPrefix,
		scope.PromptDismissedKeyPrefix,
	}

	var firstErr error
	for _, key := range keys {
		if err := s.kv.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
