// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianAutoML/services/automl/component"
	"github.com/AleutianAI/AleutianAutoML/services/automl/configspace"
	"github.com/AleutianAI/AleutianAutoML/services/automl/datasets"
)

var (
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("record not found")

	// ErrSpaceMismatch indicates a stored configuration sampled from a
	// different space than the one it is loaded into.
	ErrSpaceMismatch = errors.New("stored configuration belongs to a different space")

	// ErrInvalidKey indicates an empty or malformed record name.
	ErrInvalidKey = errors.New("invalid record key")
)

const (
	prefixDatamanager = "datamanager/"
	prefixConfig      = "config/"
	prefixRun         = "run/"
)

// Store persists AutoML artifacts. It implements component.Backend.
//
// Thread Safety:
//
//	Store is safe for concurrent use.
type Store struct {
	db     *badger.DB
	gc     *gcRunner
	logger *slog.Logger
}

var _ component.Backend = (*Store)(nil)

// Open opens a store.
//
// Inputs:
//
//	cfg - Store configuration. Dir is required unless InMemory is set.
//
// Outputs:
//
//	*Store - The store. Call Close when done.
//	error - Non-nil if the database cannot be opened.
func Open(cfg Config) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger.With(slog.String("component", "backend"))}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		if s.gc, err = startGC(db, cfg.GCInterval, cfg.GCDiscardRatio, s.logger); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close stops GC and closes the database.
func (s *Store) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// storedConfiguration is the persisted form of a configuration.
type storedConfiguration struct {
	Fingerprint uint64                       `json:"fingerprint"`
	Values      map[string]configspace.Value `json:"values"`
}

// SaveDatamanager stores a dataset snapshot under name.
func (s *Store) SaveDatamanager(ctx context.Context, name string, ds *datasets.Dataset) error {
	return s.put(ctx, prefixDatamanager, name, ds.Snapshot())
}

// LoadDatamanager restores a dataset with its cached splits.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	name - The name it was saved under.
//	train, val - Per-row transforms for the restored views. May be nil.
//
// Outputs:
//
//	*datasets.Dataset - The restored dataset.
//	error - ErrNotFound, or a decode or validation error.
func (s *Store) LoadDatamanager(ctx context.Context, name string, train, val datasets.Transform) (*datasets.Dataset, error) {
	var snap datasets.Snapshot
	if err := s.get(ctx, prefixDatamanager, name, &snap); err != nil {
		return nil, err
	}
	return datasets.FromSnapshot(snap, train, val)
}

// SaveConfiguration stores a configuration's values and its space's
// fingerprint.
func (s *Store) SaveConfiguration(ctx context.Context, runID string, cfg *configspace.Configuration) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil configuration", ErrInvalidKey)
	}
	return s.put(ctx, prefixConfig, runID, storedConfiguration{
		Fingerprint: cfg.Space().Fingerprint(),
		Values:      cfg.Values(),
	})
}

// LoadConfiguration rebinds a stored configuration to space.
//
// Outputs:
//
//	*configspace.Configuration - The configuration, validated against space.
//	error - ErrNotFound, ErrSpaceMismatch, or a validation error.
func (s *Store) LoadConfiguration(ctx context.Context, runID string, space *configspace.Space) (*configspace.Configuration, error) {
	var stored storedConfiguration
	if err := s.get(ctx, prefixConfig, runID, &stored); err != nil {
		return nil, err
	}
	if stored.Fingerprint != space.Fingerprint() {
		return nil, fmt.Errorf("%w: run %s", ErrSpaceMismatch, runID)
	}
	return space.NewConfiguration(stored.Values)
}

// SaveRunSummary implements component.Backend.
func (s *Store) SaveRunSummary(ctx context.Context, summary *component.RunSummary) error {
	if summary == nil {
		return fmt.Errorf("%w: nil run summary", ErrInvalidKey)
	}
	return s.put(ctx, prefixRun, summary.RunID, summary)
}

// LoadRunSummary implements component.Backend.
func (s *Store) LoadRunSummary(ctx context.Context, runID string) (*component.RunSummary, error) {
	var summary component.RunSummary
	if err := s.get(ctx, prefixRun, runID, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// ListRuns returns the IDs of stored run summaries in key order.
func (s *Store) ListRuns(ctx context.Context) ([]string, error) {
	var ids []string
	err := view(ctx, s.db, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixRun)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), prefixRun))
		}
		return nil
	})
	return ids, err
}

func (s *Store) put(ctx context.Context, prefix, name string, v any) error {
	if name == "" {
		return fmt.Errorf("%w: empty %sname", ErrInvalidKey, prefix)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s%s: %w", prefix, name, err)
	}
	if err := update(ctx, s.db, func(txn *badger.Txn) error {
		return txn.Set([]byte(prefix+name), data)
	}); err != nil {
		return fmt.Errorf("write %s%s: %w", prefix, name, err)
	}
	s.logger.Debug("record saved", slog.String("key", prefix+name), slog.Int("bytes", len(data)))
	return nil
}

func (s *Store) get(ctx context.Context, prefix, name string, v any) error {
	if name == "" {
		return fmt.Errorf("%w: empty %sname", ErrInvalidKey, prefix)
	}
	return view(ctx, s.db, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefix + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s%s", ErrNotFound, prefix, name)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, v); err != nil {
				return fmt.Errorf("decode %s%s: %w", prefix, name, err)
			}
			return nil
		})
	})
}
