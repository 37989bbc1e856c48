// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists TCR sessions and the workspace's active-session
// pointer in BadgerDB.
//
// # Invariant
//
// The active pointer, when set, always names a session present in the
// store. PutActive writes the session and the pointer in one transaction,
// and SetActive refuses ids that are not stored.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	tcrbadger "github.com/AleutianAI/tcr/services/tcr/storage/badger"
	"github.com/AleutianAI/tcr/services/tcr/session"
)

var (
	// ErrNotFound is returned when a session id is not in the store.
	ErrNotFound = errors.New("session not found")

	// ErrNoActive is returned when no active session has been selected.
	ErrNoActive = errors.New("no active session")
)

const (
	sessionPrefix = "tcr/session/"
	activeKey     = "tcr/active"
)

func sessionKey(id string) []byte {
	return []byte(sessionPrefix + id)
}

// Store is a BadgerDB-backed session store.
//
// Thread Safety: Safe for concurrent use; BadgerDB serializes conflicting
// transactions. Callers still serialize workflow operations themselves.
type Store struct {
	db *tcrbadger.DB
}

// New wraps an open database.
func New(db *tcrbadger.DB) *Store {
	return &Store{db: db}
}

// Get returns the session with the given id.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	var out *session.Session
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		sess, err := getSession(txn, id)
		if err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Exists reports whether id is stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Put inserts or replaces a session without touching the active pointer.
func (s *Store) Put(ctx context.Context, sess *session.Session) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return putSession(txn, sess)
	})
}

// PutActive stores sess and makes it the active session atomically.
func (s *Store) PutActive(ctx context.Context, sess *session.Session) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := putSession(txn, sess); err != nil {
			return err
		}
		return txn.Set([]byte(activeKey), []byte(sess.ID))
	})
}

// SetActive points the active session at an existing id.
func (s *Store) SetActive(ctx context.Context, id string) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if _, err := getSession(txn, id); err != nil {
			return err
		}
		return txn.Set([]byte(activeKey), []byte(id))
	})
}

// Active returns the active session, or ErrNoActive.
func (s *Store) Active(ctx context.Context) (*session.Session, error) {
	var out *session.Session
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(activeKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoActive
		}
		if err != nil {
			return fmt.Errorf("read active pointer: %w", err)
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read active pointer: %w", err)
		}
		sess, err := getSession(txn, string(id))
		if err != nil {
			return fmt.Errorf("active pointer %q: %w", id, err)
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns every stored session, newest first.
func (s *Store) List(ctx context.Context) ([]*session.Session, error) {
	var out []*session.Session
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sessionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var sess session.Session
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sess)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, &sess)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func getSession(txn *badger.Txn, id string) (*session.Session, error) {
	item, err := txn.Get(sessionKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	var sess session.Session
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &sess)
	}); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

func putSession(txn *badger.Txn, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("session id is required")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	return txn.Set(sessionKey(sess.ID), data)
}
