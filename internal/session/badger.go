package session

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/mike-a-ellis/docqa/internal/kv"
)

const keyPrefix = "session:"

func sessionKey(id string) string {
	return keyPrefix + id
}

// BadgerStore keeps one mus-encoded record per session under "session:{id}".
// Appends run inside a badger transaction, so concurrent appends to the
// same session either both land or one fails with a conflict.
type BadgerStore struct {
	backend *kv.Backend
	opts    options
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore creates a store on a shared backend. Closing the store does
// not close the backend.
func NewBadgerStore(backend *kv.Backend, opts ...Option) *BadgerStore {
	return &BadgerStore{backend: backend, opts: buildOptions(opts)}
}

func (b *BadgerStore) Create(ctx context.Context, documentID string) (*Session, error) {
	s := newSession(b.opts.now(), documentID)
	err := b.backend.Update(func(txn *badger.Txn) error {
		return kv.Put[Session](txn, sessionKey(s.ID), SessionMUS, *s)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (b *BadgerStore) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := b.backend.View(func(txn *badger.Txn) error {
		var err error
		s, err = kv.Get[Session](txn, sessionKey(id), SessionMUS)
		return err
	})
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return clone(&s), nil
}

func (b *BadgerStore) List(ctx context.Context) ([]*Session, error) {
	var out []*Session
	err := b.backend.View(func(txn *badger.Txn) error {
		return kv.Scan[Session](txn, keyPrefix, SessionMUS, func(_ string, s Session) error {
			out = append(out, clone(&s))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*Session{}
	}
	sortByRecent(out)
	return out, nil
}

func (b *BadgerStore) AppendMessage(ctx context.Context, id string, msg Message) (*Session, error) {
	if err := validateMessage(msg); err != nil {
		return nil, err
	}

	var s Session
	err := b.backend.Update(func(txn *badger.Txn) error {
		var err error
		if s, err = kv.Get[Session](txn, sessionKey(id), SessionMUS); err != nil {
			return err
		}
		now := b.opts.now()
		if msg.Timestamp.IsZero() {
			msg.Timestamp = now
		}
		s.Messages = append(s.Messages, msg)
		s.UpdatedAt = now
		return kv.Put[Session](txn, sessionKey(id), SessionMUS, s)
	})
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return clone(&s), nil
}

func (b *BadgerStore) Delete(ctx context.Context, id string) error {
	err := b.backend.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(sessionKey(id))); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return txn.Delete([]byte(sessionKey(id)))
	})
	return err
}

// Close is a no-op; the backend belongs to the caller.
func (b *BadgerStore) Close() error {
	return nil
}
