package version

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const (
	blobPrefix   = "blob:"
	treePrefix   = "tree:"
	commitPrefix = "commit:"
	headKey      = "HEAD"

	initialMessage = "Initial empty commit"
)

// Store is a content-addressed commit chain for a single note: every
// Commit, Tree, and Blob ever created remains resolvable by hash for as
// long as the process runs. It is backed by an embedded key-value engine
// run entirely in memory — nothing here ever touches disk or survives a
// restart, which is the point: document history beyond the in-memory
// store is an explicit non-goal.
//
// Store is safe for concurrent use, but in practice only the owning
// room.Room ever calls it — the room actor already serializes every sync
// request, so the mutex here only guards against the rare case of a
// concurrent read (e.g. an HTTP handler fetching initial content) racing
// a commit.
type Store struct {
	db     *badger.DB
	mu     sync.RWMutex
	logger *zap.Logger
}

// Open creates a new, empty Store seeded with an initial empty-string
// commit.
func Open(logger *zap.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // the embedded engine's own logger is too chatty for a per-room store.

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open version store: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if _, err := s.Commit("", initialMessage); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed initial commit: %w", err)
	}
	return s, nil
}

// Close releases the store's underlying engine. Safe to call once a room
// has no more connections.
func (s *Store) Close() error {
	return s.db.Close()
}

// Commit stores content as a new Blob + Tree + Commit, advances HEAD to
// the new commit, and returns its hash. The new commit's parent is the
// store's current HEAD (absent only for the very first commit Open seeds).
func (s *Store) Commit(content, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blobHash := hashBlob(content)
	treeHash, treeBytes := hashTree(Tree{Entries: map[string]string{treeFilename: blobHash}})

	parent, err := s.headLocked()
	if err != nil {
		return "", err
	}

	commitHash, commitBytes := hashCommit(Commit{
		Tree:      treeHash,
		Parent:    parent,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})

	err = s.db.Update(func(txn *badger.Txn) error {
		// Objects are immutable once inserted; a put at an existing key is
		// a no-op, so these three writes never need an existence check
		// first.
		if err := txn.Set([]byte(blobPrefix+blobHash), []byte(content)); err != nil {
			return err
		}
		if err := txn.Set([]byte(treePrefix+treeHash), treeBytes); err != nil {
			return err
		}
		if err := txn.Set([]byte(commitPrefix+commitHash), commitBytes); err != nil {
			return err
		}
		// HEAD advances in the same transaction as the commit it now
		// points to, so a reader never observes a HEAD that isn't yet
		// resolvable (invariant ii).
		return txn.Set([]byte(headKey), []byte(commitHash))
	})
	if err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("committed",
			zap.String("hash", commitHash),
			zap.String("parent", parent),
			zap.String("message", message))
	}

	return commitHash, nil
}

// Head returns the current HEAD commit hash, or "" if the store has never
// been seeded (Open always seeds it, so in practice Head is only ever ""
// on a zero-value Store).
func (s *Store) Head() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.headLocked()
}

func (s *Store) headLocked() (string, error) {
	var head string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(headKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			head = string(val)
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	return head, nil
}

// ContentAt resolves hash -> commit -> tree -> blob and returns the note
// content at that commit. ok is false if hash is unknown or any link in
// the chain is missing.
func (s *Store) ContentAt(hash string) (content string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if hash == "" {
		return "", false
	}

	var commit Commit
	if !s.getJSON(commitPrefix+hash, &commit) {
		return "", false
	}

	var tree Tree
	if !s.getJSON(treePrefix+commit.Tree, &tree) {
		return "", false
	}

	blobHash, ok := tree.Entries[treeFilename]
	if !ok {
		return "", false
	}

	return s.getRaw(blobPrefix + blobHash)
}

func (s *Store) getJSON(key string, out interface{}) bool {
	raw, ok := s.getRaw(key)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(raw), out) == nil
}

func (s *Store) getRaw(key string) (string, bool) {
	var val string
	found := true
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = string(v)
			return nil
		})
	})
	if err != nil || !found {
		return "", false
	}
	return val, true
}
