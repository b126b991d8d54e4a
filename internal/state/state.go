// Package state holds the in-memory snapshot of reconciled contract state.
package state

import (
	"maps"
	"slices"
	"sync"

	"github.com/pendergraft/echoes/internal/contracts"
)

// ContractSnapshot is everything known about the registry and the connected
// user. nil fields have not been resolved.
type ContractSnapshot struct {
	FeeParams        *contracts.FeeParams      `json:"feeParams"`
	SecurityParams   *contracts.SecurityParams `json:"securityParams"`
	UserVaultAddress *string                   `json:"userVaultAddress"`
	PieceCount       *uint64                   `json:"pieceCount"`
	PieceAddresses   []string                  `json:"pieceAddresses"`
	PieceData        map[string]*string        `json:"pieceData"`
	PieceRemixData   map[string]*string        `json:"pieceRemixData"`
}

// Clone returns a copy that shares no mutable structure with s.
func (s ContractSnapshot) Clone() ContractSnapshot {
	out := s
	if s.FeeParams != nil {
		fp := *s.FeeParams
		out.FeeParams = &fp
	}
	if s.SecurityParams != nil {
		sp := *s.SecurityParams
		out.SecurityParams = &sp
	}
	if s.UserVaultAddress != nil {
		v := *s.UserVaultAddress
		out.UserVaultAddress = &v
	}
	if s.PieceCount != nil {
		n := *s.PieceCount
		out.PieceCount = &n
	}
	out.PieceAddresses = slices.Clone(s.PieceAddresses)
	out.PieceData = maps.Clone(s.PieceData)
	out.PieceRemixData = maps.Clone(s.PieceRemixData)
	return out
}

// Listener receives a copy of the state after every change.
type Listener func(ContractSnapshot)

type subscription struct {
	id int
	fn Listener
}

// Store is the single mutable holder of ContractSnapshot. All writes go
// through Update so each read-modify-write is atomic.
type Store struct {
	// notifyMu serializes mutations together with their notifications so
	// listeners observe changes in order. Listeners must not call Update,
	// ResetUser or SetLoading.
	notifyMu sync.Mutex

	mu        sync.Mutex
	state     ContractSnapshot
	loading   bool
	listeners []subscription
	nextID    int
}

// New creates a store with every field unset.
func New() *Store {
	return &Store{}
}

// GetState returns a copy of the current state.
func (s *Store) GetState() ContractSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Update applies fn to the live state and notifies listeners. fn runs under
// the store lock and must not block.
func (s *Store) Update(fn func(*ContractSnapshot)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	fn(&s.state)
	snap, listeners := s.snapshotLocked()
	s.mu.Unlock()

	notify(listeners, snap)
}

// ResetUser clears every user-scoped field.
func (s *Store) ResetUser() {
	s.Update(func(st *ContractSnapshot) {
		st.UserVaultAddress = nil
		st.PieceCount = nil
		st.PieceAddresses = nil
		st.PieceData = nil
		st.PieceRemixData = nil
	})
}

// SetLoading sets the loading flag and notifies listeners.
func (s *Store) SetLoading(loading bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.loading = loading
	snap, listeners := s.snapshotLocked()
	s.mu.Unlock()

	notify(listeners, snap)
}

// IsLoading reports whether a full fetch is in progress.
func (s *Store) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Subscribe registers l and calls it once immediately with the current
// state. Listeners run synchronously in subscription order.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, subscription{id: id, fn: l})
	snap := s.state.Clone()
	s.mu.Unlock()

	l(snap)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listeners = slices.DeleteFunc(s.listeners, func(sub subscription) bool {
			return sub.id == id
		})
	}
}

func (s *Store) snapshotLocked() (ContractSnapshot, []subscription) {
	return s.state.Clone(), slices.Clone(s.listeners)
}

// notify hands each listener its own copy.
func notify(listeners []subscription, snap ContractSnapshot) {
	for i, sub := range listeners {
		if i == len(listeners)-1 {
			sub.fn(snap)
			return
		}
		sub.fn(snap.Clone())
	}
}
