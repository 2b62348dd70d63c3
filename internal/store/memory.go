package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"RebalanceKeeper/internal/model"
)

// MemoryStore keeps everything in memory. With a path, every change is
// written to a JSON snapshot file that is reloaded on open.
type MemoryStore struct {
	mu       sync.Mutex
	path     string
	status   model.CycleStatus
	accounts map[string]model.Account
}

type snapshot struct {
	Status   json.RawMessage `json:"status,omitempty"`
	Accounts []model.Account `json:"accounts"`
}

// NewMemoryStore creates a store, loading path when it exists. An empty path disables persistence.
func NewMemoryStore(path string) (*MemoryStore, error) {
	s := &MemoryStore{path: path, accounts: make(map[string]model.Account)}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	if len(snap.Status) > 0 {
		st, err := model.UnmarshalStatus(snap.Status)
		if err != nil {
			return nil, err
		}
		s.status = st
	}
	for _, a := range snap.Accounts {
		s.accounts[a.ID] = a
	}
	return s, nil
}

// commit writes st and accounts to the snapshot and only then makes them current.
func (s *MemoryStore) commit(st model.CycleStatus, accounts map[string]model.Account) error {
	if err := s.save(st, accounts); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.status = st
	s.accounts = accounts
	return nil
}

func (s *MemoryStore) save(st model.CycleStatus, accounts map[string]model.Account) error {
	if s.path == "" {
		return nil
	}
	snap := snapshot{Accounts: sortedAccounts(accounts)}
	if st != nil {
		raw, err := model.MarshalStatus(st)
		if err != nil {
			return err
		}
		snap.Status = raw
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// cloneAccounts copies the account map; configs are shared until replaced.
func (s *MemoryStore) cloneAccounts() map[string]model.Account {
	out := make(map[string]model.Account, len(s.accounts))
	for id, a := range s.accounts {
		out[id] = a
	}
	return out
}

func sortedAccounts(accounts map[string]model.Account) []model.Account {
	out := make([]model.Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) Status(_ context.Context) (model.CycleStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == nil {
		return nil, ErrNotFound
	}
	return s.status, nil
}

func (s *MemoryStore) InitStatus(_ context.Context, st model.CycleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != nil {
		return nil
	}
	return s.commit(st, s.accounts)
}

func (s *MemoryStore) Account(_ context.Context, id string) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return model.Account{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	a.Config = a.Config.Clone()
	return a, nil
}

func (s *MemoryStore) Accounts(_ context.Context, after string, limit int) ([]model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Account
	for _, a := range sortedAccounts(s.accounts) {
		if len(out) >= limit {
			break
		}
		if a.ID > after {
			a.Config = a.Config.Clone()
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateAccount(_ context.Context, acc model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acc.ID]; ok {
		return fmt.Errorf("account %s: %w", acc.ID, ErrExists)
	}
	next := s.cloneAccounts()
	acc.Config = acc.Config.Clone()
	next[acc.ID] = acc
	return s.commit(s.status, next)
}

func (s *MemoryStore) PutAccount(_ context.Context, acc model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acc.ID]; !ok {
		return fmt.Errorf("account %s: %w", acc.ID, ErrNotFound)
	}
	next := s.cloneAccounts()
	acc.Config = acc.Config.Clone()
	next[acc.ID] = acc
	return s.commit(s.status, next)
}

func (s *MemoryStore) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	next := s.cloneAccounts()
	delete(next, id)
	return s.commit(s.status, next)
}

func (s *MemoryStore) CommitPage(_ context.Context, st model.CycleStatus, updated []model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range updated {
		if _, ok := s.accounts[a.ID]; !ok {
			return fmt.Errorf("account %s: %w", a.ID, ErrNotFound)
		}
	}
	next := s.cloneAccounts()
	for _, a := range updated {
		a.Config = a.Config.Clone()
		next[a.ID] = a
	}
	return s.commit(st, next)
}

func (s *MemoryStore) Close() error { return nil }
