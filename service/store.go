package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Gestion-inmobiliaria/gi-firmas/model"
)

var (
	// ErrNotFound is returned when a contract or token does not exist
	ErrNotFound = errors.New("not found")
	// ErrTokenConsumed is returned when a token was already used to sign
	ErrTokenConsumed = errors.New("token already consumed")
	// ErrDuplicateNumber is returned when a contract number is already taken
	ErrDuplicateNumber = errors.New("contract number already exists")
)

// Store is the persistence boundary for contracts, signing tokens and
// signature records. Two implementations exist: MemoryStore for tests and
// db-less runs, and GormStore backed by postgres.
type Store interface {
	SaveContract(ctx context.Context, c *model.Contract) error
	GetContract(ctx context.Context, id string) (*model.Contract, error)
	ListContracts(ctx context.Context) ([]*model.Contract, error)
	DeleteContract(ctx context.Context, id string) error

	SaveToken(ctx context.Context, t *model.SignatureToken) error
	GetToken(ctx context.Context, token string) (*model.SignatureToken, error)
	// ActiveTokens returns the tokens of the current signature process
	ActiveTokens(ctx context.Context, contractID string) ([]*model.SignatureToken, error)
	// DeactivateTokens retires active tokens for one signer, or for both
	// when signer is empty. Retired tokens are kept for audit.
	DeactivateTokens(ctx context.Context, contractID string, signer model.SignerType) error
	// ConsumeToken marks the token consumed and creates the signature
	// record in a single atomic step; the first successful call wins.
	ConsumeToken(ctx context.Context, token string, rec *model.SignatureRecord) error

	Records(ctx context.Context, contractID string) ([]*model.SignatureRecord, error)
}

// MemoryStore keeps everything in maps under a single lock. Tokens and
// signature records are never evicted; old contracts are trimmed when
// maxContracts is set, mirroring the bounded in-memory behaviour the
// server falls back to when no database is configured.
type MemoryStore struct {
	mu           sync.RWMutex
	contracts    map[string]*model.Contract
	tokens       map[string]*model.SignatureToken
	records      map[string][]*model.SignatureRecord
	maxContracts int // 0 = unlimited
}

// NewMemoryStore creates an in-memory store
func NewMemoryStore(maxContracts int) *MemoryStore {
	if maxContracts < 0 {
		maxContracts = 0
	}
	return &MemoryStore{
		contracts:    make(map[string]*model.Contract),
		tokens:       make(map[string]*model.SignatureToken),
		records:      make(map[string][]*model.SignatureRecord),
		maxContracts: maxContracts,
	}
}

func (s *MemoryStore) SaveContract(_ context.Context, c *model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.contracts {
		if existing.ContractNumber == c.ContractNumber && id != c.ID {
			return ErrDuplicateNumber
		}
	}

	c.UpdatedAt = time.Now()
	s.contracts[c.ID] = c

	s.cleanupIfNeeded()
	return nil
}

func (s *MemoryStore) GetContract(_ context.Context, id string) (*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) ListContracts(_ context.Context) ([]*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) DeleteContract(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contracts[id]; !ok {
		return ErrNotFound
	}
	delete(s.contracts, id)
	return nil
}

func (s *MemoryStore) SaveToken(_ context.Context, t *model.SignatureToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.Token] = t
	return nil
}

func (s *MemoryStore) GetToken(_ context.Context, token string) (*model.SignatureToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) ActiveTokens(_ context.Context, contractID string) ([]*model.SignatureToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.SignatureToken
	for _, t := range s.tokens {
		if t.ContractID == contractID && t.Active {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) DeactivateTokens(_ context.Context, contractID string, signer model.SignerType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.ContractID != contractID || !t.Active {
			continue
		}
		if signer == "" || t.SignerType == signer {
			t.Active = false
		}
	}
	return nil
}

func (s *MemoryStore) ConsumeToken(_ context.Context, token string, rec *model.SignatureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return ErrNotFound
	}
	if t.Consumed {
		return ErrTokenConsumed
	}

	now := time.Now()
	t.Consumed = true
	t.ConsumedAt = &now
	s.records[rec.ContractID] = append(s.records[rec.ContractID], rec)
	return nil
}

func (s *MemoryStore) Records(_ context.Context, contractID string) ([]*model.SignatureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.SignatureRecord, len(s.records[contractID]))
	copy(result, s.records[contractID])
	return result, nil
}

// cleanupIfNeeded removes oldest contracts if store exceeds maxContracts.
// Must be called with lock held.
func (s *MemoryStore) cleanupIfNeeded() {
	if s.maxContracts <= 0 {
		return
	}
	if len(s.contracts) <= s.maxContracts {
		return
	}

	contracts := make([]*model.Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		contracts = append(contracts, c)
	}
	sort.Slice(contracts, func(i, j int) bool {
		return contracts[i].CreatedAt.Before(contracts[j].CreatedAt)
	})

	removeCount := len(contracts) - s.maxContracts
	for i := 0; i < removeCount; i++ {
		slog.Info("auto-cleaning old contract",
			"contract_id", contracts[i].ID,
			"created_at", contracts[i].CreatedAt,
		)
		delete(s.contracts, contracts[i].ID)
	}
}

// Count returns the number of contracts in the store
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contracts)
}

var _ Store = (*MemoryStore)(nil)

func wrapStoreErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
