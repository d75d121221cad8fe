package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gestion-inmobiliaria/gi-firmas/model"
)

func TestMemoryStoreSaveAndGetContract(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	contract := &model.Contract{
		ID:             "test-id-1",
		ContractNumber: 500,
		Type:           model.ContractTypeSale,
		Status:         model.ContractStatusActive,
		CreatedAt:      time.Now(),
	}

	if err := store.SaveContract(ctx, contract); err != nil {
		t.Fatalf("SaveContract failed: %v", err)
	}

	retrieved, err := store.GetContract(ctx, "test-id-1")
	if err != nil {
		t.Fatalf("Expected to retrieve contract, got %v", err)
	}
	if retrieved.ContractNumber != 500 {
		t.Errorf("Expected contract number 500, got %d", retrieved.ContractNumber)
	}

	if _, err := store.GetContract(ctx, "non-existent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreDuplicateContractNumber(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	if err := store.SaveContract(ctx, &model.Contract{ID: "a", ContractNumber: 7, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("SaveContract failed: %v", err)
	}

	err := store.SaveContract(ctx, &model.Contract{ID: "b", ContractNumber: 7, CreatedAt: time.Now()})
	if !errors.Is(err, ErrDuplicateNumber) {
		t.Errorf("Expected ErrDuplicateNumber, got %v", err)
	}

	// Re-saving the same contract is an update, not a duplicate
	if err := store.SaveContract(ctx, &model.Contract{ID: "a", ContractNumber: 7, CreatedAt: time.Now()}); err != nil {
		t.Errorf("Expected update to succeed, got %v", err)
	}
}

func TestMemoryStoreListContracts(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	base := time.Now()
	store.SaveContract(ctx, &model.Contract{ID: "1", ContractNumber: 1, CreatedAt: base.Add(2 * time.Second)})
	store.SaveContract(ctx, &model.Contract{ID: "2", ContractNumber: 2, CreatedAt: base})
	store.SaveContract(ctx, &model.Contract{ID: "3", ContractNumber: 3, CreatedAt: base.Add(time.Second)})

	contracts, err := store.ListContracts(ctx)
	if err != nil {
		t.Fatalf("ListContracts failed: %v", err)
	}
	if len(contracts) != 3 {
		t.Fatalf("Expected 3 contracts, got %d", len(contracts))
	}
	if contracts[0].ID != "2" || contracts[1].ID != "3" || contracts[2].ID != "1" {
		t.Error("Expected contracts ordered by creation time")
	}
}

func TestMemoryStoreDeleteContract(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	store.SaveContract(ctx, &model.Contract{ID: "delete-me", ContractNumber: 1, CreatedAt: time.Now()})

	if err := store.DeleteContract(ctx, "delete-me"); err != nil {
		t.Fatalf("DeleteContract failed: %v", err)
	}
	if err := store.DeleteContract(ctx, "delete-me"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for second delete, got %v", err)
	}
}

func TestMemoryStoreTokens(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	clientToken := &model.SignatureToken{
		Token:      "tok-client",
		ContractID: "c-1",
		SignerType: model.SignerTypeClient,
		ExpiresAt:  time.Now().Add(time.Hour),
		Active:     true,
		CreatedAt:  time.Now(),
	}
	agentToken := &model.SignatureToken{
		Token:      "tok-agent",
		ContractID: "c-1",
		SignerType: model.SignerTypeAgent,
		ExpiresAt:  time.Now().Add(time.Hour),
		Active:     true,
		CreatedAt:  time.Now().Add(time.Millisecond),
	}

	store.SaveToken(ctx, clientToken)
	store.SaveToken(ctx, agentToken)

	tok, err := store.GetToken(ctx, "tok-client")
	if err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}
	if tok.SignerType != model.SignerTypeClient {
		t.Errorf("Expected CLIENT token, got %s", tok.SignerType)
	}

	active, err := store.ActiveTokens(ctx, "c-1")
	if err != nil {
		t.Fatalf("ActiveTokens failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("Expected 2 active tokens, got %d", len(active))
	}

	// Deactivating one signer leaves the other untouched
	if err := store.DeactivateTokens(ctx, "c-1", model.SignerTypeClient); err != nil {
		t.Fatalf("DeactivateTokens failed: %v", err)
	}
	active, _ = store.ActiveTokens(ctx, "c-1")
	if len(active) != 1 || active[0].SignerType != model.SignerTypeAgent {
		t.Errorf("Expected only the agent token to stay active, got %d", len(active))
	}

	// Deactivating with empty signer retires everything
	if err := store.DeactivateTokens(ctx, "c-1", ""); err != nil {
		t.Fatalf("DeactivateTokens failed: %v", err)
	}
	active, _ = store.ActiveTokens(ctx, "c-1")
	if len(active) != 0 {
		t.Errorf("Expected no active tokens, got %d", len(active))
	}

	// Retired tokens are retained for audit
	if _, err := store.GetToken(ctx, "tok-client"); err != nil {
		t.Errorf("Expected retired token to still exist, got %v", err)
	}
}

func TestMemoryStoreConsumeTokenSingleUse(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	store.SaveToken(ctx, &model.SignatureToken{
		Token:      "tok-1",
		ContractID: "c-1",
		SignerType: model.SignerTypeClient,
		ExpiresAt:  time.Now().Add(time.Hour),
		Active:     true,
	})

	rec := &model.SignatureRecord{
		ID:         "rec-1",
		ContractID: "c-1",
		SignerType: model.SignerTypeClient,
		Image:      "data:image/png;base64,AAAA",
		SignedAt:   time.Now(),
	}

	if err := store.ConsumeToken(ctx, "tok-1", rec); err != nil {
		t.Fatalf("First ConsumeToken failed: %v", err)
	}

	// Second consumption must lose
	err := store.ConsumeToken(ctx, "tok-1", rec)
	if !errors.Is(err, ErrTokenConsumed) {
		t.Errorf("Expected ErrTokenConsumed, got %v", err)
	}

	tok, _ := store.GetToken(ctx, "tok-1")
	if !tok.Consumed || tok.ConsumedAt == nil {
		t.Error("Expected token to be marked consumed with a timestamp")
	}

	records, err := store.Records(ctx, "c-1")
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected exactly 1 signature record, got %d", len(records))
	}

	if err := store.ConsumeToken(ctx, "unknown", rec); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown token, got %v", err)
	}
}

func TestMemoryStoreAutoCleanup(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		store.SaveContract(ctx, &model.Contract{
			ID:             string(rune('a' + i)),
			ContractNumber: i + 1,
			CreatedAt:      time.Now().Add(time.Duration(i) * time.Second),
		})
	}

	if store.Count() != 3 {
		t.Errorf("Expected 3 contracts after cleanup, got %d", store.Count())
	}
	if _, err := store.GetContract(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Error("Expected oldest contract 'a' to be removed")
	}
	if _, err := store.GetContract(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Error("Expected second oldest contract 'b' to be removed")
	}
}

func TestMemoryStoreUnlimited(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		store.SaveContract(ctx, &model.Contract{
			ID:             string(rune('a' + i)),
			ContractNumber: i + 1,
			CreatedAt:      time.Now(),
		})
	}

	if store.Count() != 10 {
		t.Errorf("Expected 10 contracts, got %d", store.Count())
	}
}
