package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Gestion-inmobiliaria/gi-firmas/config"
	"github.com/Gestion-inmobiliaria/gi-firmas/model"
	"github.com/Gestion-inmobiliaria/gi-firmas/pkg/logger"
	"github.com/google/uuid"
)

var (
	ErrContractNotFound = errors.New("contract not found")
	ErrInvalidToken     = errors.New("invalid token")
	ErrActiveProcess    = errors.New("contract already has an active signature process")
	ErrAlreadySigned    = errors.New("signer has already signed this contract")
	ErrNoActiveProcess  = errors.New("contract has no active signature process")
	ErrDocumentMismatch = errors.New("document verification does not match the registered signer document")
	ErrInvalidImage     = errors.New("invalid signature image format")
	ErrInvalidEmail     = errors.New("invalid email address")
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// SignatureService drives the contract signature workflow: it issues signing
// tokens, validates and records signatures, and keeps each contract's
// aggregate workflow state current. Token consumption is atomic in the
// store; expiration is evaluated lazily whenever a contract is touched,
// there are no background timers.
type SignatureService struct {
	store   Store
	mailer  Mailer        // nil disables invitations
	archive *MinioService // nil disables archival
	cfg     *config.SignatureConfig
	now     func() time.Time

	// mu serializes token issuance (Initiate, Resend) so the active-process
	// check and the write it guards are one step; consumption stays atomic
	// in the store
	mu sync.Mutex
}

func NewSignatureService(store Store, mailer Mailer, archive *MinioService, cfg *config.SignatureConfig) *SignatureService {
	return &SignatureService{
		store:   store,
		mailer:  mailer,
		archive: archive,
		cfg:     cfg,
		now:     time.Now,
	}
}

// InitiateRequest starts a signature process for a contract
type InitiateRequest struct {
	ClientEmail     string
	AgentEmail      string
	ExpirationHours int // 0 uses the configured default
}

// TokenPair holds the two signing tokens issued for one process
type TokenPair struct {
	Client string `json:"client"`
	Agent  string `json:"agent"`
}

// InitiateResult is returned to the caller after a process is started
type InitiateResult struct {
	Message string    `json:"message"`
	Tokens  TokenPair `json:"tokens"`
}

// ContractSummary is the subset of contract data shown to a signer
type ContractSummary struct {
	ContractNumber  int                  `json:"contractNumber"`
	Type            model.ContractType   `json:"type"`
	Amount          float64              `json:"amount"`
	ClientName      string               `json:"clientName"`
	AgentName       string               `json:"agentName"`
	ContractContent string               `json:"contractContent"`
	ContractFormat  model.ContractFormat `json:"contractFormat"`
}

// Verification resolves a token to its contract and signer identity
type Verification struct {
	Contract   ContractSummary  `json:"contract"`
	SignerInfo model.SignerInfo `json:"signerInfo"`
}

// SignRequest submits one party's signature
type SignRequest struct {
	Token                string
	SignatureImage       string
	DocumentVerification string
	UserAgent            string
}

// SignResult reports the outcome of a successful signature
type SignResult struct {
	Message        string               `json:"message"`
	ContractStatus model.SignatureState `json:"contractStatus"`
}

// SignerStatus is one party's completion detail
type SignerStatus struct {
	SignerType     model.SignerType `json:"signerType"`
	SignerName     string           `json:"signerName"`
	Signed         bool             `json:"signed"`
	SignedAt       *time.Time       `json:"signedAt,omitempty"`
	TokenExpiresAt *time.Time       `json:"tokenExpiresAt,omitempty"`
	Expired        bool             `json:"expired"`
}

// StatusDetail aggregates both parties' completion detail
type StatusDetail struct {
	ContractID string               `json:"contractId"`
	State      model.SignatureState `json:"state"`
	StateText  string               `json:"stateText"`
	Client     SignerStatus         `json:"client"`
	Agent      SignerStatus         `json:"agent"`
}

// Statistics counts contracts per workflow state
type Statistics struct {
	Total               int `json:"total"`
	NoSignatureRequired int `json:"noSignatureRequired"`
	PendingSignatures   int `json:"pendingSignatures"`
	PartiallySigned     int `json:"partiallySigned"`
	FullySigned         int `json:"fullySigned"`
	Expired             int `json:"expired"`
}

// Initiate starts a signature process, issuing one token per signer and
// emailing each party their signing link. A contract with a live process
// (any usable token outstanding) cannot be re-initiated; a process whose
// tokens all lapsed or were consumed can, as an explicit restart.
func (s *SignatureService) Initiate(ctx context.Context, contractID string, req *InitiateRequest) (*InitiateResult, error) {
	if !emailPattern.MatchString(req.ClientEmail) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, req.ClientEmail)
	}
	if !emailPattern.MatchString(req.AgentEmail) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, req.AgentEmail)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	contract, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrContractNotFound
		}
		return nil, err
	}

	state, err := s.refreshState(ctx, contract)
	if err != nil {
		return nil, err
	}
	if state == model.SignatureFullySigned {
		return nil, ErrAlreadySigned
	}

	now := s.now()
	tokens, err := s.store.ActiveTokens(ctx, contractID)
	if err != nil {
		return nil, err
	}
	for _, t := range tokens {
		if t.Usable(now) {
			return nil, ErrActiveProcess
		}
	}

	hours := req.ExpirationHours
	if hours <= 0 {
		hours = s.cfg.ExpirationHours
	}
	expiresAt := now.Add(time.Duration(hours) * time.Hour)

	// Retire any tokens from a dead previous process before issuing
	if err := s.store.DeactivateTokens(ctx, contractID, ""); err != nil {
		return nil, err
	}

	clientToken, err := s.issueToken(ctx, contract, model.SignerTypeClient, expiresAt)
	if err != nil {
		return nil, err
	}
	agentToken, err := s.issueToken(ctx, contract, model.SignerTypeAgent, expiresAt)
	if err != nil {
		return nil, err
	}

	contract.ClientEmail = req.ClientEmail
	contract.AgentEmail = req.AgentEmail
	contract.SignatureState = model.SignaturePendingSignatures
	if err := s.store.SaveContract(ctx, contract); err != nil {
		return nil, err
	}
	// A re-initiation after a lapsed partial process keeps the recorded
	// signature, so the fresh state may already be PARTIALLY_SIGNED
	if _, err := s.refreshState(ctx, contract); err != nil {
		return nil, err
	}

	s.sendInvitation(ctx, contract, model.SignerTypeClient, req.ClientEmail, clientToken.Token, expiresAt)
	s.sendInvitation(ctx, contract, model.SignerTypeAgent, req.AgentEmail, agentToken.Token, expiresAt)

	logger.Info(ctx, "signature process initiated",
		"contract_id", contract.ID,
		"contract_number", contract.ContractNumber,
		"expires_at", expiresAt,
	)

	return &InitiateResult{
		Message: "Proceso de firmas iniciado",
		Tokens:  TokenPair{Client: clientToken.Token, Agent: agentToken.Token},
	}, nil
}

// Verify resolves a signing token to the contract and signer it binds.
// Unknown, superseded, consumed and expired tokens all fail the same way so
// the link reveals nothing about why it stopped working.
func (s *SignatureService) Verify(ctx context.Context, token string) (*Verification, error) {
	tok, err := s.store.GetToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	contract, err := s.store.GetContract(ctx, tok.ContractID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if _, err := s.refreshState(ctx, contract); err != nil {
		return nil, err
	}

	if !tok.Usable(s.now()) {
		return nil, ErrInvalidToken
	}

	return &Verification{
		Contract: ContractSummary{
			ContractNumber:  contract.ContractNumber,
			Type:            contract.Type,
			Amount:          contract.Amount,
			ClientName:      contract.ClientName,
			AgentName:       contract.AgentName,
			ContractContent: contract.ContractContent,
			ContractFormat:  contract.ContractFormat,
		},
		SignerInfo: contract.Signer(tok.SignerType),
	}, nil
}

// Sign validates the submission, consumes the token atomically with the
// creation of the signature record, and advances the workflow state
func (s *SignatureService) Sign(ctx context.Context, req *SignRequest, clientIP string) (*SignResult, error) {
	if !model.ValidateSignatureImage(req.SignatureImage) {
		return nil, ErrInvalidImage
	}

	tok, err := s.store.GetToken(ctx, req.Token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	contract, err := s.store.GetContract(ctx, tok.ContractID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	now := s.now()
	if !tok.Usable(now) {
		if _, err := s.refreshState(ctx, contract); err != nil {
			return nil, err
		}
		return nil, ErrInvalidToken
	}

	signer := contract.Signer(tok.SignerType)
	if strings.TrimSpace(req.DocumentVerification) != signer.SignerDocument {
		return nil, ErrDocumentMismatch
	}

	// Exactly one signature record may exist per (contract, signer type);
	// a token reissued after a re-initiation cannot duplicate it
	records, err := s.store.Records(ctx, contract.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.SignerType == tok.SignerType {
			return nil, ErrAlreadySigned
		}
	}

	rec := &model.SignatureRecord{
		ID:         uuid.New().String(),
		ContractID: contract.ID,
		SignerType: tok.SignerType,
		Image:      req.SignatureImage,
		SignedAt:   now,
		UserAgent:  req.UserAgent,
		IPAddress:  clientIP,
	}
	if err := s.store.ConsumeToken(ctx, req.Token, rec); err != nil {
		if errors.Is(err, ErrTokenConsumed) || errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if s.archive != nil {
		if _, err := s.archive.ArchiveSignature(ctx, contract.ID, string(tok.SignerType), req.SignatureImage); err != nil {
			logger.Warn(ctx, "failed to archive signature image",
				"contract_id", contract.ID,
				"signer_type", tok.SignerType,
				"error", err,
			)
		}
	}

	state, err := s.refreshState(ctx, contract)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "contract signed",
		"contract_id", contract.ID,
		"signer_type", tok.SignerType,
		"state", state,
	)

	message := "Firma registrada correctamente"
	if state == model.SignatureFullySigned {
		message = "Firma registrada correctamente. El contrato ha sido firmado por todas las partes"
	}
	return &SignResult{Message: message, ContractStatus: state}, nil
}

// Status returns per-signer completion detail for a contract
func (s *SignatureService) Status(ctx context.Context, contractID string) (*StatusDetail, error) {
	contract, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrContractNotFound
		}
		return nil, err
	}

	state, err := s.refreshState(ctx, contract)
	if err != nil {
		return nil, err
	}

	tokens, err := s.store.ActiveTokens(ctx, contractID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.Records(ctx, contractID)
	if err != nil {
		return nil, err
	}

	detail := &StatusDetail{
		ContractID: contractID,
		State:      state,
		StateText:  state.Text(),
		Client:     s.signerStatus(contract, model.SignerTypeClient, tokens, records),
		Agent:      s.signerStatus(contract, model.SignerTypeAgent, tokens, records),
	}
	return detail, nil
}

func (s *SignatureService) signerStatus(contract *model.Contract, signer model.SignerType, tokens []*model.SignatureToken, records []*model.SignatureRecord) SignerStatus {
	status := SignerStatus{
		SignerType: signer,
		SignerName: contract.Signer(signer).SignerName,
	}

	for _, r := range records {
		if r.SignerType == signer {
			status.Signed = true
			signedAt := r.SignedAt
			status.SignedAt = &signedAt
			return status
		}
	}

	now := s.now()
	for _, t := range tokens {
		if t.SignerType == signer {
			expiresAt := t.ExpiresAt
			status.TokenExpiresAt = &expiresAt
			status.Expired = t.ExpiredAt(now)
		}
	}
	return status
}

// Statistics aggregates workflow states across all contracts, refreshing
// each contract's state first so lapsed tokens are accounted for
func (s *SignatureService) Statistics(ctx context.Context) (*Statistics, error) {
	contracts, err := s.store.ListContracts(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{Total: len(contracts)}
	for _, contract := range contracts {
		state, err := s.refreshState(ctx, contract)
		if err != nil {
			return nil, err
		}
		switch state {
		case model.SignatureNoRequired:
			stats.NoSignatureRequired++
		case model.SignaturePendingSignatures:
			stats.PendingSignatures++
		case model.SignaturePartiallySigned:
			stats.PartiallySigned++
		case model.SignatureFullySigned:
			stats.FullySigned++
		case model.SignatureExpired:
			stats.Expired++
		}
	}
	return stats, nil
}

// Resend reissues the signing token for one signer of a live process. The
// replaced token is retired; the other signer's token is untouched.
func (s *SignatureService) Resend(ctx context.Context, contractID string, signer model.SignerType) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contract, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrContractNotFound
		}
		return "", err
	}

	records, err := s.store.Records(ctx, contractID)
	if err != nil {
		return "", err
	}
	for _, r := range records {
		if r.SignerType == signer {
			return "", ErrAlreadySigned
		}
	}

	tokens, err := s.store.ActiveTokens(ctx, contractID)
	if err != nil {
		return "", err
	}
	if len(tokens) == 0 {
		return "", ErrNoActiveProcess
	}

	email := contract.SignerEmail(signer)
	if email == "" {
		return "", fmt.Errorf("%w: no address registered for %s", ErrInvalidEmail, signer)
	}

	if err := s.store.DeactivateTokens(ctx, contractID, signer); err != nil {
		return "", err
	}

	expiresAt := s.now().Add(time.Duration(s.cfg.ExpirationHours) * time.Hour)
	tok, err := s.issueToken(ctx, contract, signer, expiresAt)
	if err != nil {
		return "", err
	}

	if _, err := s.refreshState(ctx, contract); err != nil {
		return "", err
	}

	s.sendInvitation(ctx, contract, signer, email, tok.Token, expiresAt)

	logger.Info(ctx, "signature invitation resent",
		"contract_id", contract.ID,
		"signer_type", signer,
	)
	return fmt.Sprintf("Invitación reenviada a %s", email), nil
}

// issueToken creates and stores a fresh signing token for one signer
func (s *SignatureService) issueToken(ctx context.Context, contract *model.Contract, signer model.SignerType, expiresAt time.Time) (*model.SignatureToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	tok := &model.SignatureToken{
		Token:      hex.EncodeToString(raw),
		ContractID: contract.ID,
		SignerType: signer,
		ExpiresAt:  expiresAt,
		Active:     true,
		CreatedAt:  s.now(),
	}
	if err := s.store.SaveToken(ctx, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// sendInvitation emails a signing link; delivery failures are logged and do
// not abort the workflow, the invitation can be resent
func (s *SignatureService) sendInvitation(ctx context.Context, contract *model.Contract, signer model.SignerType, email, token string, expiresAt time.Time) {
	if s.mailer == nil {
		return
	}

	inv := &Invitation{
		To:             email,
		SignerName:     contract.Signer(signer).SignerName,
		SignerType:     signer,
		ContractNumber: contract.ContractNumber,
		SigningURL:     fmt.Sprintf("%s/sign/%s", strings.TrimRight(s.cfg.SigningBaseURL, "/"), token),
		ExpiresAt:      expiresAt,
	}
	if err := s.mailer.SendInvitation(inv); err != nil {
		logger.Warn(ctx, "failed to send signing invitation",
			"contract_id", contract.ID,
			"signer_type", signer,
			"error", err,
		)
	}
}

// refreshState recomputes the workflow state from the current signing facts
// and persists it when it changed. Expiration only counts for a signer who
// has not signed yet. A fully signed contract is moved to FINISHED.
func (s *SignatureService) refreshState(ctx context.Context, contract *model.Contract) (model.SignatureState, error) {
	tokens, err := s.store.ActiveTokens(ctx, contract.ID)
	if err != nil {
		return "", err
	}
	records, err := s.store.Records(ctx, contract.ID)
	if err != nil {
		return "", err
	}

	required := len(tokens) > 0 || len(records) > 0 ||
		contract.SignatureState != model.SignatureNoRequired

	var clientSigned, agentSigned bool
	for _, r := range records {
		switch r.SignerType {
		case model.SignerTypeClient:
			clientSigned = true
		case model.SignerTypeAgent:
			agentSigned = true
		}
	}

	now := s.now()
	unsignedExpired := false
	for _, t := range tokens {
		signed := (t.SignerType == model.SignerTypeClient && clientSigned) ||
			(t.SignerType == model.SignerTypeAgent && agentSigned)
		if !signed && t.ExpiredAt(now) {
			unsignedExpired = true
		}
	}

	state := model.DeriveSignatureState(required, clientSigned, agentSigned, unsignedExpired)
	if state != contract.SignatureState {
		contract.SignatureState = state
		if state == model.SignatureFullySigned {
			contract.Status = model.ContractStatusFinished
		}
		if err := s.store.SaveContract(ctx, contract); err != nil {
			return "", err
		}
	}
	return state, nil
}
