package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ContractType is the legal figure of the contract
type ContractType string

const (
	ContractTypeSale       ContractType = "SALE"
	ContractTypePurchase   ContractType = "PURCHASE"
	ContractTypeAnticretic ContractType = "ANTICRETIC"
)

// ContractStatus constants
type ContractStatus string

const (
	ContractStatusActive   ContractStatus = "ACTIVE"
	ContractStatusFinished ContractStatus = "FINISHED"
)

// ContractFormat is the encoding of the stored contract content
type ContractFormat string

const (
	ContractFormatHTML ContractFormat = "HTML"
	ContractFormatPDF  ContractFormat = "PDF"
)

// SignerType identifies which party a token or signature belongs to
type SignerType string

const (
	SignerTypeClient SignerType = "CLIENT"
	SignerTypeAgent  SignerType = "AGENT"
)

// ParseSignerType validates a signer type path parameter
func ParseSignerType(s string) (SignerType, error) {
	switch SignerType(strings.ToUpper(s)) {
	case SignerTypeClient:
		return SignerTypeClient, nil
	case SignerTypeAgent:
		return SignerTypeAgent, nil
	}
	return "", fmt.Errorf("unknown signer type %q", s)
}

// Other returns the opposite party
func (s SignerType) Other() SignerType {
	if s == SignerTypeClient {
		return SignerTypeAgent
	}
	return SignerTypeClient
}

// Contract represents a real-estate contract with its rendered document.
// Each contract carries one client party and one agent party; in signature
// mode both must sign through the token flow before it is finished.
type Contract struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	ContractNumber int            `gorm:"uniqueIndex" json:"contract_number"`
	Type           ContractType   `gorm:"size:16" json:"type"`
	Status         ContractStatus `gorm:"size:16" json:"status"`
	Amount         float64        `json:"amount"`
	StartDate      time.Time      `json:"start_date"`
	EndDate        time.Time      `json:"end_date"`

	// Rendered document, stored as a base64 data URI matching the format
	ContractContent string         `gorm:"type:text" json:"contract_content"`
	ContractFormat  ContractFormat `gorm:"size:8" json:"contract_format"`

	PropertyAddress string  `json:"property_address"`
	PropertyPrice   float64 `json:"property_price"`
	PropertyCity    string  `json:"property_city,omitempty"`
	PropertyZone    string  `json:"property_zone,omitempty"`
	PaymentMethod   string  `json:"payment_method"`

	ClientName     string `json:"client_name"`
	ClientDocument string `json:"client_document"`
	ClientEmail    string `json:"client_email,omitempty"`
	AgentName      string `json:"agent_name"`
	AgentDocument  string `json:"agent_document"`
	AgentEmail     string `json:"agent_email,omitempty"`

	// Aggregate signature workflow state, refreshed lazily on access
	SignatureState SignatureState `gorm:"size:24" json:"signature_state"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrInvalidDates   = errors.New("end date must not be before start date")
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrInvalidType    = errors.New("invalid contract type")
	ErrContentFormat  = errors.New("contract content does not match contract format")
	ErrMissingContent = errors.New("contract content is required")
)

const (
	htmlDataURIPrefix = "data:text/html;base64,"
	pdfDataURIPrefix  = "data:application/pdf;base64,"
)

// Validate checks the invariants of a contract before it is stored
func (c *Contract) Validate() error {
	switch c.Type {
	case ContractTypeSale, ContractTypePurchase, ContractTypeAnticretic:
	default:
		return ErrInvalidType
	}
	if c.Amount <= 0 {
		return ErrInvalidAmount
	}
	if c.EndDate.Before(c.StartDate) {
		return ErrInvalidDates
	}
	if c.ContractContent == "" {
		return ErrMissingContent
	}
	switch c.ContractFormat {
	case ContractFormatHTML:
		if !strings.HasPrefix(c.ContractContent, htmlDataURIPrefix) {
			return ErrContentFormat
		}
	case ContractFormatPDF:
		if !strings.HasPrefix(c.ContractContent, pdfDataURIPrefix) {
			return ErrContentFormat
		}
	default:
		return ErrContentFormat
	}
	return nil
}

// SignerInfo is the identity of one signing party
type SignerInfo struct {
	SignerName     string     `json:"signerName"`
	SignerDocument string     `json:"signerDocument"`
	SignerType     SignerType `json:"signerType"`
}

// Signer returns the identity registered for the given party
func (c *Contract) Signer(t SignerType) SignerInfo {
	if t == SignerTypeAgent {
		return SignerInfo{SignerName: c.AgentName, SignerDocument: c.AgentDocument, SignerType: SignerTypeAgent}
	}
	return SignerInfo{SignerName: c.ClientName, SignerDocument: c.ClientDocument, SignerType: SignerTypeClient}
}

// SignerEmail returns the invitation address registered for the given party
func (c *Contract) SignerEmail(t SignerType) string {
	if t == SignerTypeAgent {
		return c.AgentEmail
	}
	return c.ClientEmail
}
