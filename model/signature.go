package model

import (
	"regexp"
	"time"
)

// SignatureState is the aggregate signature-completion status of a contract
type SignatureState string

const (
	SignatureNoRequired        SignatureState = "NO_REQUIRED"
	SignaturePendingSignatures SignatureState = "PENDING_SIGNATURES"
	SignaturePartiallySigned   SignatureState = "PARTIALLY_SIGNED"
	SignatureFullySigned       SignatureState = "FULLY_SIGNED"
	SignatureExpired           SignatureState = "SIGNATURE_EXPIRED"
)

var signatureStateTexts = map[SignatureState]string{
	SignatureNoRequired:        "Sin firma requerida",
	SignaturePendingSignatures: "Pendiente de firmas",
	SignaturePartiallySigned:   "Firmado parcialmente",
	SignatureFullySigned:       "Completamente firmado",
	SignatureExpired:           "Firmas expiradas",
}

// Text returns the client-facing Spanish label for the state
func (s SignatureState) Text() string {
	if text, ok := signatureStateTexts[s]; ok {
		return text
	}
	return string(s)
}

// DeriveSignatureState computes the workflow state as a pure function of the
// signing facts. Expiration only counts for parties that have not signed;
// recorded signatures are retained when the other party's token lapses. Both
// tokens expiring with zero signatures still yields SIGNATURE_EXPIRED.
func DeriveSignatureState(required, clientSigned, agentSigned, unsignedExpired bool) SignatureState {
	if !required {
		return SignatureNoRequired
	}
	if clientSigned && agentSigned {
		return SignatureFullySigned
	}
	if unsignedExpired {
		return SignatureExpired
	}
	if clientSigned || agentSigned {
		return SignaturePartiallySigned
	}
	return SignaturePendingSignatures
}

// SignatureToken is a single-use, time-limited credential binding one signer
// to one contract. Tokens are never deleted; superseded or consumed tokens
// stay around for audit with Active=false or Consumed=true.
type SignatureToken struct {
	Token      string     `gorm:"primaryKey;size:64" json:"token"`
	ContractID string     `gorm:"index;size:36" json:"contract_id"`
	SignerType SignerType `gorm:"size:8" json:"signer_type"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Consumed   bool       `json:"consumed"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	// Active marks the token as belonging to the current signature process;
	// re-initiation and resends deactivate the tokens they replace
	Active    bool      `gorm:"index" json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ExpiredAt reports whether the token has lapsed at the given instant
func (t *SignatureToken) ExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Usable reports whether the token can still authorize a signature: it must
// belong to the current process, be unconsumed and unexpired
func (t *SignatureToken) Usable(now time.Time) bool {
	return t.Active && !t.Consumed && !t.ExpiredAt(now)
}

// SignatureRecord is the immutable evidence of one party's signature.
// Exactly one exists per (contract, signer type); it is created atomically
// with the consumption of the token that authorized it.
type SignatureRecord struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	ContractID string     `gorm:"index:idx_contract_signer,unique;size:36" json:"contract_id"`
	SignerType SignerType `gorm:"index:idx_contract_signer,unique;size:8" json:"signer_type"`
	// Image is the rasterized drawing as a base64 data URI
	Image     string    `gorm:"type:text" json:"image"`
	SignedAt  time.Time `json:"signed_at"`
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"ip_address"`
}

var signatureImagePattern = regexp.MustCompile(`^data:image/(png|jpeg|jpg|gif);base64,`)

// ValidateSignatureImage reports whether the string is a base64 raster image
// data URI as produced by a canvas export
func ValidateSignatureImage(image string) bool {
	return signatureImagePattern.MatchString(image)
}
