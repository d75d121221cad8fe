package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
)

const testSignatureImage = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

// initiateSignatures starts a process and returns the issued token pair
func initiateSignatures(t *testing.T, router *gin.Engine, contractID string) (client, agent string) {
	t.Helper()

	w := doJSON(router, "POST", fmt.Sprintf("/api/contracts/%s/initiate-signatures", contractID), map[string]interface{}{
		"clientEmail": "client@example.com",
		"agentEmail":  "agent@example.com",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 initiating signatures, got %d: %s", w.Code, w.Body.String())
	}

	var response struct {
		Message string `json:"message"`
		Tokens  struct {
			Client string `json:"client"`
			Agent  string `json:"agent"`
		} `json:"tokens"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response.Tokens.Client == "" || response.Tokens.Agent == "" {
		t.Fatal("Expected both signing tokens in response")
	}
	return response.Tokens.Client, response.Tokens.Agent
}

func TestSignatureFlowThroughAPI(t *testing.T) {
	router, _ := setupRouter()
	id := createContract(t, router, 500)

	clientToken, agentToken := initiateSignatures(t, router, id)

	// Verify resolves the token to contract and signer
	w := doJSON(router, "GET", "/api/signature/verify/"+clientToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 verifying token, got %d: %s", w.Code, w.Body.String())
	}

	var verification map[string]map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &verification); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if verification["signerInfo"]["signerType"] != "CLIENT" {
		t.Errorf("Expected signer type CLIENT, got %v", verification["signerInfo"]["signerType"])
	}
	if verification["contract"]["contractNumber"] != float64(500) {
		t.Errorf("Expected contract number 500, got %v", verification["contract"]["contractNumber"])
	}

	// Client signs
	w = doJSON(router, "POST", "/api/signature/sign", map[string]string{
		"token":                clientToken,
		"signatureImage":       testSignatureImage,
		"documentVerification": "12345678",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 signing, got %d: %s", w.Code, w.Body.String())
	}

	var signResult map[string]string
	json.Unmarshal(w.Body.Bytes(), &signResult)
	if signResult["contractStatus"] != "PARTIALLY_SIGNED" {
		t.Errorf("Expected PARTIALLY_SIGNED after first signature, got %s", signResult["contractStatus"])
	}

	// Agent signs
	w = doJSON(router, "POST", "/api/signature/sign", map[string]string{
		"token":                agentToken,
		"signatureImage":       testSignatureImage,
		"documentVerification": "87654321",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 signing, got %d: %s", w.Code, w.Body.String())
	}

	json.Unmarshal(w.Body.Bytes(), &signResult)
	if signResult["contractStatus"] != "FULLY_SIGNED" {
		t.Errorf("Expected FULLY_SIGNED after both signatures, got %s", signResult["contractStatus"])
	}

	// Status endpoint reflects completion
	w = doJSON(router, "GET", fmt.Sprintf("/api/contracts/%s/signature-status", id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var status map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &status)
	if status["stateText"] != "Completamente firmado" {
		t.Errorf("Expected state text 'Completamente firmado', got %v", status["stateText"])
	}
}

func TestInitiateSignaturesErrors(t *testing.T) {
	router, _ := setupRouter()
	id := createContract(t, router, 1)

	// Malformed email fails binding
	w := doJSON(router, "POST", fmt.Sprintf("/api/contracts/%s/initiate-signatures", id), map[string]interface{}{
		"clientEmail": "not-an-email",
		"agentEmail":  "agent@example.com",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for malformed email, got %d", w.Code)
	}

	// Unknown contract
	w = doJSON(router, "POST", "/api/contracts/non-existent/initiate-signatures", map[string]interface{}{
		"clientEmail": "client@example.com",
		"agentEmail":  "agent@example.com",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown contract, got %d", w.Code)
	}

	// A live process blocks re-initiation
	initiateSignatures(t, router, id)
	w = doJSON(router, "POST", fmt.Sprintf("/api/contracts/%s/initiate-signatures", id), map[string]interface{}{
		"clientEmail": "client@example.com",
		"agentEmail":  "agent@example.com",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for active process, got %d", w.Code)
	}
}

func TestVerifyUnknownToken(t *testing.T) {
	router, _ := setupRouter()

	w := doJSON(router, "GET", "/api/signature/verify/deadbeef", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown token, got %d", w.Code)
	}
}

func TestSignErrors(t *testing.T) {
	router, _ := setupRouter()
	id := createContract(t, router, 1)
	clientToken, _ := initiateSignatures(t, router, id)

	tests := []struct {
		name           string
		body           map[string]string
		expectedStatus int
	}{
		{
			name: "invalid image format",
			body: map[string]string{
				"token":                clientToken,
				"signatureImage":       "not-a-data-uri",
				"documentVerification": "12345678",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "document mismatch",
			body: map[string]string{
				"token":                clientToken,
				"signatureImage":       testSignatureImage,
				"documentVerification": "00000000",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown token",
			body: map[string]string{
				"token":                "deadbeef",
				"signatureImage":       testSignatureImage,
				"documentVerification": "12345678",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "missing fields",
			body: map[string]string{
				"token": clientToken,
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, "POST", "/api/signature/sign", tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}

	// Failed attempts must not consume the token
	w := doJSON(router, "POST", "/api/signature/sign", map[string]string{
		"token":                clientToken,
		"signatureImage":       testSignatureImage,
		"documentVerification": "12345678",
	})
	if w.Code != http.StatusOK {
		t.Errorf("Expected token to remain usable after failed attempts, got %d: %s", w.Code, w.Body.String())
	}

	// A consumed token cannot sign again
	w = doJSON(router, "POST", "/api/signature/sign", map[string]string{
		"token":                clientToken,
		"signatureImage":       testSignatureImage,
		"documentVerification": "12345678",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for consumed token, got %d", w.Code)
	}
}

func TestResendInvitationEndpoint(t *testing.T) {
	router, _ := setupRouter()
	id := createContract(t, router, 1)

	// No active process yet
	w := doJSON(router, "POST", fmt.Sprintf("/api/contracts/%s/resend-invitation/client", id), nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 without active process, got %d", w.Code)
	}

	initiateSignatures(t, router, id)

	// Signer type is case-insensitive
	w = doJSON(router, "POST", fmt.Sprintf("/api/contracts/%s/resend-invitation/client", id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 resending, got %d: %s", w.Code, w.Body.String())
	}

	var response map[string]string
	json.Unmarshal(w.Body.Bytes(), &response)
	if response["message"] != "Invitación reenviada a client@example.com" {
		t.Errorf("Unexpected resend message: %s", response["message"])
	}

	// Unknown signer type
	w = doJSON(router, "POST", fmt.Sprintf("/api/contracts/%s/resend-invitation/notary", id), nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown signer type, got %d", w.Code)
	}
}
