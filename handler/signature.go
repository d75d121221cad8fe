package handler

import (
	"errors"
	"net/http"

	"github.com/Gestion-inmobiliaria/gi-firmas/service"
	"github.com/gin-gonic/gin"
)

// SignatureHandler serves the public signer-facing endpoints. They are
// reached through emailed links, so they sit outside the authenticated API
// and authorize by signing token alone.
type SignatureHandler struct {
	signatures *service.SignatureService
}

func NewSignatureHandler(signatures *service.SignatureService) *SignatureHandler {
	return &SignatureHandler{signatures: signatures}
}

// Verify resolves a signing token to the contract and signer it binds
func (h *SignatureHandler) Verify(c *gin.Context) {
	verification, err := h.signatures.Verify(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondSignatureError(c, err)
		return
	}

	c.JSON(http.StatusOK, verification)
}

type SignSubmission struct {
	Token                string `json:"token" binding:"required"`
	SignatureImage       string `json:"signatureImage" binding:"required"`
	DocumentVerification string `json:"documentVerification" binding:"required"`
	UserAgent            string `json:"userAgent"`
}

// Sign registers one party's signature
func (h *SignatureHandler) Sign(c *gin.Context) {
	var req SignSubmission
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = c.Request.UserAgent()
	}

	result, err := h.signatures.Sign(c.Request.Context(), &service.SignRequest{
		Token:                req.Token,
		SignatureImage:       req.SignatureImage,
		DocumentVerification: req.DocumentVerification,
		UserAgent:            userAgent,
	}, c.ClientIP())
	if err != nil {
		respondSignatureError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// respondSignatureError maps workflow errors to HTTP statuses
func respondSignatureError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrContractNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
	case errors.Is(err, service.ErrInvalidToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Token inválido o expirado"})
	case errors.Is(err, service.ErrDocumentMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "El documento ingresado no coincide con el firmante"})
	case errors.Is(err, service.ErrInvalidImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Formato de imagen de firma inválido"})
	case errors.Is(err, service.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrActiveProcess):
		c.JSON(http.StatusConflict, gin.H{"error": "El contrato ya tiene un proceso de firmas activo"})
	case errors.Is(err, service.ErrAlreadySigned):
		c.JSON(http.StatusConflict, gin.H{"error": "El firmante ya registró su firma"})
	case errors.Is(err, service.ErrNoActiveProcess):
		c.JSON(http.StatusConflict, gin.H{"error": "El contrato no tiene un proceso de firmas activo"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
