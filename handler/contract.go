package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/Gestion-inmobiliaria/gi-firmas/model"
	"github.com/Gestion-inmobiliaria/gi-firmas/pkg/logger"
	"github.com/Gestion-inmobiliaria/gi-firmas/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ContractHandler struct {
	store      service.Store
	signatures *service.SignatureService
	generator  *service.Generator
	archive    *service.MinioService
}

func NewContractHandler(store service.Store, signatures *service.SignatureService, generator *service.Generator, archive *service.MinioService) *ContractHandler {
	return &ContractHandler{
		store:      store,
		signatures: signatures,
		generator:  generator,
		archive:    archive,
	}
}

type CreateContractRequest struct {
	ContractNumber int     `json:"contract_number" binding:"required"`
	Type           string  `json:"type" binding:"required,oneof=SALE PURCHASE ANTICRETIC"`
	Amount         float64 `json:"amount" binding:"required"`
	StartDate      string  `json:"start_date" binding:"required,datetime=2006-01-02"`
	EndDate        string  `json:"end_date" binding:"required,datetime=2006-01-02"`
	PaymentMethod  string  `json:"payment_method" binding:"required"`

	PropertyAddress string  `json:"property_address" binding:"required"`
	PropertyPrice   float64 `json:"property_price"`
	PropertyCity    string  `json:"property_city"`
	PropertyZone    string  `json:"property_zone"`

	ClientName     string `json:"client_name" binding:"required"`
	ClientDocument string `json:"client_document" binding:"required"`
	ClientEmail    string `json:"client_email" binding:"omitempty,email"`
	AgentName      string `json:"agent_name" binding:"required"`
	AgentDocument  string `json:"agent_document" binding:"required"`
	AgentEmail     string `json:"agent_email" binding:"omitempty,email"`

	// ContractContent overrides generation when provided; it must be a
	// base64 data URI matching ContractFormat
	ContractContent string `json:"contract_content"`
	ContractFormat  string `json:"contract_format" binding:"omitempty,oneof=HTML PDF"`
	Notes           string `json:"notes"`
}

// Create registers a new contract, generating its document when no
// pre-rendered content was submitted
func (h *ContractHandler) Create(c *gin.Context) {
	var req CreateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	startDate, _ := time.Parse("2006-01-02", req.StartDate)
	endDate, _ := time.Parse("2006-01-02", req.EndDate)

	format := model.ContractFormat(req.ContractFormat)
	if format == "" {
		format = model.ContractFormatHTML
	}

	content := req.ContractContent
	if content == "" {
		draft := &service.ContractDraft{
			ContractNumber:  req.ContractNumber,
			Type:            model.ContractType(req.Type),
			Amount:          req.Amount,
			StartDate:       startDate,
			EndDate:         endDate,
			PaymentMethod:   req.PaymentMethod,
			PropertyAddress: req.PropertyAddress,
			PropertyPrice:   req.PropertyPrice,
			PropertyCity:    req.PropertyCity,
			PropertyZone:    req.PropertyZone,
			ClientName:      req.ClientName,
			ClientDocument:  req.ClientDocument,
			AgentName:       req.AgentName,
			AgentDocument:   req.AgentDocument,
			Notes:           req.Notes,
		}
		rendered, err := h.generator.Render(draft, format)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate contract: " + err.Error()})
			return
		}
		content = rendered
	}

	now := time.Now()
	contract := &model.Contract{
		ID:              uuid.New().String(),
		ContractNumber:  req.ContractNumber,
		Type:            model.ContractType(req.Type),
		Status:          model.ContractStatusActive,
		Amount:          req.Amount,
		StartDate:       startDate,
		EndDate:         endDate,
		ContractContent: content,
		ContractFormat:  format,
		PropertyAddress: req.PropertyAddress,
		PropertyPrice:   req.PropertyPrice,
		PropertyCity:    req.PropertyCity,
		PropertyZone:    req.PropertyZone,
		PaymentMethod:   req.PaymentMethod,
		ClientName:      req.ClientName,
		ClientDocument:  req.ClientDocument,
		ClientEmail:     req.ClientEmail,
		AgentName:       req.AgentName,
		AgentDocument:   req.AgentDocument,
		AgentEmail:      req.AgentEmail,
		SignatureState:  model.SignatureNoRequired,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := contract.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.SaveContract(c.Request.Context(), contract); err != nil {
		if errors.Is(err, service.ErrDuplicateNumber) {
			c.JSON(http.StatusConflict, gin.H{"error": "Contract number already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save contract"})
		return
	}

	if h.archive != nil {
		if _, err := h.archive.ArchiveContractContent(c.Request.Context(), contract.ID, contract.ContractContent); err != nil {
			logger.Warn(c.Request.Context(), "failed to archive contract document",
				"contract_id", contract.ID,
				"error", err,
			)
		}
	}

	c.JSON(http.StatusCreated, contract)
}

// List returns all contracts
func (h *ContractHandler) List(c *gin.Context) {
	contracts, err := h.store.ListContracts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list contracts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"contracts": contracts})
}

// Get returns a single contract
func (h *ContractHandler) Get(c *gin.Context) {
	contract, err := h.store.GetContract(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load contract"})
		return
	}

	c.JSON(http.StatusOK, contract)
}

// Delete deletes a contract and its archived objects
func (h *ContractHandler) Delete(c *gin.Context) {
	contract, err := h.store.GetContract(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load contract"})
		return
	}

	if err := h.store.DeleteContract(c.Request.Context(), contract.ID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete contract"})
		return
	}

	if h.archive != nil {
		objects := []string{
			service.ContractObjectName(contract.ID, string(contract.ContractFormat)),
			service.SignatureObjectName(contract.ID, string(model.SignerTypeClient)),
			service.SignatureObjectName(contract.ID, string(model.SignerTypeAgent)),
		}
		for _, objectName := range objects {
			if err := h.archive.DeleteObject(c.Request.Context(), objectName); err != nil {
				logger.Warn(c.Request.Context(), "failed to delete archived object",
					"contract_id", contract.ID,
					"object", objectName,
					"error", err,
				)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Contract deleted"})
}

// DocumentURL returns a presigned link to the archived contract document
func (h *ContractHandler) DocumentURL(c *gin.Context) {
	contract, err := h.store.GetContract(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load contract"})
		return
	}

	if h.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document archive is not enabled"})
		return
	}

	objectName := service.ContractObjectName(contract.ID, string(contract.ContractFormat))
	url, err := h.archive.GetPresignedURL(c.Request.Context(), objectName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate document URL"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

type InitiateSignaturesRequest struct {
	ClientEmail     string `json:"clientEmail" binding:"required,email"`
	AgentEmail      string `json:"agentEmail" binding:"required,email"`
	ExpirationHours int    `json:"expirationHours" binding:"omitempty,min=1"`
}

// InitiateSignatures starts the signature process for a contract
func (h *ContractHandler) InitiateSignatures(c *gin.Context) {
	var req InitiateSignaturesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	result, err := h.signatures.Initiate(c.Request.Context(), c.Param("id"), &service.InitiateRequest{
		ClientEmail:     req.ClientEmail,
		AgentEmail:      req.AgentEmail,
		ExpirationHours: req.ExpirationHours,
	})
	if err != nil {
		respondSignatureError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// SignatureStatus returns per-signer completion detail for a contract
func (h *ContractHandler) SignatureStatus(c *gin.Context) {
	detail, err := h.signatures.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondSignatureError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// ResendInvitation reissues one signer's signing link
func (h *ContractHandler) ResendInvitation(c *gin.Context) {
	signer, err := model.ParseSignerType(c.Param("signerType"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signer type"})
		return
	}

	message, err := h.signatures.Resend(c.Request.Context(), c.Param("id"), signer)
	if err != nil {
		respondSignatureError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": message})
}

// SignatureStatistics aggregates workflow states across all contracts
func (h *ContractHandler) SignatureStatistics(c *gin.Context) {
	stats, err := h.signatures.Statistics(c.Request.Context())
	if err != nil {
		respondSignatureError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
