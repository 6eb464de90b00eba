package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/loopgate/loopgate/internal/services"
	"github.com/loopgate/loopgate/pkg/response"
)

// CredentialHandler manages provider credentials. Secrets never leave the
// server unmasked.
type CredentialHandler struct {
	credentials *services.CredentialService
}

func NewCredentialHandler(credentials *services.CredentialService) *CredentialHandler {
	return &CredentialHandler{credentials: credentials}
}

func (h *CredentialHandler) ListByProvider(c *gin.Context) {
	providerID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid provider id")
		return
	}
	creds, err := h.credentials.ListByProvider(uint(providerID))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, creds)
}

func (h *CredentialHandler) Create(c *gin.Context) {
	var req services.CreateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	cred, err := h.credentials.Create(&req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cred)
}

func (h *CredentialHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req services.UpdateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	cred, err := h.credentials.Update(id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, cred)
}

func (h *CredentialHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := h.credentials.Delete(id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": id})
}
