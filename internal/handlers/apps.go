package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/loopgate/loopgate/internal/services"
	"github.com/loopgate/loopgate/pkg/response"
	"gorm.io/gorm"
)

// AppHandler manages calling applications and their tokens.
type AppHandler struct {
	apps *services.AppService
}

func NewAppHandler(db *gorm.DB) *AppHandler {
	return &AppHandler{apps: services.NewAppService(db)}
}

func (h *AppHandler) List(c *gin.Context) {
	apps, err := h.apps.List()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, apps)
}

func (h *AppHandler) Create(c *gin.Context) {
	var req services.CreateAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	app, token, err := h.apps.Create(&req)
	if err != nil {
		response.Error(c, err)
		return
	}
	// The plaintext token is shown exactly once.
	response.Created(c, gin.H{"app": app, "token": token})
}

func (h *AppHandler) RotateToken(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	app, token, err := h.apps.RotateToken(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"app": app, "token": token})
}

func (h *AppHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req services.UpdateAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	app, err := h.apps.Update(id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, app)
}

func (h *AppHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := h.apps.Delete(id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": id})
}
