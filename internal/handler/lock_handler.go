package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tablekeep/tablekeep/internal/pkg/errcode"
	appErr "github.com/tablekeep/tablekeep/internal/pkg/errors"
	"github.com/tablekeep/tablekeep/internal/pkg/response"
	"github.com/tablekeep/tablekeep/internal/service"
)

type LockHandler struct {
	locks *service.LockService
}

func NewLockHandler(locks *service.LockService) *LockHandler {
	return &LockHandler{locks: locks}
}

type lockRequest struct {
	Holder string `json:"holder"`
}

func (h *LockHandler) Acquire(c *gin.Context) {
	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid", "invalid request")
		return
	}
	holder := resolveHolder(c, req.Holder)
	if holder == "" {
		handleError(c, appErr.ErrInvalid)
		return
	}
	lock, err := h.locks.Acquire(c.Request.Context(), c.Param("row_id"), holder)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"granted": true, "expires_at": lock.ExpiresAt})
}

func (h *LockHandler) Release(c *gin.Context) {
	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid", "invalid request")
		return
	}
	holder := resolveHolder(c, req.Holder)
	if holder == "" {
		handleError(c, appErr.ErrInvalid)
		return
	}
	h.locks.Release(c.Request.Context(), c.Param("row_id"), holder)
	response.Success(c, gin.H{"released": true})
}

func (h *LockHandler) ReleaseAll(c *gin.Context) {
	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid", "invalid request")
		return
	}
	holder := resolveHolder(c, req.Holder)
	if holder == "" {
		handleError(c, appErr.ErrInvalid)
		return
	}
	count := h.locks.ReleaseAll(c.Request.Context(), holder)
	response.Success(c, gin.H{"released_count": count})
}
