package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/tablekeep/tablekeep/internal/middleware"
	"github.com/tablekeep/tablekeep/internal/pkg/errcode"
	appErr "github.com/tablekeep/tablekeep/internal/pkg/errors"
	"github.com/tablekeep/tablekeep/internal/pkg/response"
)

func getHolderID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextHolderIDKey)
	holderID, _ := value.(string)
	return holderID
}

// resolveHolder returns the caller identity, honoring an explicit body
// holder only when it matches the authenticated one. An empty result means
// the request fails validation.
func resolveHolder(c *gin.Context, bodyHolder string) string {
	holder := getHolderID(c)
	if bodyHolder != "" && bodyHolder != holder {
		return ""
	}
	return holder
}

// handleRowMutationError is handleError with the row-write contract: a
// foreign live lock is a failed precondition on the row, reported as 404
// so clients never confuse it with the retryable version-conflict 409.
// The lock detail still travels in the payload for display.
func handleRowMutationError(c *gin.Context, err error) {
	if held, ok := appErr.AsLockHeld(err); ok {
		response.ErrorDetail(c, http.StatusNotFound, errcode.ErrLockHeld, "lock_held", "row locked by another holder", map[string]interface{}{
			"locked_by":  held.Holder,
			"expires_at": held.ExpiresAt,
		})
		return
	}
	handleError(c, err)
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get("request_id")
	logutil.GetLogger(c.Request.Context()).Info("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("holder", getHolderID(c)),
		zap.Error(err))
	if held, ok := appErr.AsLockHeld(err); ok {
		response.ErrorDetail(c, http.StatusConflict, errcode.ErrLockHeld, "lock_held", "row locked by another holder", map[string]interface{}{
			"locked_by":  held.Holder,
			"expires_at": held.ExpiresAt,
		})
		return
	}
	if conflict, ok := appErr.AsVersionConflict(err); ok {
		response.ErrorDetail(c, http.StatusConflict, errcode.ErrVersionConflict, "version_conflict", "stale version", map[string]interface{}{
			"current_row": conflict.Current,
		})
		return
	}
	switch {
	case err == appErr.ErrUnauthorized:
		response.Error(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "unauthorized", "unauthorized")
	case err == appErr.ErrForbidden:
		response.Error(c, http.StatusForbidden, errcode.ErrForbidden, "forbidden", "forbidden")
	case err == appErr.ErrNotFound:
		response.Error(c, http.StatusNotFound, errcode.ErrNotFound, "not_found", "not found")
	case err == appErr.ErrInvalid:
		response.Error(c, http.StatusUnprocessableEntity, errcode.ErrInvalid, "validation", "missing or inconsistent holder/version")
	case err == appErr.ErrConflict:
		response.Error(c, http.StatusConflict, errcode.ErrConflict, "conflict", "conflict")
	default:
		response.Error(c, http.StatusInternalServerError, errcode.ErrInternal, "internal", "internal error")
	}
}
