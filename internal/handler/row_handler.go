package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tablekeep/tablekeep/internal/model"
	"github.com/tablekeep/tablekeep/internal/pkg/errcode"
	appErr "github.com/tablekeep/tablekeep/internal/pkg/errors"
	"github.com/tablekeep/tablekeep/internal/pkg/response"
	"github.com/tablekeep/tablekeep/internal/service"
)

type RowHandler struct {
	rows *service.RowService
}

func NewRowHandler(rows *service.RowService) *RowHandler {
	return &RowHandler{rows: rows}
}

type rowUpdateRequest struct {
	Fields          model.FieldMap     `json:"fields"`
	ReviewFlags     *model.ReviewFlags `json:"review_flags"`
	ExpectedVersion int64              `json:"expected_version"`
	Holder          string             `json:"holder"`
}

func (h *RowHandler) Update(c *gin.Context) {
	var req rowUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid", "invalid request")
		return
	}
	holder := resolveHolder(c, req.Holder)
	if holder == "" || req.ReviewFlags == nil {
		handleError(c, appErr.ErrInvalid)
		return
	}
	row, err := h.rows.Update(c.Request.Context(), c.Param("row_id"), service.RowUpdateInput{
		Fields:          req.Fields,
		ReviewFlags:     *req.ReviewFlags,
		ExpectedVersion: req.ExpectedVersion,
		Holder:          holder,
	})
	if err != nil {
		handleRowMutationError(c, err)
		return
	}
	response.Success(c, gin.H{"version": row.Version})
}

func (h *RowHandler) Get(c *gin.Context) {
	row, err := h.rows.Get(c.Request.Context(), c.Param("row_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, row)
}

func (h *RowHandler) List(c *gin.Context) {
	pageID := c.Query("page_id")
	if pageID == "" {
		handleError(c, appErr.ErrInvalid)
		return
	}
	rows, err := h.rows.Snapshot(c.Request.Context(), pageID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"rows": rows})
}

type rowCreateRequest struct {
	ID         string         `json:"id"`
	PageID     string         `json:"page_id"`
	OrderIndex *int           `json:"order_index"`
	Fields     model.FieldMap `json:"fields"`
}

func (h *RowHandler) Create(c *gin.Context) {
	var req rowCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid", "invalid request")
		return
	}
	row, err := h.rows.Create(c.Request.Context(), service.RowCreateInput{
		ID:         req.ID,
		PageID:     req.PageID,
		OrderIndex: req.OrderIndex,
		Fields:     req.Fields,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": row})
}

func (h *RowHandler) Delete(c *gin.Context) {
	if err := h.rows.Delete(c.Request.Context(), c.Param("row_id"), getHolderID(c)); err != nil {
		handleRowMutationError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *RowHandler) ListPages(c *gin.Context) {
	documentID := c.Query("document_id")
	if documentID == "" {
		handleError(c, appErr.ErrInvalid)
		return
	}
	pages, err := h.rows.ListPages(c.Request.Context(), documentID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"pages": pages})
}
