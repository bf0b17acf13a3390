package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/fwa-watersheds-go/internal/models"
	"github.com/jengzang/fwa-watersheds-go/internal/repository"
	"github.com/jengzang/fwa-watersheds-go/internal/service"
	"github.com/jengzang/fwa-watersheds-go/pkg/response"
)

// WatershedHandler handles HTTP requests for runs and watersheds
type WatershedHandler struct {
	service *service.WatershedService
}

// NewWatershedHandler creates a new watershed handler
func NewWatershedHandler(service *service.WatershedService) *WatershedHandler {
	return &WatershedHandler{service: service}
}

// CreateRunRequest represents the request body for submitting points
type CreateRunRequest struct {
	Points []models.InputPoint `json:"points" binding:"required"`
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		response.BadRequest(c, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrConflict):
		response.Error(c, http.StatusConflict, err.Error())
	default:
		response.InternalError(c, err.Error())
	}
}

// CreateRun submits points for delineation
// POST /api/v1/runs
func (h *WatershedHandler) CreateRun(c *gin.Context) {
	var req CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	run, err := h.service.SubmitRun(c.Request.Context(), req.Points)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Accepted(c, run)
}

// GetRun retrieves a run with its per-point outcomes
// GET /api/v1/runs/:id
func (h *WatershedHandler) GetRun(c *gin.Context) {
	run, err := h.service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, run)
}

// CancelRun stops a run in progress
// POST /api/v1/runs/:id/cancel
func (h *WatershedHandler) CancelRun(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.CancelRun(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	response.Accepted(c, gin.H{"id": id, "cancelled": true})
}

// GetWatershed returns a point's watershed as a GeoJSON FeatureCollection
// GET /api/v1/watersheds/:point_id?dissolve=true
func (h *WatershedHandler) GetWatershed(c *gin.Context) {
	dissolve, err := strconv.ParseBool(c.DefaultQuery("dissolve", "false"))
	if err != nil {
		response.BadRequest(c, "Invalid dissolve flag")
		return
	}

	fc, err := h.service.Watershed(c.Request.Context(), c.Param("point_id"), dissolve)
	if err != nil {
		writeError(c, err)
		return
	}

	// plain GeoJSON so the body loads straight into GIS tools
	c.JSON(http.StatusOK, fc)
}

// IsUpstream evaluates the code predicate
// GET /api/v1/codes/upstream?point_ws=&point_local=&ws=&local=
func (h *WatershedHandler) IsUpstream(c *gin.Context) {
	local := c.Query("local")
	if local == "" {
		local = c.Query("ws")
	}
	up, err := h.service.IsUpstream(c.Query("point_ws"), c.Query("point_local"), c.Query("ws"), local)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"upstream": up})
}

// LocalCode looks up the local code at a measure along a blue line
// GET /api/v1/codes/local?blue_line_key=&measure=
func (h *WatershedHandler) LocalCode(c *gin.Context) {
	blk, err := strconv.ParseInt(c.Query("blue_line_key"), 10, 64)
	if err != nil {
		response.BadRequest(c, "blue_line_key must be an integer")
		return
	}
	measure, err := strconv.ParseFloat(c.Query("measure"), 64)
	if err != nil {
		response.BadRequest(c, "measure must be a number")
		return
	}

	local, err := h.service.LocalCode(c.Request.Context(), blk, measure)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"blue_line_key": blk, "measure": measure, "localcode": local})
}
