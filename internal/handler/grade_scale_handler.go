package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/university-records-api/internal/service"
	appErrors "github.com/noah-isme/university-records-api/pkg/errors"
	"github.com/noah-isme/university-records-api/pkg/response"
)

// GradeScaleHandler exposes grading scale endpoints.
type GradeScaleHandler struct {
	scales *service.GradeScaleService
}

// NewGradeScaleHandler constructs GradeScaleHandler.
func NewGradeScaleHandler(scales *service.GradeScaleService) *GradeScaleHandler {
	return &GradeScaleHandler{scales: scales}
}

// List godoc
// @Summary List grading scales including built-in defaults
// @Tags GradeScales
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /grade-scales [get]
func (h *GradeScaleHandler) List(c *gin.Context) {
	scales, err := h.scales.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scales, nil)
}

// Get godoc
// @Summary Get a grading scale
// @Tags GradeScales
// @Produce json
// @Param id path string true "Scale ID"
// @Success 200 {object} response.Envelope
// @Router /grade-scales/{id} [get]
func (h *GradeScaleHandler) Get(c *gin.Context) {
	scale, err := h.scales.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scale, nil)
}

// Create godoc
// @Summary Create a custom grading scale
// @Tags GradeScales
// @Accept json
// @Produce json
// @Param payload body service.CreateGradeScaleRequest true "Scale payload"
// @Success 201 {object} response.Envelope
// @Router /grade-scales [post]
func (h *GradeScaleHandler) Create(c *gin.Context) {
	var req service.CreateGradeScaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	createdBy := ""
	if claims := claimsFromContext(c); claims != nil {
		createdBy = claims.UserID
	}

	scale, err := h.scales.Create(c.Request.Context(), req, createdBy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, scale)
}
