package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/university-records-api/internal/service"
	"github.com/noah-isme/university-records-api/pkg/response"
)

// TranscriptHandler exposes GPA and transcript endpoints.
type TranscriptHandler struct {
	gpa         *service.GpaService
	transcripts *service.TranscriptService
}

// NewTranscriptHandler constructs TranscriptHandler.
func NewTranscriptHandler(gpa *service.GpaService, transcripts *service.TranscriptService) *TranscriptHandler {
	return &TranscriptHandler{gpa: gpa, transcripts: transcripts}
}

// Gpa godoc
// @Summary Compute a student's credit-weighted GPA
// @Tags Transcripts
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/gpa [get]
func (h *TranscriptHandler) Gpa(c *gin.Context) {
	result, err := h.gpa.Compute(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Transcript godoc
// @Summary Build a student's transcript
// @Tags Transcripts
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/transcript [get]
func (h *TranscriptHandler) Transcript(c *gin.Context) {
	transcript, err := h.transcripts.Build(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transcript, nil)
}

// Export godoc
// @Summary Export a transcript as CSV or PDF behind a signed URL
// @Tags Transcripts
// @Produce json
// @Param id path string true "Student ID"
// @Param format query string false "csv or pdf" default(pdf)
// @Success 201 {object} response.Envelope
// @Router /users/{id}/transcript/export [post]
func (h *TranscriptHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", service.TranscriptFormatPDF)
	export, err := h.transcripts.Export(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, export)
}

// Download godoc
// @Summary Download an exported transcript via its signed token
// @Tags Transcripts
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /transcripts/downloads/{token} [get]
func (h *TranscriptHandler) Download(c *gin.Context) {
	file, filename, err := h.transcripts.Download(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", file, nil)
}
