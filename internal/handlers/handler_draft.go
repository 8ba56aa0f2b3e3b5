package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SscSPs/movement_intake/internal/core/domain"
	portssvc "github.com/SscSPs/movement_intake/internal/core/ports/services"
	"github.com/SscSPs/movement_intake/internal/core/services"
	"github.com/SscSPs/movement_intake/internal/dto"
	"github.com/SscSPs/movement_intake/internal/middleware"
)

// draftHandler handles HTTP requests related to draft sessions.
type draftHandler struct {
	draftService portssvc.DraftSvcFacade
}

func newDraftHandler(ds portssvc.DraftSvcFacade) *draftHandler {
	return &draftHandler{draftService: ds}
}

// RegisterDraftRoutes registers the draft session routes. uploadGuard runs before document
// uploads only (typically a rate limiter) and may be nil.
func RegisterDraftRoutes(rg *gin.RouterGroup, draftService portssvc.DraftSvcFacade, uploadGuard gin.HandlerFunc) {
	h := newDraftHandler(draftService)

	upload := []gin.HandlerFunc{h.ingestDocument}
	if uploadGuard != nil {
		upload = append([]gin.HandlerFunc{uploadGuard}, upload...)
	}

	drafts := rg.Group("/drafts")
	{
		drafts.POST("", h.createDraft)
		drafts.POST("/open", h.openDraft)
		drafts.GET("/:draftID", h.getDraft)
		drafts.PATCH("/:draftID", h.applyEdits)
		drafts.DELETE("/:draftID", h.discardDraft)
		drafts.POST("/:draftID/commit", h.commitDraft)
		drafts.POST("/:draftID/document", upload...)
		drafts.POST("/:draftID/document/retry", h.retryIngestion)
		drafts.GET("/:draftID/ingestion", h.getIngestionStatus)
	}
}

// createDraft godoc
// @Summary Start a new draft
// @Description Opens an empty movement draft, optionally pre-selecting a company
// @Tags drafts
// @Accept  json
// @Produce  json
// @Param   draft body dto.CreateDraftRequest false "Draft options"
// @Success 201 {object} dto.DraftResponse
// @Failure 400 {object} map[string]string "Invalid input format"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to create draft"
// @Security BearerAuth
// @Router /drafts [post]
func (h *draftHandler) createDraft(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.CreateDraftRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			logger.Warn("Failed to bind JSON for CreateDraft", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
			return
		}
	}

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	state, err := h.draftService.NewDraft(c.Request.Context(), req.CompanyID, userID)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to create draft")
		return
	}

	logger.Info("Draft created", slog.String("draft_id", state.DraftID))
	c.JSON(http.StatusCreated, dto.ToDraftResponse(state))
}

// openDraft godoc
// @Summary Edit a movement
// @Description Opens a draft pre-populated from a persisted movement
// @Tags drafts
// @Accept  json
// @Produce  json
// @Param   draft body dto.OpenDraftRequest true "Movement to edit"
// @Success 201 {object} dto.DraftResponse
// @Failure 400 {object} map[string]string "Invalid input format"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Movement not found"
// @Failure 500 {object} map[string]string "Failed to open draft"
// @Security BearerAuth
// @Router /drafts/open [post]
func (h *draftHandler) openDraft(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.OpenDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for OpenDraft", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	logger = logger.With(slog.String("movement_id", req.MovementID))
	state, err := h.draftService.OpenDraft(c.Request.Context(), req.MovementID, userID)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to open draft")
		return
	}

	logger.Info("Draft opened for movement", slog.String("draft_id", state.DraftID))
	c.JSON(http.StatusCreated, dto.ToDraftResponse(state))
}

// getDraft godoc
// @Summary Get a draft
// @Description Returns field values, provenance, ingestion status and annotations of a draft
// @Tags drafts
// @Produce  json
// @Param   draftID path string true "Draft ID"
// @Success 200 {object} dto.DraftResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Draft not found"
// @Security BearerAuth
// @Router /drafts/{draftID} [get]
func (h *draftHandler) getDraft(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("draft_id", c.Param("draftID")))

	state, err := h.draftService.GetDraft(c.Request.Context(), c.Param("draftID"))
	if err != nil {
		respondServiceError(c, logger, err, "Failed to retrieve draft")
		return
	}
	c.JSON(http.StatusOK, dto.ToDraftResponse(state))
}

// applyEdits godoc
// @Summary Edit draft fields
// @Description Applies field writes in order. Dependent fields are cleared or derived automatically. A rejected edit stops the batch.
// @Tags drafts
// @Accept  json
// @Produce  json
// @Param   draftID path string true "Draft ID"
// @Param   edits body dto.ApplyEditsRequest true "Field writes"
// @Success 200 {object} dto.DraftResponse
// @Failure 400 {object} map[string]string "Invalid input format or rejected edit"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Draft not found"
// @Security BearerAuth
// @Router /drafts/{draftID} [patch]
func (h *draftHandler) applyEdits(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("draft_id", c.Param("draftID")))

	var req dto.ApplyEditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for ApplyEdits", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	state, err := h.draftService.ApplyEdits(c.Request.Context(), c.Param("draftID"), req.ToFieldEdits())
	if err != nil {
		respondServiceError(c, logger, err, "Failed to apply edits")
		return
	}
	c.JSON(http.StatusOK, dto.ToDraftResponse(state))
}

// discardDraft godoc
// @Summary Discard a draft
// @Description Drops a draft session; results of in-flight ingestion are ignored
// @Tags drafts
// @Param   draftID path string true "Draft ID"
// @Success 204 "No Content"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Draft not found"
// @Security BearerAuth
// @Router /drafts/{draftID} [delete]
func (h *draftHandler) discardDraft(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("draft_id", c.Param("draftID")))

	if err := h.draftService.DiscardDraft(c.Request.Context(), c.Param("draftID")); err != nil {
		respondServiceError(c, logger, err, "Failed to discard draft")
		return
	}
	logger.Info("Draft discarded")
	c.Status(http.StatusNoContent)
}

// commitDraft godoc
// @Summary Commit a draft
// @Description Validates the draft and saves it as a new movement, or updates the movement it was opened from
// @Tags drafts
// @Produce  json
// @Param   draftID path string true "Draft ID"
// @Success 200 {object} dto.MovementResponse
// @Failure 400 {object} map[string]string "Draft is not valid"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Draft not found"
// @Failure 409 {object} map[string]string "Ingestion still running or movement changed"
// @Failure 500 {object} map[string]string "Failed to commit draft"
// @Security BearerAuth
// @Router /drafts/{draftID}/commit [post]
func (h *draftHandler) commitDraft(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("draft_id", c.Param("draftID")))

	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		logger.Error("User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	movement, err := h.draftService.CommitDraft(c.Request.Context(), c.Param("draftID"), userID)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to commit draft")
		return
	}

	logger.Info("Draft committed", slog.String("movement_id", movement.MovementID))
	c.JSON(http.StatusOK, dto.ToMovementResponse(movement))
}

// ingestDocument godoc
// @Summary Upload a source document
// @Description Validates the file, then uploads and analyzes it in the background. Poll the ingestion status for the result.
// @Tags drafts
// @Accept  multipart/form-data
// @Produce  json
// @Param   draftID path string true "Draft ID"
// @Param   file formData file true "Invoice, receipt or other source document"
// @Success 202 {object} dto.IngestionStatusResponse
// @Failure 400 {object} map[string]string "Missing, unsupported or oversized file"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Draft not found"
// @Failure 429 {object} map[string]string "Too many uploads"
// @Security BearerAuth
// @Router /drafts/{draftID}/document [post]
func (h *draftHandler) ingestDocument(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("draft_id", c.Param("draftID")))

	fh, err := c.FormFile("file")
	if err != nil {
		logger.Warn("Missing document in upload", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "A file is required in the 'file' form field"})
		return
	}

	doc := domain.DocumentUpload{
		FileName:  filepath.Base(fh.Filename),
		MediaType: uploadMediaType(fh.Header.Get("Content-Type"), fh.Filename),
		Size:      fh.Size,
	}
	// Oversized files are rejected by the service on their declared size, unread.
	if fh.Size <= services.MaxDocumentSize {
		f, err := fh.Open()
		if err != nil {
			logger.Error("Failed to open uploaded file", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded file"})
			return
		}
		defer f.Close()
		if doc.Content, err = io.ReadAll(f); err != nil {
			logger.Error("Failed to read uploaded file", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded file"})
			return
		}
	}

	logger.Info("Received document", slog.String("file_name", doc.FileName), slog.String("media_type", doc.MediaType), slog.Int64("size", doc.Size))
	status, err := h.draftService.IngestDocument(c.Request.Context(), c.Param("draftID"), doc)
	if err != nil {
		respondServiceError(c, logger, err, "Failed to ingest document")
		return
	}
	c.JSON(http.StatusAccepted, dto.ToIngestionStatusResponse(status))
}

// retryIngestion godoc
// @Summary Retry a failed ingestion
// @Description Re-runs analysis on the stored file, or the upload if it never reached storage
// @Tags drafts
// @Produce  json
// @Param   draftID path string true "Draft ID"
// @Success 202 {object} dto.IngestionStatusResponse
// @Failure 400 {object} map[string]string "Nothing left to retry"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Draft not found"
// @Failure 409 {object} map[string]string "Ingestion is not in error"
// @Security BearerAuth
// @Router /drafts/{draftID}/document/retry [post]
func (h *draftHandler) retryIngestion(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("draft_id", c.Param("draftID")))

	status, err := h.draftService.RetryIngestion(c.Request.Context(), c.Param("draftID"))
	if err != nil {
		respondServiceError(c, logger, err, "Failed to retry ingestion")
		return
	}
	c.JSON(http.StatusAccepted, dto.ToIngestionStatusResponse(status))
}

// getIngestionStatus godoc
// @Summary Get ingestion status
// @Description Returns the ingestion state machine position and its event log
// @Tags drafts
// @Produce  json
// @Param   draftID path string true "Draft ID"
// @Success 200 {object} dto.IngestionStatusResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Draft not found"
// @Security BearerAuth
// @Router /drafts/{draftID}/ingestion [get]
func (h *draftHandler) getIngestionStatus(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("draft_id", c.Param("draftID")))

	status, err := h.draftService.GetIngestionStatus(c.Request.Context(), c.Param("draftID"))
	if err != nil {
		respondServiceError(c, logger, err, "Failed to retrieve ingestion status")
		return
	}
	c.JSON(http.StatusOK, dto.ToIngestionStatusResponse(status))
}

// uploadMediaType trusts the part's Content-Type unless the browser sent a generic one.
func uploadMediaType(declared, fileName string) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))); byExt != "" {
		return byExt
	}
	return declared
}
