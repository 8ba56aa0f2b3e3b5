package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	portssvc "github.com/SscSPs/movement_intake/internal/core/ports/services"
	"github.com/SscSPs/movement_intake/internal/dto"
	"github.com/SscSPs/movement_intake/internal/middleware"
)

type registryHandler struct {
	registryService portssvc.RegistrySvc
}

// RegisterRegistryRoutes registers the read-only registry routes.
func RegisterRegistryRoutes(rg *gin.RouterGroup, registryService portssvc.RegistrySvc) {
	h := &registryHandler{registryService: registryService}

	registry := rg.Group("/registry")
	{
		registry.GET("", h.getRegistry)
		registry.POST("/refresh", h.refreshRegistry)
	}
}

// getRegistry godoc
// @Summary List selectable entities
// @Description Returns companies, counterparties and the other entities a draft can reference
// @Tags registry
// @Produce  json
// @Param   companyId query string false "Restrict company-scoped lists to this company"
// @Success 200 {object} dto.RegistryResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to load registry"
// @Security BearerAuth
// @Router /registry [get]
func (h *registryHandler) getRegistry(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	reg, err := h.registryService.Snapshot(c.Request.Context())
	if err != nil {
		respondServiceError(c, logger, err, "Failed to load registry")
		return
	}
	c.JSON(http.StatusOK, dto.ToRegistryResponse(reg, c.Query("companyId")))
}

// refreshRegistry godoc
// @Summary Refresh the registry cache
// @Description Drops the cached registry snapshot, e.g. after creating a supplier suggested by an extraction
// @Tags registry
// @Success 204 "No Content"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Security BearerAuth
// @Router /registry/refresh [post]
func (h *registryHandler) refreshRegistry(c *gin.Context) {
	h.registryService.Invalidate()
	middleware.GetLoggerFromCtx(c.Request.Context()).Info("Registry cache invalidated", slog.String("path", c.FullPath()))
	c.Status(http.StatusNoContent)
}
