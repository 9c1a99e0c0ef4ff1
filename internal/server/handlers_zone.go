package server

import (
	"net/http"

	"github.com/broadbill/broadbill/internal/zone"
	"github.com/gin-gonic/gin"
)

type zoneRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type zoneUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// createZone godoc
// @Summary      Create a service zone
// @Tags         zones
// @Accept       json
// @Produce      json
// @Success      201 {object} zone.Zone
// @Router       /api/zones [post]
func (s *Server) createZone(c *gin.Context) {
	var req zoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequestError(c, "name is required")
		return
	}
	created, err := s.zones.Create(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

func (s *Server) listZones(c *gin.Context) {
	zones, err := s.zones.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": zones})
}

func (s *Server) getZone(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	found, err := s.zones.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": found})
}

func (s *Server) updateZone(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req zoneUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequestError(c, "malformed request body")
		return
	}
	err := s.zones.Update(c.Request.Context(), id, zone.UpdateZoneRequest{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"updated": true}})
}

func (s *Server) deleteZone(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := s.zones.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}
