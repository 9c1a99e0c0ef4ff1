package server

import (
	"net/http"

	"github.com/broadbill/broadbill/internal/paymentmethod"
	"github.com/gin-gonic/gin"
)

type methodCreateRequest struct {
	Name               string `json:"name" binding:"required"`
	IsActive           *bool  `json:"is_active"`
	IsApprovalRequired *bool  `json:"is_approval_required"`
}

type methodUpdateRequest struct {
	Name               *string `json:"name"`
	IsActive           *bool   `json:"is_active"`
	IsApprovalRequired *bool   `json:"is_approval_required"`
}

func (s *Server) createPaymentMethod(c *gin.Context) {
	var req methodCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequestError(c, "name is required")
		return
	}
	created, err := s.methods.Create(c.Request.Context(), paymentmethod.CreateMethodRequest{
		Name:               req.Name,
		IsActive:           req.IsActive,
		IsApprovalRequired: req.IsApprovalRequired,
	})
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

func (s *Server) listPaymentMethods(c *gin.Context) {
	methods, err := s.methods.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": methods})
}

func (s *Server) updatePaymentMethod(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req methodUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequestError(c, "malformed request body")
		return
	}
	err := s.methods.Update(c.Request.Context(), id, paymentmethod.UpdateMethodRequest{
		Name:               req.Name,
		IsActive:           req.IsActive,
		IsApprovalRequired: req.IsApprovalRequired,
	})
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"updated": true}})
}

// deletePaymentMethod refuses to remove a method with recorded
// transactions so payment history keeps its channel.
func (s *Server) deletePaymentMethod(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := s.methods.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}
