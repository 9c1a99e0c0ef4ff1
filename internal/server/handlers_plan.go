package server

import (
	"net/http"

	"github.com/broadbill/broadbill/internal/plan"
	"github.com/gin-gonic/gin"
)

type planCreateRequest struct {
	Name         string  `json:"name" binding:"required"`
	PlanCode     *string `json:"plan_code"`
	SpeedMbps    int     `json:"speed_mbps" binding:"required"`
	DataLimitGB  *int    `json:"data_limit_gb"`
	Price        int64   `json:"price" binding:"required"`
	DurationDays int     `json:"duration_days" binding:"required"`
	IsActive     *bool   `json:"is_active"`
}

type planUpdateRequest struct {
	Name         *string `json:"name"`
	PlanCode     *string `json:"plan_code"`
	SpeedMbps    *int    `json:"speed_mbps"`
	DataLimitGB  *int    `json:"data_limit_gb"`
	Price        *int64  `json:"price"`
	DurationDays *int    `json:"duration_days"`
	IsActive     *bool   `json:"is_active"`
}

// createPlan godoc
// @Summary      Create a pricing plan
// @Tags         plans
// @Accept       json
// @Produce      json
// @Success      201 {object} plan.Plan
// @Router       /api/plans [post]
func (s *Server) createPlan(c *gin.Context) {
	var req planCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequestError(c, "name, speed_mbps, price and duration_days are required")
		return
	}
	created, err := s.plans.Create(c.Request.Context(), plan.CreatePlanRequest{
		Name:         req.Name,
		PlanCode:     req.PlanCode,
		SpeedMbps:    req.SpeedMbps,
		DataLimitGB:  req.DataLimitGB,
		Price:        req.Price,
		DurationDays: req.DurationDays,
		IsActive:     req.IsActive,
	})
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

func (s *Server) listPlans(c *gin.Context) {
	plans, err := s.plans.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": plans})
}

func (s *Server) getPlan(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	found, err := s.plans.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": found})
}

func (s *Server) updatePlan(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req planUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequestError(c, "malformed request body")
		return
	}
	err := s.plans.Update(c.Request.Context(), id, plan.UpdatePlanRequest{
		Name:         req.Name,
		PlanCode:     req.PlanCode,
		SpeedMbps:    req.SpeedMbps,
		DataLimitGB:  req.DataLimitGB,
		Price:        req.Price,
		DurationDays: req.DurationDays,
		IsActive:     req.IsActive,
	})
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"updated": true}})
}

// deletePlan refuses to remove a plan with active subscriptions.
func (s *Server) deletePlan(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := s.plans.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}
