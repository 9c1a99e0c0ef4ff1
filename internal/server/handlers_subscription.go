package server

import (
	"net/http"
	"time"

	"github.com/broadbill/broadbill/internal/subscription"
	"github.com/gin-gonic/gin"
)

type subscriptionCreateRequest struct {
	CustomerID string `json:"customer_id" binding:"required"`
	PlanID     string `json:"plan_id" binding:"required"`
	StartDate  string `json:"start_date" binding:"required"`
	Status     string `json:"status"`
}

type subscriptionUpdateRequest struct {
	PlanID    *string `json:"plan_id"`
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
	Status    *string `json:"status"`
}

// createSubscription godoc
// @Summary      Enroll a customer in a plan
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Success      201 {object} subscription.Subscription
// @Router       /api/subscriptions [post]
func (s *Server) createSubscription(c *gin.Context) {
	var req subscriptionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequestError(c, "customer_id, plan_id and start_date are required")
		return
	}
	customerID, ok := optionalID(c, &req.CustomerID, "customer_id")
	if !ok {
		return
	}
	planID, ok := optionalID(c, &req.PlanID, "plan_id")
	if !ok {
		return
	}
	if customerID == nil || planID == nil {
		invalidRequestError(c, "customer_id and plan_id are required")
		return
	}
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		invalidRequestError(c, "start_date must be YYYY-MM-DD")
		return
	}
	actorID, ok := authenticatedUserID(c)
	if !ok {
		invalidRequestError(c, "missing actor")
		return
	}

	created, err := s.subscriptions.Create(c.Request.Context(), subscription.CreateSubscriptionRequest{
		CustomerID:  *customerID,
		PlanID:      *planID,
		StartDate:   startDate,
		Status:      subscription.Status(req.Status),
		ActivatedBy: actorID,
	})
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

func (s *Server) listSubscriptionsByCustomer(c *gin.Context) {
	customerID, ok := parseIDParam(c, "customerId")
	if !ok {
		return
	}
	rows, err := s.subscriptions.ListByCustomer(c.Request.Context(), customerID)
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (s *Server) getSubscription(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	found, err := s.subscriptions.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": found})
}

func (s *Server) updateSubscription(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req subscriptionUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequestError(c, "malformed request body")
		return
	}

	update := subscription.UpdateSubscriptionRequest{}
	if req.PlanID != nil {
		planID, ok := optionalID(c, req.PlanID, "plan_id")
		if !ok {
			return
		}
		update.PlanID = planID
	}
	if req.StartDate != nil {
		parsed, err := time.Parse("2006-01-02", *req.StartDate)
		if err != nil {
			invalidRequestError(c, "start_date must be YYYY-MM-DD")
			return
		}
		update.StartDate = &parsed
	}
	if req.EndDate != nil {
		parsed, err := time.Parse("2006-01-02", *req.EndDate)
		if err != nil {
			invalidRequestError(c, "end_date must be YYYY-MM-DD")
			return
		}
		update.EndDate = &parsed
	}
	if req.Status != nil {
		status := subscription.Status(*req.Status)
		update.Status = &status
	}

	if err := s.subscriptions.Update(c.Request.Context(), id, update); err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"updated": true}})
}

// deleteSubscription refuses to remove a subscription with billing
// history.
func (s *Server) deleteSubscription(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := s.subscriptions.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}
