package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// generateInvoices godoc
// @Summary      Run a renewal invoice pass now
// @Tags         billing
// @Produce      json
// @Success      200 {object} billing.RenewalResult
// @Router       /api/billing/generate-invoices [post]
func (s *Server) generateInvoices(c *gin.Context) {
	result, err := s.engine.GenerateRenewalInvoices(c.Request.Context())
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// listInvoicesByCustomer godoc
// @Summary      List a customer's invoices, newest due date first
// @Tags         billing
// @Produce      json
// @Success      200 {array} billing.InvoiceWithPlan
// @Router       /api/billing/invoices/customer/{customerId} [get]
func (s *Server) listInvoicesByCustomer(c *gin.Context) {
	customerID, ok := parseIDParam(c, "customerId")
	if !ok {
		return
	}
	rows, err := s.invoices.ListByCustomer(c.Request.Context(), customerID)
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (s *Server) billingOverview(c *gin.Context) {
	overview, err := s.reports.Overview(c.Request.Context())
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": overview})
}

func (s *Server) outstandingByZone(c *gin.Context) {
	rows, err := s.reports.OutstandingByZone(c.Request.Context())
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}
