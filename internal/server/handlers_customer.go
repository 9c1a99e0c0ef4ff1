package server

import (
	"net/http"

	"github.com/broadbill/broadbill/internal/customer"
	"github.com/broadbill/broadbill/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type customerCreateRequest struct {
	FullName    string  `json:"full_name" binding:"required"`
	Email       string  `json:"email"`
	PhoneNumber string  `json:"phone_number" binding:"required"`
	Address     string  `json:"address" binding:"required"`
	ZoneID      *string `json:"zone_id"`
}

type customerUpdateRequest struct {
	FullName    *string `json:"full_name"`
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phone_number"`
	Address     *string `json:"address"`
	ZoneID      *string `json:"zone_id"`
}

// createCustomer godoc
// @Summary      Register a subscriber account
// @Tags         customers
// @Accept       json
// @Produce      json
// @Success      201 {object} customer.Customer
// @Router       /api/customers [post]
func (s *Server) createCustomer(c *gin.Context) {
	var req customerCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequestError(c, "full_name, phone_number and address are required")
		return
	}
	zoneID, ok := optionalID(c, req.ZoneID, "zone_id")
	if !ok {
		return
	}

	created, err := s.customers.Create(c.Request.Context(), customer.CreateCustomerRequest{
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
		ZoneID:      zoneID,
	})
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

// listCustomers godoc
// @Summary      List subscriber accounts
// @Tags         customers
// @Produce      json
// @Param        page_token query string false "opaque cursor from a previous page"
// @Param        page_size  query int    false "rows per page, capped at 200"
// @Router       /api/customers [get]
func (s *Server) listCustomers(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		invalidRequestError(c, "malformed pagination parameters")
		return
	}
	customers, info, err := s.customers.List(c.Request.Context(), page)
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": customers, "page_info": info})
}

func (s *Server) getCustomer(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	found, err := s.customers.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": found})
}

func (s *Server) updateCustomer(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req customerUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequestError(c, "malformed request body")
		return
	}
	zoneID, ok := optionalID(c, req.ZoneID, "zone_id")
	if !ok {
		return
	}

	err := s.customers.Update(c.Request.Context(), id, customer.UpdateCustomerRequest{
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
		ZoneID:      zoneID,
	})
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"updated": true}})
}

func (s *Server) deleteCustomer(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := s.customers.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

// optionalID parses an optional string-encoded snowflake from a JSON
// body, answering 400 itself on malformed input.
func optionalID(c *gin.Context, raw *string, field string) (*snowflake.ID, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	id, err := snowflake.ParseString(*raw)
	if err != nil {
		invalidIDError(c, field)
		return nil, false
	}
	return &id, true
}
