package server

import (
	"net/http"
	"time"

	"github.com/broadbill/broadbill/internal/payment"
	"github.com/gin-gonic/gin"
)

type manualPaymentRequest struct {
	InvoiceID       string  `json:"invoice_id" binding:"required"`
	Amount          int64   `json:"amount" binding:"required"`
	PaymentMethodID string  `json:"payment_method_id" binding:"required"`
	ReferenceNumber string  `json:"reference_number"`
	TransactionDate *string `json:"transaction_date"`
	Note            string  `json:"note"`
}

type reviewRequest struct {
	Note string `json:"note"`
}

type createOrderRequest struct {
	InvoiceID string `json:"invoice_id" binding:"required"`
}

type verifyPaymentRequest struct {
	InvoiceID string `json:"invoice_id" binding:"required"`
	OrderID   string `json:"razorpay_order_id" binding:"required"`
	PaymentID string `json:"razorpay_payment_id" binding:"required"`
	Signature string `json:"razorpay_signature" binding:"required"`
}

// recordManualPayment godoc
// @Summary      Record an offline payment against an invoice
// @Tags         payments
// @Accept       json
// @Produce      json
// @Success      201 {object} payment.Transaction
// @Failure      400 {object} apiError
// @Failure      409 {object} apiError
// @Router       /api/payments/manual [post]
func (s *Server) recordManualPayment(c *gin.Context) {
	var req manualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequestError(c, "invoice_id, amount and payment_method_id are required")
		return
	}
	invoiceID, ok := optionalID(c, &req.InvoiceID, "invoice_id")
	if !ok {
		return
	}
	methodID, ok := optionalID(c, &req.PaymentMethodID, "payment_method_id")
	if !ok {
		return
	}
	if invoiceID == nil || methodID == nil {
		invalidRequestError(c, "invoice_id and payment_method_id are required")
		return
	}

	var txDate *time.Time
	if req.TransactionDate != nil && *req.TransactionDate != "" {
		parsed, err := time.Parse("2006-01-02", *req.TransactionDate)
		if err != nil {
			invalidRequestError(c, "transaction_date must be YYYY-MM-DD")
			return
		}
		txDate = &parsed
	}

	recorded, err := s.payments.RecordManualPayment(c.Request.Context(), payment.RecordManualPaymentRequest{
		InvoiceID:       *invoiceID,
		Amount:          req.Amount,
		PaymentMethodID: *methodID,
		ReferenceNumber: req.ReferenceNumber,
		TransactionDate: txDate,
		Note:            req.Note,
	})
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": recorded})
}

// pendingManualPayments godoc
// @Summary      List payments awaiting approval, newest first
// @Tags         payments
// @Produce      json
// @Success      200 {array} payment.PendingApproval
// @Router       /api/payments/manual/pending [get]
func (s *Server) pendingManualPayments(c *gin.Context) {
	rows, err := s.payments.GetPendingManualPayments(c.Request.Context())
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

// approveManualPayment godoc
// @Summary      Approve a pending payment and settle its invoice
// @Tags         payments
// @Accept       json
// @Produce      json
// @Success      200 {object} gin.H
// @Failure      409 {object} apiError
// @Router       /api/payments/manual/{transactionId}/approve [put]
func (s *Server) approveManualPayment(c *gin.Context) {
	transactionID, ok := parseIDParam(c, "transactionId")
	if !ok {
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		invalidRequestError(c, "malformed request body")
		return
	}
	if err := s.payments.ApproveManualPayment(c.Request.Context(), transactionID, req.Note); err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"approved": true}})
}

// rejectManualPayment closes a pending payment without touching the
// invoice balance.
func (s *Server) rejectManualPayment(c *gin.Context) {
	transactionID, ok := parseIDParam(c, "transactionId")
	if !ok {
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		invalidRequestError(c, "malformed request body")
		return
	}
	if err := s.payments.RejectManualPayment(c.Request.Context(), transactionID, req.Note); err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"rejected": true}})
}

// createOrder godoc
// @Summary      Open a gateway order for an invoice's balance
// @Tags         payments
// @Accept       json
// @Produce      json
// @Success      200 {object} gateway.Order
// @Router       /api/payments/create-order [post]
func (s *Server) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequestError(c, "invoice_id is required")
		return
	}
	invoiceID, ok := optionalID(c, &req.InvoiceID, "invoice_id")
	if !ok {
		return
	}
	if invoiceID == nil {
		invalidRequestError(c, "invoice_id is required")
		return
	}
	order, err := s.payments.CreateOrder(c.Request.Context(), *invoiceID)
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

// verifyPayment godoc
// @Summary      Verify a checkout signature and settle the invoice
// @Tags         payments
// @Accept       json
// @Produce      json
// @Success      200 {object} payment.Transaction
// @Failure      400 {object} apiError "Transaction not legit!"
// @Router       /api/payments/verify [post]
func (s *Server) verifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequestError(c, "order, payment and signature fields are required")
		return
	}
	invoiceID, ok := optionalID(c, &req.InvoiceID, "invoice_id")
	if !ok {
		return
	}
	if invoiceID == nil {
		invalidRequestError(c, "invoice_id is required")
		return
	}

	settled, err := s.payments.VerifyPayment(c.Request.Context(), payment.VerifyPaymentRequest{
		InvoiceID: *invoiceID,
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		AbortWithError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": settled})
}
