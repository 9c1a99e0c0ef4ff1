package server

import (
	"errors"
	"net/http"

	"github.com/broadbill/broadbill/internal/auth"
	"github.com/broadbill/broadbill/internal/authorization"
	"github.com/broadbill/broadbill/internal/billing"
	"github.com/broadbill/broadbill/internal/customer"
	"github.com/broadbill/broadbill/internal/payment"
	"github.com/broadbill/broadbill/internal/paymentmethod"
	"github.com/broadbill/broadbill/internal/plan"
	"github.com/broadbill/broadbill/internal/role"
	"github.com/broadbill/broadbill/internal/subscription"
	"github.com/broadbill/broadbill/internal/user"
	"github.com/broadbill/broadbill/internal/zone"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// apiError is the JSON error envelope.
type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
}

var notFoundErrors = []error{
	zone.ErrNotFound,
	customer.ErrNotFound,
	customer.ErrZoneNotFound,
	plan.ErrNotFound,
	paymentmethod.ErrNotFound,
	subscription.ErrNotFound,
	subscription.ErrPlanNotFound,
	subscription.ErrCustomerNotFound,
	user.ErrNotFound,
	user.ErrRoleNotFound,
	role.ErrNotFound,
	role.ErrPermissionNotFound,
	billing.ErrInvoiceNotFound,
	payment.ErrInvoiceNotFound,
	payment.ErrTransactionNotFound,
	payment.ErrMethodNotFound,
	// Create-order and verify want an unpaid invoice; a settled one
	// reads as "no unpaid invoice here".
	payment.ErrInvoiceAlreadyPaid,
}

var conflictErrors = []error{
	zone.ErrDuplicateName,
	plan.ErrDuplicate,
	plan.ErrPlanInUse,
	paymentmethod.ErrDuplicateName,
	paymentmethod.ErrMethodInUse,
	subscription.ErrSubscriptionInUse,
	user.ErrDuplicateName,
	role.ErrDuplicateName,
	role.ErrRoleInUse,
}

var validationErrors = []error{
	zone.ErrInvalidName,
	customer.ErrMissingName,
	customer.ErrMissingPhone,
	customer.ErrMissingAddress,
	plan.ErrInvalidName,
	plan.ErrInvalidPrice,
	plan.ErrInvalidDuration,
	plan.ErrInvalidSpeed,
	paymentmethod.ErrInvalidName,
	subscription.ErrInvalidStatus,
	subscription.ErrInvalidStartDate,
	subscription.ErrMissingActivatedBy,
	user.ErrInvalidUsername,
	user.ErrInvalidPassword,
	role.ErrInvalidName,
	payment.ErrInvalidAmount,
	payment.ErrOverpayment,
	payment.ErrMethodDisabled,
	payment.ErrInvalidState,
}

// AbortWithError translates a domain error into the matching HTTP
// response. Unrecognized errors are logged and become a 500 so
// internals never leak to the client.
func AbortWithError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, payment.ErrSignatureMismatch):
		// Response shape kept for checkout-page compatibility.
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Transaction not legit!"})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{Message: err.Error(), Code: "unauthorized"})
	case errors.Is(err, auth.ErrUserDisabled), errors.Is(err, authorization.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, apiError{Message: err.Error(), Code: "forbidden"})
	case matchesAny(err, notFoundErrors):
		c.AbortWithStatusJSON(http.StatusNotFound, apiError{Message: err.Error(), Code: "not_found"})
	case matchesAny(err, conflictErrors):
		c.AbortWithStatusJSON(http.StatusConflict, apiError{Message: err.Error(), Code: "conflict"})
	case matchesAny(err, validationErrors):
		c.AbortWithStatusJSON(http.StatusBadRequest, apiError{Message: err.Error(), Code: "validation_error"})
	case errors.Is(err, payment.ErrInternalInconsistency):
		log.Error("settlement inconsistency", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, apiError{Message: err.Error(), Code: "internal_inconsistency"})
	default:
		log.Error("unhandled request error", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, apiError{Message: "internal server error", Code: "internal"})
	}
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func invalidRequestError(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, apiError{Message: message, Code: "validation_error"})
}

func invalidIDError(c *gin.Context, field string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, apiError{
		Message: "invalid identifier",
		Code:    "validation_error",
		Field:   field,
	})
}
