package authorization

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Capability names checked by the billing engine. Callers must satisfy
// these regardless of how roles map to them internally.
const (
	CanGenerateInvoices     = "can_generate_invoices"
	CanViewBilling          = "can_view_billing"
	CanRecordManualPayments = "can_record_manual_payments"
	CanViewPaymentApprovals = "can_view_payment_approvals"
	CanApprovePayments      = "can_approve_payments"

	CanManageCustomers      = "can_manage_customers"
	CanManagePlans          = "can_manage_plans"
	CanManageZones          = "can_manage_zones"
	CanManageSubscriptions  = "can_manage_subscriptions"
	CanManagePaymentMethods = "can_manage_payment_methods"
	CanManageUsers          = "can_manage_users"
	CanManageRoles          = "can_manage_roles"
)

// Service is the single capability-check abstraction for the platform.
type Service interface {
	Authorize(ctx context.Context, userID snowflake.ID, capability string) error
}
