package domain

import "context"

// Service records immutable audit log rows.
type Service interface {
	AuditLog(ctx context.Context, action string, targetType string, targetID *string, metadata map[string]any) error
}
