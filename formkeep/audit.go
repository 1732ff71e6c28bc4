package formkeep

import (
	"context"

	"github.com/hazyhaar/formkeep/audit"
	"github.com/hazyhaar/formkeep/kit"
)

// AuditEntry and AuditFilter are re-exported for API consumers.
type (
	AuditEntry  = audit.Entry
	AuditFilter = audit.Filter
)

// Audit returns recorded save, restore and reset calls, newest first. It
// returns an empty list when no database is open.
func (k *Keeper) Audit(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	if k.audit == nil {
		return []AuditEntry{}, nil
	}
	return k.audit.Query(ctx, f)
}

// auditing records calls of the wrapped endpoint under op once the audit
// log is open.
func (k *Keeper) auditing(op string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			if k.audit == nil {
				return next(ctx, req)
			}
			return k.audit.Middleware(op)(next)(ctx, req)
		}
	}
}

// audited runs fn as an audited operation.
func (k *Keeper) audited(ctx context.Context, op string, req any, fn func() error) error {
	_, err := k.auditing(op)(func(context.Context, any) (any, error) {
		return nil, fn()
	})(ctx, req)
	return err
}
