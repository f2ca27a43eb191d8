package override

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openshelf/authz/internal/catalog"
	"github.com/openshelf/authz/internal/shared"
)

// RepositoryPort defines the persistence methods the lifecycle needs.
type RepositoryPort interface {
	ListOverrides(ctx context.Context, principalID int64) ([]Override, error)
	GetOverride(ctx context.Context, principalID int64, code string) (*Override, error)
	InsertOverride(ctx context.Context, o Override) error
	DeleteOverride(ctx context.Context, principalID int64, code string) (bool, error)
}

// ResolutionInvalidator drops cached effective-permission sets for a
// principal after a mutation.
type ResolutionInvalidator interface {
	Invalidate(ctx context.Context, principalID int64) error
}

// CreateInput carries a validated-at-the-boundary create request.
type CreateInput struct {
	PrincipalID    int64
	PermissionCode string
	Type           Type
	Reason         string
	Actor          string
	ExpiresAt      *time.Time
}

// Service is the only write path for overrides. It enforces the domain
// invariants before delegating to the store and emits the audit event
// for every successful mutation, so the audit trail cannot be bypassed
// by writing to the store directly.
type Service struct {
	repo        RepositoryPort
	catalog     *catalog.Catalog
	audit       shared.AuditRecorder
	invalidator ResolutionInvalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, cat *catalog.Catalog, audit shared.AuditRecorder, invalidator ResolutionInvalidator, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		catalog:     cat,
		audit:       audit,
		invalidator: invalidator,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// List returns every override for a principal, including expired ones,
// for display and audit.
func (s *Service) List(ctx context.Context, principalID int64) ([]Override, error) {
	return s.repo.ListOverrides(ctx, principalID)
}

// Create validates and persists a new override. Validation order:
// catalog membership, expiry strictly in the future, then uniqueness
// via the atomic insert. A failed create leaves any existing override
// untouched.
func (s *Service) Create(ctx context.Context, in CreateInput) (Override, error) {
	if !s.catalog.IsValidCode(in.PermissionCode) {
		return Override{}, &UnknownPermissionError{Code: in.PermissionCode}
	}

	now := s.now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return Override{}, &InvalidExpiryError{
			Value:  in.ExpiresAt.Format(time.RFC3339),
			Reason: "must be strictly in the future",
		}
	}

	o := Override{
		ID:             uuid.New(),
		PrincipalID:    in.PrincipalID,
		PermissionCode: in.PermissionCode,
		Type:           in.Type,
		Reason:         in.Reason,
		CreatedBy:      in.Actor,
		CreatedAt:      now,
		ExpiresAt:      in.ExpiresAt,
	}
	if err := s.repo.InsertOverride(ctx, o); err != nil {
		return Override{}, err
	}

	operation := shared.AuditGrantCreated
	if o.Type == TypeDeny {
		operation = shared.AuditDenyCreated
	}
	s.report(ctx, shared.AuditEvent{
		Actor:          in.Actor,
		PrincipalID:    o.PrincipalID,
		PermissionCode: o.PermissionCode,
		Operation:      operation,
		Reason:         o.Reason,
		At:             now,
	})
	s.invalidate(ctx, o.PrincipalID)

	return o, nil
}

// Delete removes the override for the pair. Idempotent: deleting an
// absent override succeeds with no state change and no audit event.
// Deletion immediately reverts the principal to role-baseline behavior
// for that permission code.
func (s *Service) Delete(ctx context.Context, principalID int64, code, actor string) error {
	deleted, err := s.repo.DeleteOverride(ctx, principalID, code)
	if err != nil {
		return err
	}
	if !deleted {
		return nil
	}

	s.report(ctx, shared.AuditEvent{
		Actor:          actor,
		PrincipalID:    principalID,
		PermissionCode: code,
		Operation:      shared.AuditOverrideDeleted,
		At:             s.now(),
	})
	s.invalidate(ctx, principalID)

	return nil
}

// report delivers the audit event fire-and-forget: a sink failure is
// logged and never fails the mutation.
func (s *Service) report(ctx context.Context, event shared.AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, event); err != nil && s.logger != nil {
		s.logger.Error("record audit event",
			slog.String("operation", event.Operation),
			slog.Int64("principal_id", event.PrincipalID),
			slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context, principalID int64) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, principalID); err != nil && s.logger != nil {
		s.logger.Warn("invalidate resolution cache",
			slog.Int64("principal_id", principalID),
			slog.Any("error", err))
	}
}
