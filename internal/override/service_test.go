package override

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/authz/internal/catalog"
	"github.com/openshelf/authz/internal/shared"
)

type pairKey struct {
	principalID int64
	code        string
}

type memoryRepo struct {
	overrides map[pairKey]Override
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{overrides: make(map[pairKey]Override)}
}

func (r *memoryRepo) ListOverrides(_ context.Context, principalID int64) ([]Override, error) {
	var out []Override
	for key, o := range r.overrides {
		if key.principalID == principalID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetOverride(_ context.Context, principalID int64, code string) (*Override, error) {
	o, ok := r.overrides[pairKey{principalID, code}]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *memoryRepo) InsertOverride(_ context.Context, o Override) error {
	key := pairKey{o.PrincipalID, o.PermissionCode}
	if _, exists := r.overrides[key]; exists {
		return &DuplicateOverrideError{PrincipalID: o.PrincipalID, PermissionCode: o.PermissionCode}
	}
	r.overrides[key] = o
	return nil
}

func (r *memoryRepo) PutOverride(_ context.Context, o Override) error {
	r.overrides[pairKey{o.PrincipalID, o.PermissionCode}] = o
	return nil
}

func (r *memoryRepo) DeleteOverride(_ context.Context, principalID int64, code string) (bool, error) {
	key := pairKey{principalID, code}
	if _, exists := r.overrides[key]; !exists {
		return false, nil
	}
	delete(r.overrides, key)
	return true, nil
}

type stubAudit struct {
	events []shared.AuditEvent
}

func (s *stubAudit) Record(_ context.Context, event shared.AuditEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubInvalidator struct {
	bumps []int64
}

func (s *stubInvalidator) Invalidate(_ context.Context, principalID int64) error {
	s.bumps = append(s.bumps, principalID)
	return nil
}

func newTestService(repo RepositoryPort, audit shared.AuditRecorder, invalidator ResolutionInvalidator) *Service {
	svc := NewService(repo, catalog.New(), audit, invalidator, slog.Default())
	return svc
}

func TestCreatePersistsAndAudits(t *testing.T) {
	repo := newMemoryRepo()
	audit := &stubAudit{}
	invalidator := &stubInvalidator{}
	svc := newTestService(repo, audit, invalidator)

	created, err := svc.Create(context.Background(), CreateInput{
		PrincipalID:    42,
		PermissionCode: "users.manage",
		Type:           TypeGrant,
		Reason:         "covering for admin leave",
		Actor:          "admin-7",
	})
	require.NoError(t, err)
	require.NotEqual(t, created.ID.String(), "00000000-0000-0000-0000-000000000000")
	require.Equal(t, int64(42), created.PrincipalID)
	require.Equal(t, TypeGrant, created.Type)
	require.False(t, created.CreatedAt.IsZero())
	require.Nil(t, created.ExpiresAt)

	stored, err := repo.GetOverride(context.Background(), 42, "users.manage")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, created.ID, stored.ID)

	require.Len(t, audit.events, 1)
	require.Equal(t, shared.AuditGrantCreated, audit.events[0].Operation)
	require.Equal(t, "admin-7", audit.events[0].Actor)
	require.Equal(t, "users.manage", audit.events[0].PermissionCode)

	require.Equal(t, []int64{42}, invalidator.bumps)
}

func TestCreateDenyEmitsDenyOperation(t *testing.T) {
	repo := newMemoryRepo()
	audit := &stubAudit{}
	svc := newTestService(repo, audit, &stubInvalidator{})

	_, err := svc.Create(context.Background(), CreateInput{
		PrincipalID:    42,
		PermissionCode: "fines.view",
		Type:           TypeDeny,
		Actor:          "admin-7",
	})
	require.NoError(t, err)
	require.Len(t, audit.events, 1)
	require.Equal(t, shared.AuditDenyCreated, audit.events[0].Operation)
}

func TestCreateRejectsUnknownPermission(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &stubAudit{}, &stubInvalidator{})

	_, err := svc.Create(context.Background(), CreateInput{
		PrincipalID:    42,
		PermissionCode: "spaceships.fly",
		Type:           TypeGrant,
		Actor:          "admin-7",
	})
	var unknownPerm *UnknownPermissionError
	require.ErrorAs(t, err, &unknownPerm)
	require.Equal(t, "spaceships.fly", unknownPerm.Code)
	require.Empty(t, repo.overrides)
}

func TestCreateRejectsPastExpiry(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &stubAudit{}, &stubInvalidator{})

	past := time.Now().UTC().Add(-time.Hour)
	_, err := svc.Create(context.Background(), CreateInput{
		PrincipalID:    42,
		PermissionCode: "fines.view",
		Type:           TypeDeny,
		Actor:          "admin-7",
		ExpiresAt:      &past,
	})
	var invalidExpiry *InvalidExpiryError
	require.ErrorAs(t, err, &invalidExpiry)
	require.Empty(t, repo.overrides)
}

func TestCreateRejectsExpiryEqualToNow(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &stubAudit{}, &stubInvalidator{})
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return frozen }

	_, err := svc.Create(context.Background(), CreateInput{
		PrincipalID:    42,
		PermissionCode: "fines.view",
		Type:           TypeDeny,
		Actor:          "admin-7",
		ExpiresAt:      &frozen,
	})
	var invalidExpiry *InvalidExpiryError
	require.ErrorAs(t, err, &invalidExpiry)
}

func TestCreateDuplicateLeavesExistingIntact(t *testing.T) {
	repo := newMemoryRepo()
	audit := &stubAudit{}
	invalidator := &stubInvalidator{}
	svc := newTestService(repo, audit, invalidator)

	first, err := svc.Create(context.Background(), CreateInput{
		PrincipalID:    42,
		PermissionCode: "fines.view",
		Type:           TypeDeny,
		Reason:         "pending review",
		Actor:          "admin-7",
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInput{
		PrincipalID:    42,
		PermissionCode: "fines.view",
		Type:           TypeGrant,
		Actor:          "admin-9",
	})
	var duplicate *DuplicateOverrideError
	require.ErrorAs(t, err, &duplicate)
	require.Equal(t, int64(42), duplicate.PrincipalID)
	require.Equal(t, "fines.view", duplicate.PermissionCode)

	stored, err := repo.GetOverride(context.Background(), 42, "fines.view")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, first.ID, stored.ID)
	require.Equal(t, TypeDeny, stored.Type)
	require.Equal(t, "pending review", stored.Reason)

	// Only the successful create audited or invalidated anything.
	require.Len(t, audit.events, 1)
	require.Equal(t, []int64{42}, invalidator.bumps)
}

func TestDeleteRemovesAndAudits(t *testing.T) {
	repo := newMemoryRepo()
	audit := &stubAudit{}
	invalidator := &stubInvalidator{}
	svc := newTestService(repo, audit, invalidator)

	_, err := svc.Create(context.Background(), CreateInput{
		PrincipalID:    42,
		PermissionCode: "fines.view",
		Type:           TypeDeny,
		Actor:          "admin-7",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), 42, "fines.view", "admin-7"))

	stored, err := repo.GetOverride(context.Background(), 42, "fines.view")
	require.NoError(t, err)
	require.Nil(t, stored)

	require.Len(t, audit.events, 2)
	require.Equal(t, shared.AuditOverrideDeleted, audit.events[1].Operation)
	require.Equal(t, []int64{42, 42}, invalidator.bumps)
}

func TestDeleteAbsentIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	audit := &stubAudit{}
	invalidator := &stubInvalidator{}
	svc := newTestService(repo, audit, invalidator)

	require.NoError(t, svc.Delete(context.Background(), 42, "fines.view", "admin-7"))
	require.Empty(t, audit.events)
	require.Empty(t, invalidator.bumps)
}

func TestPutOverrideReplacesExistingPair(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := Override{
		ID:             uuid.New(),
		PrincipalID:    42,
		PermissionCode: "fines.view",
		Type:           TypeDeny,
		Reason:         "pending review",
		CreatedBy:      "admin-7",
		CreatedAt:      created,
	}
	require.NoError(t, repo.InsertOverride(ctx, first))

	replacement := Override{
		ID:             uuid.New(),
		PrincipalID:    42,
		PermissionCode: "fines.view",
		Type:           TypeGrant,
		Reason:         "review closed",
		CreatedBy:      "admin-9",
		CreatedAt:      created.Add(time.Hour),
	}
	require.NoError(t, repo.PutOverride(ctx, replacement))

	stored, err := repo.GetOverride(ctx, 42, "fines.view")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, replacement.ID, stored.ID)
	require.Equal(t, TypeGrant, stored.Type)
	require.Equal(t, "review closed", stored.Reason)

	// The pair still holds exactly one row.
	all, err := repo.ListOverrides(ctx, 42)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestPutOverrideInsertsWhenAbsent(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	o := Override{
		ID:             uuid.New(),
		PrincipalID:    42,
		PermissionCode: "fines.view",
		Type:           TypeDeny,
		CreatedBy:      "admin-7",
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.PutOverride(ctx, o))

	stored, err := repo.GetOverride(ctx, 42, "fines.view")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, o.ID, stored.ID)
}

type failingAudit struct{}

func (failingAudit) Record(context.Context, shared.AuditEvent) error {
	return context.DeadlineExceeded
}

func TestAuditFailureDoesNotFailMutation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, failingAudit{}, &stubInvalidator{})

	_, err := svc.Create(context.Background(), CreateInput{
		PrincipalID:    42,
		PermissionCode: "fines.view",
		Type:           TypeDeny,
		Actor:          "admin-7",
	})
	require.NoError(t, err)

	stored, err := repo.GetOverride(context.Background(), 42, "fines.view")
	require.NoError(t, err)
	require.NotNil(t, stored)
}
