package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nft-gate/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticMembers []string

func (m staticMembers) RoleMembers(context.Context) ([]string, error) { return m, nil }

type stubRefresher struct {
	mu      sync.Mutex
	results map[string]*RefreshResult
	errs    map[string]error
	calls   int
}

func (s *stubRefresher) RefreshHoldings(_ context.Context, userID string) (*RefreshResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.errs[userID]; err != nil {
		return nil, err
	}
	return s.results[userID], nil
}

func auditFixture() (staticMembers, *stubRefresher) {
	members := staticMembers{"holder", "seller", "flaky", "nowallet", "broken"}
	ref := &stubRefresher{
		results: map[string]*RefreshResult{
			"holder": {HasAnyNFT: true},
			"seller": {},
			"flaky":  {ChecksFailed: true},
		},
		errs: map[string]error{
			"nowallet": models.ErrNoVerifiedWallets,
			"broken":   errors.New("store down"),
		},
	}
	return members, ref
}

func TestRoleAuditLogOnly(t *testing.T) {
	members, ref := auditFixture()
	sink := &mockRoleSink{}
	roles := NewRoleService(sink, nil, nil, zap.NewNop())
	a := NewRoleAuditor(members, ref, roles, nil, AuditConfig{Concurrency: 2}, zap.NewNop())

	report, err := a.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.Members)
	assert.Equal(t, 1, report.Confirmed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Errors)
	require.Len(t, report.Findings, 2)
	for _, f := range report.Findings {
		assert.False(t, f.Revoked)
	}
	assert.Equal(t, 5, ref.calls)
	sink.AssertNotCalled(t, "RevokeRole", "seller")
}

func TestRoleAuditRevokes(t *testing.T) {
	members, ref := auditFixture()
	sink := &mockRoleSink{}
	sink.On("RevokeRole", "seller").Return(nil)
	sink.On("RevokeRole", "nowallet").Return(nil)
	roles := NewRoleService(sink, nil, nil, zap.NewNop())
	a := NewRoleAuditor(members, ref, roles, nil, AuditConfig{Revoke: true}, zap.NewNop())

	report, err := a.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Findings, 2)
	for _, f := range report.Findings {
		assert.True(t, f.Revoked, f.UserID)
	}
	sink.AssertExpectations(t)
	sink.AssertNotCalled(t, "RevokeRole", "flaky")
}

func TestRoleAuditEmpty(t *testing.T) {
	a := NewRoleAuditor(staticMembers{}, &stubRefresher{}, nil, nil, AuditConfig{}, zap.NewNop())
	report, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Members)
}
