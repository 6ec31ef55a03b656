package services

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

type mockTxChecker struct{ mock.Mock }

func (m *mockTxChecker) HasSelfTransfer(ctx context.Context, address, amount string) (bool, error) {
	args := m.Called(address, amount)
	return args.Bool(0), args.Error(1)
}

type mockHoldings struct{ mock.Mock }

func (m *mockHoldings) HasCollection(ctx context.Context, address string) (bool, error) {
	args := m.Called(address)
	return args.Bool(0), args.Error(1)
}

type mockRoleSink struct{ mock.Mock }

func (m *mockRoleSink) GrantRole(ctx context.Context, userID, reason string) error {
	return m.Called(userID).Error(0)
}

func (m *mockRoleSink) RevokeRole(ctx context.Context, userID, reason string) error {
	return m.Called(userID).Error(0)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
