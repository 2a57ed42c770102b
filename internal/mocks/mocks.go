package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// -- LLM Client Mock --

// MockLLMClient mocks schemas.LLMClient.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Store Mocks --

// MockJobStore mocks schemas.JobStore.
type MockJobStore struct {
	mock.Mock
}

func (m *MockJobStore) ClaimNext(ctx context.Context, filter schemas.ClaimFilter) (*schemas.Target, error) {
	args := m.Called(ctx, filter)
	if job, ok := args.Get(0).(*schemas.Target); ok {
		return job, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJobStore) MarkQueued(ctx context.Context, ownerID, batchName string) (*schemas.Target, error) {
	args := m.Called(ctx, ownerID, batchName)
	if job, ok := args.Get(0).(*schemas.Target); ok {
		return job, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJobStore) Finalize(ctx context.Context, jobID string, outcome schemas.Outcome) error {
	args := m.Called(ctx, jobID, outcome)
	return args.Error(0)
}

func (m *MockJobStore) BatchSummary(ctx context.Context, ownerID, batchName string) (schemas.BatchSummary, error) {
	args := m.Called(ctx, ownerID, batchName)
	return args.Get(0).(schemas.BatchSummary), args.Error(1)
}

// MockProfileStore mocks schemas.ProfileStore.
type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) GetProfile(ctx context.Context, ownerID, profileID string) (*schemas.SenderProfile, error) {
	args := m.Called(ctx, ownerID, profileID)
	if p, ok := args.Get(0).(*schemas.SenderProfile); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

// -- Resolver Mock --

// MockSelectorResolver mocks schemas.SelectorResolver.
type MockSelectorResolver struct {
	mock.Mock
}

func (m *MockSelectorResolver) Resolve(ctx context.Context, html string) (schemas.FieldSelectorMap, error) {
	args := m.Called(ctx, html)
	return args.Get(0).(schemas.FieldSelectorMap), args.Error(1)
}

// -- Browser Mocks --

// MockSession mocks schemas.Session, and with it schemas.Page.
type MockSession struct {
	mock.Mock
}

func (m *MockSession) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSession) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSession) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockSession) HTML(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSession) Exists(ctx context.Context, selector string) (bool, error) {
	args := m.Called(ctx, selector)
	return args.Bool(0), args.Error(1)
}

func (m *MockSession) Fill(ctx context.Context, selector, value string) error {
	args := m.Called(ctx, selector, value)
	return args.Error(0)
}

func (m *MockSession) Check(ctx context.Context, selector string) error {
	args := m.Called(ctx, selector)
	return args.Error(0)
}

func (m *MockSession) Click(ctx context.Context, selector string) error {
	args := m.Called(ctx, selector)
	return args.Error(0)
}

func (m *MockSession) SelectOption(ctx context.Context, selector, value string) error {
	args := m.Called(ctx, selector, value)
	return args.Error(0)
}

func (m *MockSession) ElementKind(ctx context.Context, selector string) (schemas.ElementKind, error) {
	args := m.Called(ctx, selector)
	return args.Get(0).(schemas.ElementKind), args.Error(1)
}

func (m *MockSession) FindButtonByLabel(ctx context.Context, pattern, exclude string) (string, bool, error) {
	args := m.Called(ctx, pattern, exclude)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockSession) WaitDOMReady(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSession) WaitNetworkIdle(ctx context.Context, quiet time.Duration) error {
	args := m.Called(ctx, quiet)
	return args.Error(0)
}

func (m *MockSession) Sleep(ctx context.Context, d time.Duration) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

// MockSessionFactory mocks schemas.SessionFactory.
type MockSessionFactory struct {
	mock.Mock
}

func (m *MockSessionFactory) Open(ctx context.Context) (schemas.Session, error) {
	args := m.Called(ctx)
	if s, ok := args.Get(0).(schemas.Session); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

// -- Notifier Mock --

// MockNotifier mocks schemas.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) BatchCompleted(ctx context.Context, report schemas.BatchReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}
