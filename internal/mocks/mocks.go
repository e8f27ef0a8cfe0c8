// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	return m.Called().Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Project() config.ProjectConfig {
	return m.Called().Get(0).(config.ProjectConfig)
}

func (m *MockConfig) Target() config.TargetConfig {
	return m.Called().Get(0).(config.TargetConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	return m.Called().Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Auth() config.AuthConfig {
	return m.Called().Get(0).(config.AuthConfig)
}

func (m *MockConfig) Dialogs() config.DialogsConfig {
	return m.Called().Get(0).(config.DialogsConfig)
}

func (m *MockConfig) Generator() config.GeneratorConfig {
	return m.Called().Get(0).(config.GeneratorConfig)
}

func (m *MockConfig) Runner() config.RunnerConfig {
	return m.Called().Get(0).(config.RunnerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	return m.Called().Get(0).(config.DatabaseConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserHeadless(b bool) {
	m.Called(b)
}

func (m *MockConfig) SetAuthConfig(a config.AuthConfig) {
	m.Called(a)
}

// -- Code Generator Mock --

// MockCodeGenerator mocks the schemas.CodeGenerator interface.
type MockCodeGenerator struct {
	mock.Mock
}

var _ schemas.CodeGenerator = (*MockCodeGenerator)(nil)

// GenerateTest provides a mock function for generation calls.
func (m *MockCodeGenerator) GenerateTest(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// -- Run Ledger Mock --

// MockRunLedger mocks the schemas.RunLedger interface.
type MockRunLedger struct {
	mock.Mock
}

var _ schemas.RunLedger = (*MockRunLedger)(nil)

func (m *MockRunLedger) RecordRun(ctx context.Context, run schemas.RunRecord) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockRunLedger) RecentRuns(ctx context.Context, limit int) ([]schemas.RunRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.RunRecord), args.Error(1)
}
