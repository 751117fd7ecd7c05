package enforce

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockCommandRunner is a mock implementation of CommandRunner for testing.
// Expectations are set on the command name followed by its arguments.
type MockCommandRunner struct {
	mock.Mock
}

func (m *MockCommandRunner) Run(_ context.Context, name string, args ...string) error {
	callArgs := make([]interface{}, 0, len(args))
	for _, a := range args {
		callArgs = append(callArgs, a)
	}
	result := m.MethodCalled(name, callArgs...)
	return result.Error(0)
}

func (m *MockCommandRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	callArgs := make([]interface{}, 0, len(args))
	for _, a := range args {
		callArgs = append(callArgs, a)
	}
	result := m.MethodCalled(name, callArgs...)
	if result.Get(0) == nil {
		return nil, result.Error(1)
	}
	return result.Get(0).([]byte), result.Error(1)
}
