package testing

import (
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/mock"
)

// MockLogger records the formatted logging calls. Methods it does not
// override go to the embedded logger.
type MockLogger struct {
	mock.Mock
	log.Logger
}

// NewMockLogger ...
func NewMockLogger() *MockLogger {
	return &MockLogger{Logger: log.NewLogger()}
}

// Infof ...
func (m *MockLogger) Infof(format string, v ...interface{}) {
	m.Called(format, v)
}

// Warnf ...
func (m *MockLogger) Warnf(format string, v ...interface{}) {
	m.Called(format, v)
}

// Printf ...
func (m *MockLogger) Printf(format string, v ...interface{}) {
	m.Called(format, v)
}

// Donef ...
func (m *MockLogger) Donef(format string, v ...interface{}) {
	m.Called(format, v)
}

// Debugf ...
func (m *MockLogger) Debugf(format string, v ...interface{}) {
	m.Called(format, v)
}

// Errorf ...
func (m *MockLogger) Errorf(format string, v ...interface{}) {
	m.Called(format, v)
}
