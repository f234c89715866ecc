package testutils

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// ManualTimer captures the function a component would schedule with time.AfterFunc so the
// test decides when it fires.
type ManualTimer struct {
	Duration time.Duration
	fire     func()
}

// AfterFunc has the time.AfterFunc signature. The returned timer never fires on its own.
func (m *ManualTimer) AfterFunc(d time.Duration, f func()) *time.Timer {
	m.Duration = d
	m.fire = f
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

// Fire runs the captured function, if any.
func (m *ManualTimer) Fire() {
	if m.fire != nil {
		m.fire()
	}
}
