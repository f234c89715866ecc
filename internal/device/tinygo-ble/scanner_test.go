//go:build test && (darwin || linux)

package tinyble

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"tinygo.org/x/bluetooth"

	"github.com/srg/blegatt/internal/device"
)

// fakeScanAdapter blocks every Scan call until the test finishes it.
type fakeScanAdapter struct {
	mu    sync.Mutex
	runs  []chan error
	stops int
}

func (a *fakeScanAdapter) Scan(func(*bluetooth.Adapter, bluetooth.ScanResult)) error {
	done := make(chan error, 1)
	a.mu.Lock()
	a.runs = append(a.runs, done)
	a.mu.Unlock()
	return <-done
}

func (a *fakeScanAdapter) StopScan() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
	return nil
}

func (a *fakeScanAdapter) scans() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.runs)
}

func (a *fakeScanAdapter) stopCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stops
}

// finish makes the i-th Scan call return err.
func (a *fakeScanAdapter) finish(i int, err error) {
	a.mu.Lock()
	done := a.runs[i]
	a.mu.Unlock()
	done <- err
}

type ScanBackendTestSuite struct {
	suite.Suite

	adapter *fakeScanAdapter
	backend *ScanBackend
	events  chan device.ScanEvent
}

func (s *ScanBackendTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	s.adapter = &fakeScanAdapter{}
	s.backend = newScanBackend(s.adapter, logger)
	s.events = make(chan device.ScanEvent, 8)
}

func (s *ScanBackendTestSuite) TearDownTest() {
	s.adapter.mu.Lock()
	runs := append([]chan error(nil), s.adapter.runs...)
	s.adapter.mu.Unlock()
	for _, done := range runs {
		select {
		case done <- nil:
		default:
		}
	}
}

func (s *ScanBackendTestSuite) sink(ev device.ScanEvent) { s.events <- ev }

func (s *ScanBackendTestSuite) waitScans(n int) {
	s.Require().Eventually(func() bool { return s.adapter.scans() == n }, time.Second, 5*time.Millisecond,
		"adapter MUST see %d Scan calls", n)
}

func (s *ScanBackendTestSuite) assertNoEvent() {
	select {
	case ev := <-s.events:
		s.Failf("unexpected event", "got %v", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func (s *ScanBackendTestSuite) TestRestartKeepsNewRunStoppable() {
	// GOAL: Verify a previous scan returning late does not mark the new scan as stopped
	//
	// TEST SCENARIO: Start → Stop → Start → first Scan returns → Stop MUST still stop the adapter

	s.Require().NoError(s.backend.StartScan(s.sink))
	s.waitScans(1)
	s.Require().NoError(s.backend.StopScan())
	s.Equal(1, s.adapter.stopCount())

	s.Require().NoError(s.backend.StartScan(s.sink))
	s.waitScans(2)

	s.adapter.finish(0, nil)
	time.Sleep(20 * time.Millisecond)

	s.Require().NoError(s.backend.StopScan())
	s.Equal(2, s.adapter.stopCount(), "second Stop MUST reach the adapter")
	s.assertNoEvent()
}

func (s *ScanBackendTestSuite) TestStaleRunFailureIsSilent() {
	// GOAL: Verify an error from a superseded scan is not reported as a failure of the current one

	s.Require().NoError(s.backend.StartScan(s.sink))
	s.waitScans(1)
	s.Require().NoError(s.backend.StopScan())
	s.Require().NoError(s.backend.StartScan(s.sink))
	s.waitScans(2)

	s.adapter.finish(0, errors.New("scan aborted"))
	s.assertNoEvent()

	s.Error(s.backend.StartScan(s.sink), "current run MUST still be active")
}

func (s *ScanBackendTestSuite) TestFailureReported() {
	// GOAL: Verify an adapter error while scanning is reported once and frees the backend

	s.Require().NoError(s.backend.StartScan(s.sink))
	s.waitScans(1)
	s.adapter.finish(0, errors.New("adapter reset"))

	select {
	case ev := <-s.events:
		s.Equal(device.ScanFailed, ev.Kind)
		s.Error(ev.Err)
	case <-time.After(time.Second):
		s.FailNow("ScanFailed MUST be reported")
	}

	s.Require().Eventually(func() bool { return s.backend.StartScan(s.sink) == nil }, time.Second, 5*time.Millisecond,
		"backend MUST accept a new scan after a failure")
}

func (s *ScanBackendTestSuite) TestConcurrentStartRejected() {
	s.Require().NoError(s.backend.StartScan(s.sink))
	s.Error(s.backend.StartScan(s.sink), "second StartScan MUST be rejected while scanning")
	s.NoError(s.backend.StopScan())
	s.NoError(s.backend.StopScan(), "StopScan MUST be idempotent")
	s.waitScans(1)
	s.Equal(1, s.adapter.stopCount())
}

func TestScanBackendTestSuite(t *testing.T) {
	suite.Run(t, new(ScanBackendTestSuite))
}
