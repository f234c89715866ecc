//go:build test

package testutils

import (
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// GattSuite is a reusable testify suite with a fake central, a fake scan backend and an
// event recorder, all recreated before each test.
//
//	type SessionSuite struct {
//	    testutils.GattSuite
//	}
//
//	func (s *SessionSuite) SetupTest() {
//	    s.GattSuite.SetupTest()
//	    s.Peripheral.WithService("180f").WithCharacteristic("2a19", "read,notify", []byte{87})
//	}
//
// Connect and scan requests succeed unless a test replaces the expectations.
type GattSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	Central    *FakeCentral
	Backend    *FakeScanBackend
	Recorder   *EventRecorder
	Peripheral *PeripheralBuilder
	Timer      *ManualTimer
}

func (s *GattSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.Logger.Debug("Suite setup completed")
}

func (s *GattSuite) SetupTest() {
	s.Central = NewFakeCentral()
	s.Central.On("Connect", mock.Anything).Return(nil).Maybe()

	s.Backend = NewFakeScanBackend()
	s.Backend.On("StartScan").Return(nil).Maybe()
	s.Backend.On("StopScan").Return(nil).Maybe()

	s.Recorder = NewEventRecorder()
	s.Peripheral = NewPeripheralBuilder()
	s.Timer = &ManualTimer{}
}

// FailConnect makes every following Connect return err.
func (s *GattSuite) FailConnect(err error) {
	s.Central.ExpectedCalls = nil
	s.Central.On("Connect", mock.Anything).Return(err)
}

// FailStartScan makes every following StartScan return err.
func (s *GattSuite) FailStartScan(err error) {
	s.Backend.ExpectedCalls = nil
	s.Backend.On("StartScan").Return(err)
	s.Backend.On("StopScan").Return(nil).Maybe()
}
