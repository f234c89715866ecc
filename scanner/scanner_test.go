//go:build test

package scanner_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	suitelib "github.com/stretchr/testify/suite"

	"github.com/srg/blegatt/internal/device"
	"github.com/srg/blegatt/internal/events"
	"github.com/srg/blegatt/internal/testutils"
	"github.com/srg/blegatt/scanner"
)

type ScannerTestSuite struct {
	testutils.GattSuite

	peer1, peer2, nameless device.Peer
}

func (suite *ScannerTestSuite) SetupTest() {
	suite.GattSuite.SetupTest()

	suite.peer1 = testutils.CreateMockAdvertisement("Test Device 1", "AA:BB:CC:DD:EE:FF", -45).
		WithServices("180F", "1800").
		BuildPeer()
	suite.peer2 = testutils.CreateMockAdvertisementFromJSON(`{
		"address": "11:22:33:44:55:66",
		"name": "Test Device 2",
		"rssi": -70,
		"services": ["6e400001-b5a3-f393-e0a9-e50e24dcca9e"]
	}`).BuildPeer()
	suite.nameless = testutils.NewAdvertisementBuilder().
		WithAddress("22:22:22:22:22:22").
		BuildPeer()
}

func (suite *ScannerTestSuite) newScanner(opts ...scanner.Option) *scanner.Scanner {
	opts = append([]scanner.Option{scanner.WithAfterFunc(suite.Timer.AfterFunc)}, opts...)
	s, err := scanner.New(suite.Backend, suite.Recorder, suite.Logger, opts...)
	suite.Require().NoError(err, "scanner MUST be created")
	return s
}

func (suite *ScannerTestSuite) TestNewRequiresBackend() {
	// GOAL: Verify a scanner cannot be built without a platform backend
	//
	// TEST SCENARIO: nil backend → ErrNotInitialized

	s, err := scanner.New(nil, suite.Recorder, suite.Logger)

	suite.Nil(s, "scanner MUST be nil")
	suite.ErrorIs(err, device.ErrNotInitialized, "error MUST be ErrNotInitialized")
}

func (suite *ScannerTestSuite) TestDeduplicatesWithinWindow() {
	// GOAL: Verify each named peer is reported once per scan window
	//
	// TEST SCENARIO: Same peers advertise repeatedly → one DeviceFound each, in arrival order

	s := suite.newScanner()
	suite.Require().NoError(s.Start(0))

	suite.Backend.Advertise(suite.peer1, suite.peer2, suite.peer1, suite.peer2, suite.peer1)
	s.Flush()

	found := suite.Recorder.Of(events.DeviceFound)
	suite.Require().Len(found, 2, "MUST report each peer once")
	suite.Equal(suite.peer1.Address, found[0].Peer.Address, "first report MUST be the first peer seen")
	suite.Equal(suite.peer2.Address, found[1].Peer.Address)
	suite.Equal(-45, found[0].Peer.RSSI, "peer descriptor MUST carry RSSI")
	suite.Equal(2, s.Seen(), "seen set MUST hold both peers")
}

func (suite *ScannerTestSuite) TestNamelessPeersIgnored() {
	// GOAL: Verify peers without a name are not reported and do not block a later named report
	//
	// TEST SCENARIO: Nameless advertisement then the same address with a name → one DeviceFound

	s := suite.newScanner()
	suite.Require().NoError(s.Start(0))

	suite.Backend.Advertise(suite.nameless)
	s.Flush()
	suite.Empty(suite.Recorder.Of(events.DeviceFound), "nameless peer MUST NOT be reported")

	named := suite.nameless
	named.Name = "Late Name"
	suite.Backend.Advertise(named)
	s.Flush()

	found := suite.Recorder.Of(events.DeviceFound)
	suite.Require().Len(found, 1, "peer MUST be reported once its name is known")
	suite.Equal("Late Name", found[0].Peer.Name)
}

func (suite *ScannerTestSuite) TestWindowTimesOut() {
	// GOAL: Verify the window closes itself after the default duration
	//
	// TEST SCENARIO: Start(0) → timer armed for 3000ms → fire → StopScan + ScanStopped

	s := suite.newScanner()
	suite.Require().NoError(s.Start(0))
	suite.Equal(scanner.DefaultScanDuration, suite.Timer.Duration, "default window MUST be 3000ms")
	suite.Equal(3000*time.Millisecond, suite.Timer.Duration)
	suite.True(s.IsScanning())

	suite.Timer.Fire()
	s.Flush()

	suite.False(s.IsScanning(), "scanner MUST stop when the window elapses")
	suite.Equal([]events.Type{events.ScanStopped}, suite.Recorder.Types(), "MUST emit exactly one ScanStopped")
	suite.Backend.AssertNumberOfCalls(suite.T(), "StopScan", 1)
}

func (suite *ScannerTestSuite) TestStopIsIdempotent() {
	// GOAL: Verify Stop only emits ScanStopped for an open window
	//
	// TEST SCENARIO: Stop while idle → nothing; Start, Stop, Stop → one ScanStopped; late timer → nothing

	s := suite.newScanner()
	s.Stop()
	s.Flush()
	suite.Empty(suite.Recorder.Types(), "Stop while idle MUST NOT emit")

	suite.Require().NoError(s.Start(time.Second))
	s.Stop()
	s.Stop()
	suite.Timer.Fire()
	s.Flush()

	suite.Equal([]events.Type{events.ScanStopped}, suite.Recorder.Types(), "MUST emit a single ScanStopped")
	suite.Backend.AssertNumberOfCalls(suite.T(), "StopScan", 1)
}

func (suite *ScannerTestSuite) TestStartWhileRunning() {
	// GOAL: Verify a second Start does not open another window
	//
	// TEST SCENARIO: Start twice → backend started once → seen set kept

	s := suite.newScanner()
	suite.Require().NoError(s.Start(0))
	suite.Backend.Advertise(suite.peer1)
	s.Flush()

	suite.NoError(s.Start(0), "second Start MUST be a silent no-op")
	suite.Backend.AssertNumberOfCalls(suite.T(), "StartScan", 1)
	suite.Equal(1, s.Seen(), "second Start MUST NOT reset the seen set")
}

func (suite *ScannerTestSuite) TestNewWindowReportsAgain() {
	// GOAL: Verify the seen set is cleared between windows
	//
	// TEST SCENARIO: Report peer → stop → start → same peer → reported again

	s := suite.newScanner()
	suite.Require().NoError(s.Start(0))
	suite.Backend.Advertise(suite.peer1)
	s.Stop()
	suite.Equal(0, s.Seen(), "stop MUST clear the seen set")

	suite.Require().NoError(s.Start(0))
	suite.Backend.Advertise(suite.peer1)
	s.Flush()

	suite.Equal([]events.Type{events.DeviceFound, events.ScanStopped, events.DeviceFound}, suite.Recorder.Types())
}

func (suite *ScannerTestSuite) TestStaleResultsDropped() {
	// GOAL: Verify results delivered by a previous window's backend run are ignored
	//
	// TEST SCENARIO: Start, stop, start → first run's sink reports a peer → nothing emitted

	s := suite.newScanner()
	suite.Require().NoError(s.Start(0))
	s.Stop()
	suite.Require().NoError(s.Start(0))

	stale := suite.Backend.Sink(0)
	suite.Require().NotNil(stale)
	stale(device.ScanEvent{Kind: device.ScanResult, Peer: suite.peer1})
	s.Flush()

	suite.Empty(suite.Recorder.Of(events.DeviceFound), "stale result MUST be dropped")
	suite.Equal(0, s.Seen())
}

func (suite *ScannerTestSuite) TestPlatformFailure() {
	// GOAL: Verify a platform scan failure ends the window with ScanError only
	//
	// TEST SCENARIO: Scan fails → ScanError, no ScanStopped, no StopScan → later timer ignored

	s := suite.newScanner()
	suite.Require().NoError(s.Start(0))
	suite.Backend.Advertise(suite.peer1)
	suite.Backend.Fail(errors.New("scan failed: registration"))
	suite.Timer.Fire()
	s.Stop()
	s.Flush()

	suite.Equal([]events.Type{events.DeviceFound, events.ScanError}, suite.Recorder.Types(), "failure MUST emit ScanError and never ScanStopped")
	last, _ := suite.Recorder.Last()
	suite.Error(last.Err, "ScanError MUST carry the platform error")
	suite.False(s.IsScanning())
	suite.Equal(0, s.Seen(), "failure MUST clear the seen set")
	suite.Backend.AssertNotCalled(suite.T(), "StopScan")
}

func (suite *ScannerTestSuite) TestStartFailure() {
	// GOAL: Verify a refused start leaves the scanner idle
	//
	// TEST SCENARIO: backend StartScan fails → error returned → not scanning → no events

	suite.FailStartScan(errors.New("bluetooth is powered off"))
	s := suite.newScanner()

	err := s.Start(0)
	s.Flush()

	suite.ErrorIs(err, device.ErrBluetoothOff, "start error MUST be normalized")
	suite.False(s.IsScanning(), "failed start MUST leave scanner idle")
	suite.Empty(suite.Recorder.Types())
}

func (suite *ScannerTestSuite) TestFilters() {
	// GOAL: Verify allow, block and service filters
	//
	// TEST SCENARIO: Each filter configured in turn → only matching peers reported

	cases := []struct {
		name string
		opts scanner.ScanOptions
		want []device.PeerAddress
	}{
		{"no filter", scanner.ScanOptions{}, []device.PeerAddress{suite.peer1.Address, suite.peer2.Address}},
		{"allow list", scanner.ScanOptions{AllowList: []device.PeerAddress{suite.peer2.Address}}, []device.PeerAddress{suite.peer2.Address}},
		{"block list", scanner.ScanOptions{BlockList: []device.PeerAddress{suite.peer2.Address}}, []device.PeerAddress{suite.peer1.Address}},
		{"service 16-bit", scanner.ScanOptions{ServiceUUIDs: []string{"180f"}}, []device.PeerAddress{suite.peer1.Address}},
		{"service 128-bit", scanner.ScanOptions{ServiceUUIDs: []string{"6E400001-B5A3-F393-E0A9-E50E24DCCA9E"}}, []device.PeerAddress{suite.peer2.Address}},
		{"service SIG base form", scanner.ScanOptions{ServiceUUIDs: []string{"0x180F", "0000FFFF-0000-1000-8000-00805F9B34FB"}}, []device.PeerAddress{suite.peer1.Address}},
	}

	for _, tc := range cases {
		suite.Run(tc.name, func() {
			suite.Recorder.Reset()
			s := suite.newScanner(scanner.WithOptions(&tc.opts))
			suite.Require().NoError(s.Start(0))
			suite.Backend.Advertise(suite.peer1, suite.peer2)
			s.Stop()
			s.Flush()

			var got []device.PeerAddress
			for _, e := range suite.Recorder.Of(events.DeviceFound) {
				got = append(got, e.Peer.Address)
			}
			suite.Equal(tc.want, got, "filter %q MUST select the expected peers", tc.name)
		})
	}
}

func TestScannerTestSuite(t *testing.T) {
	suitelib.Run(t, new(ScannerTestSuite))
}

func TestScannerWithChannelHandler(t *testing.T) {
	// GOAL: Verify events reach a channel handler in order
	//
	// TEST SCENARIO: Start → peer → Stop → DeviceFound then ScanStopped on the channel

	backend := testutils.NewFakeScanBackend()
	backend.On("StartScan").Return(nil)
	backend.On("StopScan").Return(nil)

	ch := make(chan events.Event, 4)
	timer := &testutils.ManualTimer{}
	s, err := scanner.New(backend, events.Chan(ch), testutils.NewTestHelper(t).Logger, scanner.WithAfterFunc(timer.AfterFunc))
	require.NoError(t, err)

	require.NoError(t, s.Start(500*time.Millisecond))
	require.Equal(t, 500*time.Millisecond, timer.Duration, "explicit duration MUST be used")

	backend.Advertise(device.Peer{Address: "AA:AA:AA:AA:AA:AA", Name: "Sensor"})
	s.Stop()
	s.Flush()

	require.Len(t, ch, 2)
	require.Equal(t, events.DeviceFound, (<-ch).Type)
	require.Equal(t, events.ScanStopped, (<-ch).Type)
}

func TestScannerWindowElapsesOnItsOwn(t *testing.T) {
	// GOAL: Verify the real timer closes the window without a Stop call

	backend := testutils.NewFakeScanBackend()
	backend.On("StartScan").Return(nil)
	backend.On("StopScan").Return(nil)

	recorder := testutils.NewEventRecorder()
	s, err := scanner.New(backend, recorder, testutils.NewTestHelper(t).Logger)
	require.NoError(t, err)

	require.NoError(t, s.Start(20*time.Millisecond))
	recorder.WaitFor(t, events.ScanStopped, time.Second)

	require.False(t, s.IsScanning(), "window MUST be closed")
	backend.AssertNumberOfCalls(t, "StopScan", 1)
}
