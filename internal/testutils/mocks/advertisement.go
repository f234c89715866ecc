// Package mocks holds testify mocks for go-ble types.
package mocks

import (
	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockAddr is a mock ble.Addr.
type MockAddr struct {
	ble.Addr
	mock.Mock
}

func (m *MockAddr) String() string {
	return m.Called().String(0)
}

// MockAdvertisement is a mock ble.Advertisement. Methods without an expectation panic.
type MockAdvertisement struct {
	ble.Advertisement
	mock.Mock
}

func (m *MockAdvertisement) LocalName() string {
	return m.Called().String(0)
}

func (m *MockAdvertisement) ManufacturerData() []byte {
	ret := m.Called().Get(0)
	if ret == nil {
		return nil
	}
	return ret.([]byte)
}

func (m *MockAdvertisement) ServiceData() []ble.ServiceData {
	ret := m.Called().Get(0)
	if ret == nil {
		return nil
	}
	return ret.([]ble.ServiceData)
}

func (m *MockAdvertisement) Services() []ble.UUID {
	ret := m.Called().Get(0)
	if ret == nil {
		return nil
	}
	return ret.([]ble.UUID)
}

func (m *MockAdvertisement) TxPowerLevel() int {
	return m.Called().Int(0)
}

func (m *MockAdvertisement) Connectable() bool {
	return m.Called().Bool(0)
}

func (m *MockAdvertisement) RSSI() int {
	return m.Called().Int(0)
}

func (m *MockAdvertisement) Addr() ble.Addr {
	ret := m.Called().Get(0)
	if ret == nil {
		return nil
	}
	return ret.(ble.Addr)
}
