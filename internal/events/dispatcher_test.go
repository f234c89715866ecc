package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_PreservesOrder(t *testing.T) {
	var (
		mu  sync.Mutex
		got []Type
	)
	d := NewDispatcher(HandlerFunc(func(e Event) {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
	}), nil)

	sent := []Type{ConnectSuccess, ServicesDiscovered, DataAvailable, WriteSuccess, WriteFail}
	for _, typ := range sent {
		d.Emit(New(typ))
	}
	d.Flush()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, sent, got, "events MUST be handled in emission order")
}

func TestDispatcher_NilHandlerDiscards(t *testing.T) {
	d := NewDispatcher(nil, nil)
	d.Emit(New(ScanStopped))
	d.Flush()
}

func TestChanHandler(t *testing.T) {
	ch := make(chan Event, 1)
	d := NewDispatcher(Chan(ch), nil)
	d.Emit(New(ReadSuccess).WithData([]byte{1, 2}))

	e := <-ch
	require.Equal(t, ReadSuccess, e.Type)
	assert.Equal(t, []byte{1, 2}, e.Data)
}

func TestEvent_WithDataCopies(t *testing.T) {
	buf := []byte{0xaa, 0xbb}
	e := New(DataAvailable).WithData(buf)
	buf[0] = 0

	assert.Equal(t, []byte{0xaa, 0xbb}, e.Data, "event payload MUST NOT alias the caller buffer")
}

func TestType_IsFailure(t *testing.T) {
	tests := []struct {
		typ     Type
		failure bool
	}{
		{DeviceFound, false},
		{ScanError, true},
		{ConnectSuccess, false},
		{ConnectFail, true},
		{LostConnection, true},
		{ReadFail, true},
		{ReliableWriteSuccess, false},
		{ReliableWriteFail, true},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			assert.Equal(t, tt.failure, tt.typ.IsFailure())
		})
	}
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "WriteFail: boom", New(WriteFail).WithErr(errors.New("boom")).String())
	assert.Equal(t, "Type(99)", Type(99).String())
}
