package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nutrilog/sessiond/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryDevice struct {
	mu       sync.Mutex
	entries  []*Entry
	failWith error
	closed   bool
}

func (d *memoryDevice) Log(ctx context.Context, entry *Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return d.failWith
	}
	d.entries = append(d.entries, entry)
	return nil
}

func (d *memoryDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *memoryDevice) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func TestManagerFanOut(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(logger.NewNopLogger())

	first := &memoryDevice{}
	second := &memoryDevice{}
	require.NoError(t, manager.RegisterDevice("first", first))
	require.NoError(t, manager.RegisterDevice("second", second))

	manager.Record(ctx, &Entry{
		Type:        TypeLogin,
		PrincipalID: "user-1",
		Outcome:     OutcomeSuccess,
	})

	assert.Equal(t, 1, first.count())
	assert.Equal(t, 1, second.count())

	// The manager fills in id and timestamp.
	entry := first.entries[0]
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestManagerDeviceFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(logger.NewNopLogger())

	broken := &memoryDevice{failWith: errors.New("disk full")}
	healthy := &memoryDevice{}
	require.NoError(t, manager.RegisterDevice("broken", broken))
	require.NoError(t, manager.RegisterDevice("healthy", healthy))

	// Record never returns an error; the healthy device still gets the
	// entry.
	manager.Record(ctx, &Entry{Type: TypeRevocation, Outcome: OutcomeSuccess})
	assert.Equal(t, 1, healthy.count())
}

func TestManagerDuplicateDevice(t *testing.T) {
	manager := NewManager(logger.NewNopLogger())
	require.NoError(t, manager.RegisterDevice("file", &memoryDevice{}))
	assert.Error(t, manager.RegisterDevice("file", &memoryDevice{}))
}

func TestManagerClose(t *testing.T) {
	manager := NewManager(logger.NewNopLogger())
	device := &memoryDevice{}
	require.NoError(t, manager.RegisterDevice("mem", device))

	require.NoError(t, manager.Close())
	assert.True(t, device.closed)
	assert.Empty(t, manager.ListDevices())
}

func TestManagerRecordCopiesEntry(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(logger.NewNopLogger())
	device := &memoryDevice{}
	require.NoError(t, manager.RegisterDevice("mem", device))

	original := &Entry{
		Type:     TypeFactor,
		Outcome:  OutcomeRejected,
		Metadata: map[string]string{"attempt": "1"},
	}
	manager.Record(ctx, original)

	// Mutating the caller's entry after Record must not reach the device.
	original.Metadata["attempt"] = "2"
	assert.Equal(t, "1", device.entries[0].Metadata["attempt"])
}

func TestJSONFormatter(t *testing.T) {
	formatter := &JSONFormatter{}

	data, err := formatter.Format(&Entry{
		ID:      "evt-1",
		Type:    TypeLogin,
		Outcome: OutcomeSuccess,
	})
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1])

	var decoded Entry
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "evt-1", decoded.ID)
	assert.Equal(t, TypeLogin, decoded.Type)

	_, err = formatter.Format(nil)
	assert.Error(t, err)
}
