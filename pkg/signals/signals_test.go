package signals

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignal_SendOrder(t *testing.T) {
	s := New("test")
	var got []string

	s.Connect("a", func(_ context.Context, e Event) error {
		got = append(got, "a:"+e.Sender)
		return nil
	}, nil)
	s.Connect("b", func(_ context.Context, e Event) error {
		got = append(got, "b:"+e.Sender)
		return nil
	}, nil)

	require.NoError(t, s.Send(context.Background(), "registry", nil))
	assert.Equal(t, []string{"a:registry", "b:registry"}, got)
}

func TestSignal_ConnectReplacesAndDisconnect(t *testing.T) {
	s := New("test")
	calls := 0
	recv := func(context.Context, Event) error { calls++; return nil }

	s.Connect("x", recv, nil)
	s.Connect("x", recv, nil)
	require.NoError(t, s.Send(context.Background(), "", nil))
	assert.Equal(t, 1, calls)

	assert.True(t, s.Disconnect("x"))
	assert.False(t, s.Disconnect("x"))
	assert.False(t, s.HasReceivers())
}

func TestSignal_ErrorsJoined(t *testing.T) {
	s := New("test")
	errA := errors.New("a failed")
	ran := false

	s.Connect("a", func(context.Context, Event) error { return errA }, nil)
	s.Connect("b", func(context.Context, Event) error { ran = true; return nil }, nil)

	err := s.Send(context.Background(), "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.True(t, ran)
}

func TestSignal_Filters(t *testing.T) {
	s := New("test")
	var seen []Event

	s.Connect("only-debug", func(_ context.Context, e Event) error {
		seen = append(seen, e)
		return nil
	}, FilterByData("setting", "DEBUG"))

	require.NoError(t, s.Send(context.Background(), "settings", map[string]any{"setting": "USE_TZ"}))
	require.NoError(t, s.Send(context.Background(), "settings", map[string]any{"setting": "DEBUG"}))

	require.Len(t, seen, 1)
	assert.Equal(t, "test", seen[0].Signal)
	assert.NotEmpty(t, seen[0].ID)

	assert.True(t, FilterBySender("settings")(seen[0]))
	assert.False(t, FilterBySender("apps")(seen[0]))
}
