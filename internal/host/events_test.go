package host

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ctagard/godot-bridge/internal/lifecycle"
)

func TestEvents_NotifyAndRelease(t *testing.T) {
	events := NewEvents()

	var first, second []lifecycle.ModeChangeReason
	r1 := events.Subscribe(func(reason lifecycle.ModeChangeReason) { first = append(first, reason) })
	events.Subscribe(func(reason lifecycle.ModeChangeReason) { second = append(second, reason) })
	assert.Equal(t, 2, events.Subscribers())

	events.Notify(lifecycle.ReasonStopDebugging)

	r1.Release()
	r1.Release()
	assert.Equal(t, 1, events.Subscribers())

	events.Notify(lifecycle.ReasonDetach)

	assert.Equal(t, []lifecycle.ModeChangeReason{lifecycle.ReasonStopDebugging}, first)
	assert.Equal(t, []lifecycle.ModeChangeReason{lifecycle.ReasonStopDebugging, lifecycle.ReasonDetach}, second)
}

func TestSolution_Directory(t *testing.T) {
	s := NewSolution("/work/a")
	assert.Equal(t, "/work/a", s.Directory())
	s.SetDirectory("/work/b")
	assert.Equal(t, "/work/b", s.Directory())
}
