package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to RunStatus
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCanceled, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusCanceled, true},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusCanceled, false},
		{StatusCanceled, StatusProcessing, false},
		{StatusFailed, StatusCompleted, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestRunStatusFinal(t *testing.T) {
	assert.False(t, StatusPending.IsFinal())
	assert.False(t, StatusProcessing.IsFinal())
	assert.True(t, StatusCompleted.IsFinal())
	assert.True(t, StatusFailed.IsFinal())
	assert.True(t, StatusCanceled.IsFinal())
	assert.False(t, RunStatus("bogus").IsFinal())
}

func TestSourcesOf(t *testing.T) {
	assert.Equal(t, []RunStatus{StatusPending, StatusProcessing}, SourcesOf(StatusCanceled))
	assert.Equal(t, []RunStatus{StatusProcessing}, SourcesOf(StatusCompleted))
	assert.Empty(t, SourcesOf(StatusPending))
}

func TestCategoriesValueScan(t *testing.T) {
	v, err := Categories{"NPM", "Orion Core"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["NPM","Orion Core"]`, v)

	empty, err := Categories(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", empty)

	var c Categories
	require.NoError(t, c.Scan([]byte(`["SAM"]`)))
	assert.Equal(t, Categories{"SAM"}, c)

	require.NoError(t, c.Scan(nil))
	assert.Nil(t, c)

	assert.Error(t, c.Scan(42))
}
