package lifecycle

import (
	"testing"

	"github.com/felixgeelhaar/statekit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"img2pdf/internal/model"
)

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	m, err := NewMachine()
	require.NoError(t, err)
	return m.NewTracker()
}

func TestTracker_HappyPath(t *testing.T) {
	tr := newTracker(t)
	assert.Equal(t, model.StateActive, tr.State())

	require.NoError(t, tr.Fire(EventDocumentReady))
	assert.Equal(t, model.StateDocumentReady, tr.State())

	require.NoError(t, tr.Fire(EventDelivered))
	assert.Equal(t, model.StateDelivered, tr.State())
	assert.True(t, tr.Final())
	assert.Equal(t, 2, tr.Transitions())
}

func TestTracker_Regenerate(t *testing.T) {
	tr := newTracker(t)

	require.NoError(t, tr.Fire(EventDocumentReady))
	require.NoError(t, tr.Fire(EventDocumentCleared))
	assert.Equal(t, model.StateActive, tr.State())
	require.NoError(t, tr.Fire(EventDocumentReady))
	assert.Equal(t, model.StateDocumentReady, tr.State())
}

func TestTracker_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup []statekit.EventType
		event statekit.EventType
	}{
		{"deliver without document", nil, EventDelivered},
		{"clear without document", nil, EventDocumentCleared},
		{"ready twice", []statekit.EventType{EventDocumentReady}, EventDocumentReady},
		{"remove after delivery", []statekit.EventType{EventDocumentReady, EventDelivered}, EventRemoved},
		{"anything after removal", []statekit.EventType{EventRemoved}, EventDocumentReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTracker(t)
			for _, ev := range tt.setup {
				require.NoError(t, tr.Fire(ev))
			}
			before := tr.State()

			err := tr.Fire(tt.event)

			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, before, tr.State())
		})
	}
}

func TestTrackers_AreIndependent(t *testing.T) {
	m, err := NewMachine()
	require.NoError(t, err)

	a, b := m.NewTracker(), m.NewTracker()
	require.NoError(t, a.Fire(EventRemoved))

	assert.Equal(t, model.StateRemoved, a.State())
	assert.Equal(t, model.StateActive, b.State())
	assert.Equal(t, 0, b.Transitions())
}
