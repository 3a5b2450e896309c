// Package lifecycle drives a session through active -> document_ready ->
// delivered, with removal possible from any non-final state.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"img2pdf/internal/model"
)

// ErrInvalidTransition is returned when an event is not accepted in the current state.
var ErrInvalidTransition = errors.New("invalid session state transition")

// Events accepted by the session machine.
const (
	EventDocumentReady   statekit.EventType = "DOCUMENT_READY"
	EventDocumentCleared statekit.EventType = "DOCUMENT_CLEARED"
	EventDelivered       statekit.EventType = "DELIVERED"
	EventRemoved         statekit.EventType = "REMOVED"
)

const (
	stateActive  = statekit.StateID(model.StateActive)
	stateReady   = statekit.StateID(model.StateDocumentReady)
	stateDeliver = statekit.StateID(model.StateDelivered)
	stateRemoved = statekit.StateID(model.StateRemoved)
	machineID    = "session"
	recordAction = "record"
)

// transitions mirrors the statechart below and is consulted before sending so an
// unknown event never reaches the interpreter.
var transitions = map[model.SessionState]map[statekit.EventType]model.SessionState{
	model.StateActive: {
		EventDocumentReady: model.StateDocumentReady,
		EventRemoved:       model.StateRemoved,
	},
	model.StateDocumentReady: {
		EventDocumentCleared: model.StateActive,
		EventDelivered:       model.StateDelivered,
		EventRemoved:         model.StateRemoved,
	},
}

// Context is the per-session machine context.
type Context struct {
	Transitions int
	LastEvent   statekit.EventType
}

func record(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	(*ctx).Transitions++
	(*ctx).LastEvent = event.Type
}

// Machine is the compiled session statechart. It is immutable and shared by all trackers.
type Machine struct {
	config *statekit.MachineConfig[*Context]
}

// NewMachine builds the session statechart.
func NewMachine() (*Machine, error) {
	cfg, err := statekit.NewMachine[*Context](machineID).
		WithInitial(stateActive).
		WithContext(&Context{}).
		WithAction(recordAction, record).
		State(stateActive).
		On(EventDocumentReady).Target(stateReady).Do(recordAction).
		On(EventRemoved).Target(stateRemoved).Do(recordAction).
		Done().
		State(stateReady).
		On(EventDocumentCleared).Target(stateActive).Do(recordAction).
		On(EventDelivered).Target(stateDeliver).Do(recordAction).
		On(EventRemoved).Target(stateRemoved).Do(recordAction).
		Done().
		State(stateDeliver).
		Final().
		Done().
		State(stateRemoved).
		Final().
		Done().
		Build()
	if err != nil {
		return nil, fmt.Errorf("build session machine: %w", err)
	}
	return &Machine{config: cfg}, nil
}

// Tracker follows one session. It is not safe for concurrent use; the session
// store serializes access per session.
type Tracker struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewTracker starts a tracker in the active state.
func (m *Machine) NewTracker() *Tracker {
	ctx := &Context{}
	interp := statekit.NewInterpreter(m.config)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	interp.Start()
	return &Tracker{interp: interp, ctx: ctx}
}

// State returns the current session state.
func (t *Tracker) State() model.SessionState {
	return model.SessionState(t.interp.State().Value)
}

// Final reports whether the session reached delivered or removed.
func (t *Tracker) Final() bool {
	return t.interp.Done()
}

// Transitions returns how many transitions the tracker has taken.
func (t *Tracker) Transitions() int {
	return t.ctx.Transitions
}

// Fire applies event, returning ErrInvalidTransition if the current state does not accept it.
func (t *Tracker) Fire(event statekit.EventType) error {
	from := t.State()
	want, ok := transitions[from][event]
	if !ok {
		return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, event, from)
	}
	t.interp.Send(statekit.Event{Type: event})
	if got := t.State(); got != want {
		return fmt.Errorf("%w: %s from %s ended in %s", ErrInvalidTransition, event, from, got)
	}
	return nil
}
