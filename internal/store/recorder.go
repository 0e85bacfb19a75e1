package store

import (
	"context"

	"github.com/soyeahso/jibby/internal/hooks"
	"github.com/soyeahso/jibby/internal/logging"
)

// Recorder persists call lifecycle events into a CallLogStore.
type Recorder struct {
	calls *CallLogStore
	log   *logging.Logger
}

// NewRecorder creates a recorder writing to calls.
func NewRecorder(calls *CallLogStore, log *logging.Logger) *Recorder {
	return &Recorder{calls: calls, log: log.Sub("store")}
}

// Attach subscribes the recorder to the call events on m.
func (r *Recorder) Attach(m *hooks.Manager) {
	for _, ev := range []string{hooks.EventCall, hooks.EventCallInitiated, hooks.EventCallStatus, hooks.EventCallEnded} {
		m.On(ev, "call-log", r.handle)
	}
}

func (r *Recorder) handle(ctx context.Context, ev hooks.Event) error {
	if ev.Call == nil || ev.Call.Sid == "" {
		return nil
	}
	l, err := r.calls.Record(ctx, *ev.Call)
	if err != nil {
		return err
	}
	r.log.Debug().Str("sid", l.Sid).Str("status", string(l.Status)).Str("event", ev.Name).Msg("call logged")
	return nil
}
