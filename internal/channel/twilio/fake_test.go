package twilio

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/jibby/internal/hooks"
	"github.com/soyeahso/jibby/internal/logging"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeAPI struct {
	mu       sync.Mutex
	messages []*openapi.CreateMessageParams
	calls    []*openapi.CreateCallParams
	updates  map[string]string
	seq      int

	listErr   error
	createErr error
}

func newFakeAPI() *fakeAPI { return &fakeAPI{updates: map[string]string{}} }

func (f *fakeAPI) factory() APIFactory {
	return func(string, string) API { return f }
}

func (f *fakeAPI) CreateMessage(p *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.messages = append(f.messages, p)
	f.seq++
	sid := fmt.Sprintf("SM%03d", f.seq)
	status := "queued"
	return &openapi.ApiV2010Message{Sid: &sid, Status: &status}, nil
}

func (f *fakeAPI) ListMessage(*openapi.ListMessageParams) ([]openapi.ApiV2010Message, error) {
	return nil, f.listErr
}

func (f *fakeAPI) CreateCall(p *openapi.CreateCallParams) (*openapi.ApiV2010Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.calls = append(f.calls, p)
	f.seq++
	sid := fmt.Sprintf("CA%03d", f.seq)
	status := "queued"
	return &openapi.ApiV2010Call{Sid: &sid, Status: &status}, nil
}

func (f *fakeAPI) UpdateCall(sid string, p *openapi.UpdateCallParams) (*openapi.ApiV2010Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.Status != nil {
		f.updates[sid] = *p.Status
	}
	return &openapi.ApiV2010Call{Sid: &sid}, nil
}

func (f *fakeAPI) ListCall(*openapi.ListCallParams) ([]openapi.ApiV2010Call, error) {
	return nil, f.listErr
}

type recorder struct {
	mu     sync.Mutex
	events []hooks.Event
}

func (r *recorder) Emit(_ context.Context, ev hooks.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Name)
	}
	return out
}

func (r *recorder) last() hooks.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func silentLog() *logging.Logger { return logging.New(nil, "silent") }
