package domain

import "time"

// CallDirection tells whether a call was placed or received.
type CallDirection string

const (
	CallInbound  CallDirection = "inbound"
	CallOutbound CallDirection = "outbound"
)

// CallStatus mirrors the provider's call lifecycle.
type CallStatus string

const (
	CallQueued     CallStatus = "queued"
	CallRinging    CallStatus = "ringing"
	CallInProgress CallStatus = "in-progress"
	CallCompleted  CallStatus = "completed"
	CallFailed     CallStatus = "failed"
	CallBusy       CallStatus = "busy"
	CallNoAnswer   CallStatus = "no-answer"
	CallCanceled   CallStatus = "canceled"
)

// Terminal reports whether no further status updates follow s.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallCompleted, CallFailed, CallBusy, CallNoAnswer, CallCanceled:
		return true
	}
	return false
}

// CallRecord is a voice call tracked by the voice adapter.
type CallRecord struct {
	Sid       string            `json:"sid"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Direction CallDirection     `json:"direction"`
	Status    CallStatus        `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Duration  int               `json:"duration,omitempty"`
	Raw       map[string]string `json:"raw,omitempty"`
}

// CallResult is what a call handler decided to do with a call.
type CallResult struct {
	Sid    string `json:"sid"`
	Action string `json:"action"`
	TwiML  string `json:"twiml,omitempty"`
}
