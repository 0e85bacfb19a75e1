package domain

// AdapterStatus reports the runtime state of a channel adapter.
type AdapterStatus struct {
	Channel     Channel `json:"channel"`
	Connected   bool    `json:"connected"`
	Address     string  `json:"address,omitempty"`
	ActiveCalls int     `json:"activeCalls,omitempty"`
	LastError   string  `json:"lastError,omitempty"`
}
