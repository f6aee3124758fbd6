package client

import "encoding/json"

// Event is one record of the build event stream
type Event struct {
	Phase   string  `json:"phase"`
	Message *string `json:"message,omitempty"`

	// Set on the ready phase
	URL   string `json:"url,omitempty"`
	Token string `json:"token,omitempty"`

	ImageName         string `json:"imageName,omitempty"`
	RefURL            string `json:"binder_ref_url,omitempty"`
	LaunchHost        string `json:"binder_launch_host,omitempty"`
	Request           string `json:"binder_request,omitempty"`
	PersistentRequest string `json:"binder_persistent_request,omitempty"`

	// Raw is the undecoded payload, kept for diagnostics
	Raw json.RawMessage `json:"-"`
}

// Text returns the human readable message, if the event carries one
func (e Event) Text() (string, bool) {
	if e.Message == nil {
		return "", false
	}

	return *e.Message, true
}

// ParseEvent decodes one event payload
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}

	ev.Raw = append(json.RawMessage(nil), data...)

	return ev, nil
}
