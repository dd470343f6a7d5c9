package engine

// EventType identifies an out-of-band side-effect emitted by a node handler.
type EventType string

const (
	EventToast    EventType = "toast"
	EventOpenLink EventType = "open_link"
)

// Event is a side-effect signal relayed to the caller instead of being acted
// on inside the interpreter: the UI decides how to toast or open a link.
type Event struct {
	Type      EventType `json:"type"`
	Message   string    `json:"message,omitempty"`
	ToastType string    `json:"toastType,omitempty"`
	URL       string    `json:"url,omitempty"`
}
