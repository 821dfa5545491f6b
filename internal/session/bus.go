package session

// Event names the host lifecycle moments the pipeline reacts to.
type Event string

const (
	EventMessageRendered   Event = "message_rendered"
	EventMessageEdited     Event = "message_edited"
	EventMessageSwiped     Event = "message_swiped"
	EventChatChanged       Event = "chat_changed"
	EventMoreLoaded        Event = "more_messages_loaded"
	EventGenerationStarted Event = "generation_started"
	EventSettingsChanged   Event = "settings_changed"
	EventTeardown          Event = "teardown"
)

// Payload carries event context; unused fields stay zero.
type Payload struct {
	ChatID    string
	MessageID string
	Reason    string
}

// Handler reacts to one event.
type Handler func(Payload)

// Bus dispatches lifecycle events synchronously, in registration order.
// Single-threaded by contract: handlers run to completion before Emit
// returns, so render ordering matches event ordering.
type Bus struct {
	handlers map[Event][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[Event][]Handler)}
}

// On registers a handler for one event.
func (b *Bus) On(e Event, h Handler) {
	b.handlers[e] = append(b.handlers[e], h)
}

// Emit runs every handler registered for the event.
func (b *Bus) Emit(e Event, p Payload) {
	for _, h := range b.handlers[e] {
		h(p)
	}
}
