package domain

type EventType string

const (
	EventConnected        EventType = "connected"
	EventJoinConfirmation EventType = "joinConfirmation"
	EventActiveUsers      EventType = "activeUsers"
	EventUserJoined       EventType = "userJoined"
	EventUserLeft         EventType = "userLeft"
	EventPTTStatus        EventType = "pttStatus"
	EventAudioData        EventType = "audioData"
	EventPong             EventType = "pong"
	EventError            EventType = "error"
)

// Event is an outbound notification addressed to a single connection.
type Event struct {
	Type    EventType
	Payload interface{}
}

type ConnectedPayload struct {
	ConnectionID ConnectionID `json:"connectionId"`
}

type JoinConfirmation struct {
	ChannelID ChannelID `json:"channelId"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

type ActiveUsers struct {
	ChannelID ChannelID      `json:"channelId"`
	Users     []ConnectionID `json:"users"`
}

type Presence struct {
	ChannelID    ChannelID    `json:"channelId"`
	ConnectionID ConnectionID `json:"connectionId"`
}

type PTTStatus struct {
	ChannelID    ChannelID    `json:"channelId"`
	ConnectionID ConnectionID `json:"connectionId"`
	Active       bool         `json:"active"`
}

type AudioData struct {
	ChannelID    ChannelID    `json:"channelId"`
	ConnectionID ConnectionID `json:"connectionId"`
	Reference    Reference    `json:"reference"`
	Timestamp    int64        `json:"timestamp"` // unix millis
}

type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewEvent(t EventType, payload interface{}) Event {
	return Event{Type: t, Payload: payload}
}
