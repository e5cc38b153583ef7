package domain

// EventKind classifies a parsed Slack envelope.
type EventKind string

const (
	KindMention   EventKind = "app_mention"
	KindMessage   EventKind = "message"
	KindChallenge EventKind = "url_verification"
)

// ParsedEvent is the typed view of one inbound Events API delivery.
// It is built once per request by the envelope parser and discarded after
// the reply has been posted.
type ParsedEvent struct {
	ID         string // envelope event_id, used as the dedup key
	Kind       EventKind
	AuthorID   string
	Text       string
	ChannelID  string
	Timestamp  string // ts of the triggering message
	ThreadRoot string // thread_ts, empty when the message is not in a thread
	Challenge  string // only set for KindChallenge
	BotID      string // set when the message was posted by a bot
	SubType    string // message subtype, e.g. "message_changed"
	RequestID  string // id of the HTTP request that delivered the event
}

// OutboundMessage is a single reply to be posted to Slack.
type OutboundMessage struct {
	ChannelID  string
	Text       string
	ThreadRoot string
}

// BackendQuery is the payload forwarded to the answer service.
type BackendQuery struct {
	Text     string `json:"user_input"`
	AuthorID string `json:"user_id"`
}

// BackendAnswer is the outcome of one dispatch. When Failed is set, Output
// holds the fallback text and Err the original cause (never shown to users).
type BackendAnswer struct {
	Output string
	Failed bool
	Err    error
}
