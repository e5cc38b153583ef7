package channel

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/slack-go/slack/slackevents"

	"relaybot/internal/domain"
)

var (
	// ErrMalformedEnvelope means the body is not a usable Events API payload.
	// Such deliveries are acknowledged and dropped.
	ErrMalformedEnvelope = errors.New("malformed event envelope")
	// ErrUnsupportedEvent is a well-formed delivery relaybot does not handle.
	ErrUnsupportedEvent = errors.New("unsupported event")
)

// envelope is the outer Events API payload. The inner event is decoded once
// its type is known.
type envelope struct {
	Type      string          `json:"type"`
	Challenge string          `json:"challenge"`
	EventID   string          `json:"event_id"`
	Event     json.RawMessage `json:"event"`
}

type innerType struct {
	Type string `json:"type"`
}

// ParseEnvelope decodes a verified request body.
func ParseEnvelope(body []byte) (domain.ParsedEvent, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.ParsedEvent{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	switch env.Type {
	case string(slackevents.URLVerification):
		if env.Challenge == "" {
			return domain.ParsedEvent{}, fmt.Errorf("%w: url_verification without challenge", ErrMalformedEnvelope)
		}
		return domain.ParsedEvent{Kind: domain.KindChallenge, Challenge: env.Challenge}, nil
	case string(slackevents.CallbackEvent):
		return parseCallback(env)
	case "":
		return domain.ParsedEvent{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	default:
		return domain.ParsedEvent{}, fmt.Errorf("%w: envelope type %q", ErrUnsupportedEvent, env.Type)
	}
}

func parseCallback(env envelope) (domain.ParsedEvent, error) {
	if env.EventID == "" {
		return domain.ParsedEvent{}, fmt.Errorf("%w: missing event_id", ErrMalformedEnvelope)
	}
	if len(env.Event) == 0 {
		return domain.ParsedEvent{}, fmt.Errorf("%w: missing event", ErrMalformedEnvelope)
	}

	var inner innerType
	if err := json.Unmarshal(env.Event, &inner); err != nil {
		return domain.ParsedEvent{}, fmt.Errorf("%w: event: %v", ErrMalformedEnvelope, err)
	}

	var ev domain.ParsedEvent
	switch inner.Type {
	case string(slackevents.AppMention):
		var m slackevents.AppMentionEvent
		if err := json.Unmarshal(env.Event, &m); err != nil {
			return domain.ParsedEvent{}, fmt.Errorf("%w: app_mention: %v", ErrMalformedEnvelope, err)
		}
		ev = domain.ParsedEvent{
			Kind:       domain.KindMention,
			AuthorID:   m.User,
			Text:       m.Text,
			ChannelID:  m.Channel,
			Timestamp:  m.TimeStamp,
			ThreadRoot: m.ThreadTimeStamp,
			BotID:      m.BotID,
		}
	case string(slackevents.Message):
		var m slackevents.MessageEvent
		if err := json.Unmarshal(env.Event, &m); err != nil {
			return domain.ParsedEvent{}, fmt.Errorf("%w: message: %v", ErrMalformedEnvelope, err)
		}
		ev = domain.ParsedEvent{
			Kind:       domain.KindMessage,
			AuthorID:   m.User,
			Text:       m.Text,
			ChannelID:  m.Channel,
			Timestamp:  m.TimeStamp,
			ThreadRoot: m.ThreadTimeStamp,
			BotID:      m.BotID,
			SubType:    m.SubType,
		}
	case "":
		return domain.ParsedEvent{}, fmt.Errorf("%w: event without type", ErrMalformedEnvelope)
	default:
		return domain.ParsedEvent{}, fmt.Errorf("%w: event type %q", ErrUnsupportedEvent, inner.Type)
	}
	ev.ID = env.EventID

	if err := validate(ev); err != nil {
		return domain.ParsedEvent{}, err
	}
	return ev, nil
}

// validate checks the fields a reply needs. Bot posts and edits may lack an
// author; they are filtered out later rather than rejected here.
func validate(ev domain.ParsedEvent) error {
	if ev.ChannelID == "" {
		return fmt.Errorf("%w: missing channel", ErrMalformedEnvelope)
	}
	if ev.Timestamp == "" {
		return fmt.Errorf("%w: missing ts", ErrMalformedEnvelope)
	}
	if ev.AuthorID == "" && ev.BotID == "" && ev.SubType == "" {
		return fmt.Errorf("%w: missing user", ErrMalformedEnvelope)
	}
	return nil
}
