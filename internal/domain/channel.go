package domain

import "context"

// Poster delivers an outbound message to the chat platform.
type Poster interface {
	Post(ctx context.Context, msg OutboundMessage) error
}
