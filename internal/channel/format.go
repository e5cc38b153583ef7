package channel

import (
	"regexp"

	"relaybot/internal/domain"
)

var markdownLink = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)

// FormatLinks rewrites markdown links into Slack's <url|label> form.
func FormatLinks(text string) string {
	return markdownLink.ReplaceAllString(text, "<$2|$1>")
}

// ComposeReply addresses body to the author.
func ComposeReply(authorID, body string) string {
	return "<@" + authorID + "> " + FormatLinks(body)
}

// Route places text in the event's thread, starting one at the triggering
// message when the event is not threaded.
func Route(ev domain.ParsedEvent, text string) domain.OutboundMessage {
	thread := ev.ThreadRoot
	if thread == "" {
		thread = ev.Timestamp
	}
	return domain.OutboundMessage{
		ChannelID:  ev.ChannelID,
		Text:       text,
		ThreadRoot: thread,
	}
}
