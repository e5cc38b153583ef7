package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/slack-go/slack"

	"relaybot/internal/domain"
)

// Slack posts replies through the Slack Web API.
type Slack struct {
	client *slack.Client
	logger *slog.Logger
	botUID string // the bot's own user ID, to avoid replying to self
}

// SlackConfig configures the Slack Web API client.
type SlackConfig struct {
	BotToken   string
	APIURL     string       // optional, must end with "/"
	HTTPClient *http.Client // optional
	Logger     *slog.Logger
}

// NewSlack creates a Slack Web API client.
func NewSlack(cfg SlackConfig) *Slack {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, slack.OptionHTTPClient(cfg.HTTPClient))
	}
	return &Slack{
		client: slack.New(cfg.BotToken, opts...),
		logger: cfg.Logger,
	}
}

// Identify looks up the bot's user ID with auth.test.
func (s *Slack) Identify(ctx context.Context) (string, error) {
	resp, err := s.client.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("slack auth: %w", err)
	}
	s.botUID = resp.UserID
	s.logger.Info("slack bot identified", "user", resp.User, "user_id", resp.UserID, "team", resp.Team)
	return resp.UserID, nil
}

// BotUserID returns the ID found by Identify.
func (s *Slack) BotUserID() string { return s.botUID }

// Post sends msg as a single chat.postMessage call.
func (s *Slack) Post(ctx context.Context, msg domain.OutboundMessage) error {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if msg.ThreadRoot != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ThreadRoot))
	}
	_, ts, err := s.client.PostMessageContext(ctx, msg.ChannelID, opts...)
	if err != nil {
		return fmt.Errorf("slack post to %s: %w", msg.ChannelID, err)
	}
	s.logger.Debug("slack reply posted", "channel", msg.ChannelID, "thread", msg.ThreadRoot, "ts", ts)
	return nil
}
