package liveingress

import (
	"context"
	"fmt"
	"time"

	goslack "github.com/slack-go/slack"
)

// SlackPoster posts reply text back to the originating Slack channel,
// threaded under the triggering message when a thread timestamp is
// known. It wraps the slack-go SDK client the way the Slack
// notification client in the reference corpus wraps it.
type SlackPoster struct {
	api *goslack.Client
}

// NewSlackPoster builds a poster authenticated with a bot token.
func NewSlackPoster(token string) *SlackPoster {
	return &SlackPoster{api: goslack.New(token)}
}

// Post sends text to channelID, threaded under threadTS when non-empty.
func (p *SlackPoster) Post(ctx context.Context, channelID, threadTS, text string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := []goslack.MsgOption{goslack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, goslack.MsgOptionTS(threadTS))
	}

	_, _, err := p.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return fmt.Errorf("slack chat.postMessage failed: %w", err)
	}
	return nil
}
