// Package slackgw is the bot's connection to the Slack Web API.
package slackgw

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	appLog "eventsbot/internal/log"
)

// Client posts and edits digest messages and looks up users.
type Client struct {
	api *slack.Client
}

// New returns a Client authenticated with a bot token. A non-empty
// apiURL replaces https://slack.com/api/ and must end in a slash.
func New(token, apiURL string) *Client {
	opts := []slack.Option{}
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return &Client{api: slack.New(token, opts...)}
}

// Post sends a new message and returns its ts. Link and media unfurling
// are disabled so event links do not flood the channel with previews.
func (c *Client) Post(ctx context.Context, channelID string, blocks []slack.Block, text string) (string, error) {
	_, ts, err := c.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
		slack.MsgOptionDisableMediaUnfurl(),
	)
	if err != nil {
		return "", fmt.Errorf("chat.postMessage %s: %w", channelID, err)
	}
	appLog.Debug("slack post", "channel", channelID, "ts", ts)
	return ts, nil
}

// Update replaces the content of the message at ts.
func (c *Client) Update(ctx context.Context, ts, channelID string, blocks []slack.Block, text string) error {
	_, _, _, err := c.api.UpdateMessageContext(ctx, channelID, ts,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return fmt.Errorf("chat.update %s %s: %w", channelID, ts, err)
	}
	appLog.Debug("slack update", "channel", channelID, "ts", ts)
	return nil
}

// IsAdmin reports whether userID is a workspace admin.
func (c *Client) IsAdmin(ctx context.Context, userID string) (bool, error) {
	u, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("users.info %s: %w", userID, err)
	}
	return u.IsAdmin, nil
}
