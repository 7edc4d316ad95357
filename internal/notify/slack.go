package notify

import (
	"context"
	"sort"

	"github.com/slack-go/slack"
)

// SlackNotifier posts events to one Slack channel.
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// NewSlackNotifier builds a notifier for the given bot token and channel id.
func NewSlackNotifier(token, channel string) *SlackNotifier {
	return &SlackNotifier{client: slack.New(token), channel: channel}
}

func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	fields := make([]slack.AttachmentField, 0, len(event.Fields)+1)
	keys := make([]string, 0, len(event.Fields))
	for k := range event.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, slack.AttachmentField{Title: k, Value: event.Fields[k], Short: true})
	}
	if event.SessionID != "" {
		fields = append(fields, slack.AttachmentField{Title: "session", Value: event.SessionID, Short: true})
	}

	attachment := slack.Attachment{
		Title:  event.Title,
		Text:   event.Text,
		Fields: fields,
		Color:  colorFor(event.Kind),
	}
	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(event.Kind, false),
		slack.MsgOptionAttachments(attachment),
	)
	return err
}

func colorFor(kind string) string {
	switch kind {
	case "ticket.created":
		return "good"
	case "turn.error":
		return "danger"
	default:
		return "#439FE0"
	}
}
