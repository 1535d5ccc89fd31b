package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// slackEnvelope is the outer Events API callback envelope.
type slackEnvelope struct {
	Type      string          `json:"type"`
	EventID   string          `json:"event_id"`
	TeamID    string          `json:"team_id"`
	Challenge string          `json:"challenge,omitempty"`
	Event     json.RawMessage `json:"event"`
}

// slackMessageEvent covers the message family across its historical shapes.
// Older producers put the sender at the top level; message_changed wraps the
// edited message under "message"; app_mention looks like a plain message.
type slackMessageEvent struct {
	Type        string `json:"type"`
	Subtype     string `json:"subtype,omitempty"`
	User        string `json:"user,omitempty"`
	Username    string `json:"username,omitempty"`
	BotID       string `json:"bot_id,omitempty"`
	Channel     string `json:"channel,omitempty"`
	ChannelType string `json:"channel_type,omitempty"` // "im", "channel", "group"
	Text        string `json:"text,omitempty"`
	Ts          string `json:"ts,omitempty"`
	ThreadTs    string `json:"thread_ts,omitempty"`
	EventTs     string `json:"event_ts,omitempty"`

	// message_changed variant nests the real message.
	Message *struct {
		User     string `json:"user,omitempty"`
		Username string `json:"username,omitempty"`
		BotID    string `json:"bot_id,omitempty"`
		Text     string `json:"text,omitempty"`
		Ts       string `json:"ts,omitempty"`
		ThreadTs string `json:"thread_ts,omitempty"`
	} `json:"message,omitempty"`

	// legacy variant carried the channel under "item".
	Item *struct {
		Channel string `json:"channel,omitempty"`
	} `json:"item,omitempty"`
}

// DecodeSlackType extracts the event family tag from a raw Slack callback
// body. Returns "" for bodies that are not event callbacks.
func DecodeSlackType(raw []byte) string {
	var env slackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	if env.Type != "event_callback" || len(env.Event) == 0 {
		return ""
	}
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(env.Event, &probe); err != nil {
		return ""
	}
	switch probe.Type {
	case "message":
		return "slack.message"
	case "app_mention":
		return "slack.app_mention"
	default:
		return ""
	}
}

func normalizeSlackMessage(raw []byte) (*NormalizedMessage, error) {
	var env slackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode slack envelope: %w", err)
	}
	var ev slackMessageEvent
	if err := json.Unmarshal(env.Event, &ev); err != nil {
		return nil, fmt.Errorf("decode slack event: %w", err)
	}

	sender := ev.User
	name := ev.Username
	text := ev.Text
	ts := ev.Ts
	threadTs := ev.ThreadTs
	if ev.Message != nil { // message_changed shape
		if sender == "" {
			sender = ev.Message.User
		}
		if name == "" {
			name = ev.Message.Username
		}
		if text == "" {
			text = ev.Message.Text
		}
		if ts == "" {
			ts = ev.Message.Ts
		}
		if threadTs == "" {
			threadTs = ev.Message.ThreadTs
		}
		if ev.Message.BotID != "" && sender == "" {
			sender = ev.Message.BotID
		}
	}
	if sender == "" && ev.BotID != "" {
		sender = ev.BotID
	}

	channel := ev.Channel
	if channel == "" && ev.Item != nil {
		channel = ev.Item.Channel
	}
	if channel == "" {
		return nil, fmt.Errorf("slack event has no channel")
	}

	msgID := ts
	if msgID == "" {
		msgID = ev.EventTs
	}
	if msgID != "" {
		msgID = channel + ":" + msgID
	}

	return &NormalizedMessage{
		ExternalMessageID: msgID,
		RoutingKey:        channel,
		SenderID:          sender,
		SenderDisplayName: name,
		Text:              text,
		ThreadRef:         threadTs,
		IsGroup:           ev.ChannelType != "im",
		Timestamp:         slackTsToTime(ts),
	}, nil
}

// slackTsToTime converts a Slack "1712345678.000200" timestamp.
func slackTsToTime(ts string) time.Time {
	sec, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(sec, 10, 64)
	if err != nil || n == 0 {
		return time.Now().UTC()
	}
	return time.Unix(n, 0).UTC()
}
