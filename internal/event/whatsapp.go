package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// waWebhook is the Cloud API webhook body. One POST can carry several
// entries; in practice Meta sends one message per delivery, and the
// normalizer takes the first.
type waWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string  `json:"field"`
			Value waValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type waValue struct {
	Metadata struct {
		PhoneNumberID string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts,omitempty"`
	Messages []waMessage `json:"messages,omitempty"`
	Statuses []struct {
		ID string `json:"id"`
	} `json:"statuses,omitempty"`
}

type waMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Context *struct {
		ID string `json:"id"` // replied-to message id
	} `json:"context,omitempty"`
}

// DecodeWhatsAppType extracts the event family tag from a raw Cloud API
// webhook body. Status-only deliveries (read/delivered receipts) return "".
func DecodeWhatsAppType(raw []byte) string {
	var wh waWebhook
	if err := json.Unmarshal(raw, &wh); err != nil {
		return ""
	}
	for _, entry := range wh.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Messages) > 0 {
				return "wa.message"
			}
		}
	}
	return ""
}

func normalizeWhatsAppMessage(raw []byte) (*NormalizedMessage, error) {
	var wh waWebhook
	if err := json.Unmarshal(raw, &wh); err != nil {
		return nil, fmt.Errorf("decode whatsapp webhook: %w", err)
	}

	for _, entry := range wh.Entry {
		for _, change := range entry.Changes {
			v := change.Value
			if len(v.Messages) == 0 {
				continue
			}
			m := v.Messages[0]
			text := ""
			if m.Text != nil {
				text = m.Text.Body
			}
			name := ""
			for _, c := range v.Contacts {
				if c.WaID == m.From {
					name = c.Profile.Name
					break
				}
			}
			threadRef := ""
			if m.Context != nil {
				threadRef = m.Context.ID
			}
			return &NormalizedMessage{
				ExternalMessageID: m.ID,
				RoutingKey:        v.Metadata.PhoneNumberID,
				SenderID:          m.From,
				SenderDisplayName: name,
				Text:              text,
				ThreadRef:         threadRef,
				IsGroup:           false, // Cloud API delivers 1:1 conversations only
				Timestamp:         waTsToTime(m.Timestamp),
			}, nil
		}
	}
	return nil, fmt.Errorf("whatsapp webhook carries no message")
}

func waTsToTime(ts string) time.Time {
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || n == 0 {
		return time.Now().UTC()
	}
	return time.Unix(n, 0).UTC()
}
