package whatsapp

import (
	"net/url"
	"strconv"
	"time"
)

// ParsedInbound is a flattened inbound message extracted from a webhook event.
type ParsedInbound struct {
	From        string
	MessageID   string
	Timestamp   time.Time
	Text        string
	ButtonID    string
	ButtonTitle string
	IsButton    bool
}

// VerifyChallenge implements the Meta webhook handshake: when the mode is
// "subscribe" and the verify token matches, the caller must echo the
// challenge back with a 200.
func VerifyChallenge(expectedToken string, query url.Values) (string, bool) {
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode == "subscribe" && expectedToken != "" && token == expectedToken {
		return challenge, true
	}
	return "", false
}

// ParseWebhookEvent extracts inbound messages and delivery statuses from a
// webhook envelope. Both can appear in the same event.
func ParseWebhookEvent(event WebhookEvent) ([]ParsedInbound, []Status) {
	var messages []ParsedInbound
	var statuses []Status

	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				parsed := ParsedInbound{
					From:      m.From,
					MessageID: m.ID,
					Timestamp: parseUnixSeconds(m.Timestamp),
				}
				switch {
				case m.Button != nil:
					parsed.IsButton = true
					parsed.ButtonID = m.Button.Payload
					parsed.ButtonTitle = m.Button.Text
				case m.Interactive != nil && m.Interactive.ButtonReply != nil:
					parsed.IsButton = true
					parsed.ButtonID = m.Interactive.ButtonReply.ID
					parsed.ButtonTitle = m.Interactive.ButtonReply.Title
				case m.Text != nil:
					parsed.Text = m.Text.Body
				default:
					continue
				}
				messages = append(messages, parsed)
			}
			statuses = append(statuses, change.Value.Statuses...)
		}
	}
	return messages, statuses
}

// StatusTime converts the status unix-seconds timestamp to a time.Time,
// falling back to now when the value is missing or malformed.
func (s Status) StatusTime() time.Time {
	if ts := parseUnixSeconds(s.Timestamp); !ts.IsZero() {
		return ts
	}
	return time.Now().UTC()
}

func parseUnixSeconds(value string) time.Time {
	secs, err := strconv.ParseInt(value, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
