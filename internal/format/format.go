// Package format renders reply decisions into channel wire formats. All
// functions are pure: no I/O, no clock, same input same output.
package format

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/answergrid/internal/answer"
)

// Channel payload ceilings and the per-excerpt display bound.
const (
	SlackMaxLen    = 4000
	WhatsAppMaxLen = 4096
	ExcerptMaxLen  = 200

	ellipsis = "…"
)

// GenericErrorText is the only error wording an end user ever sees.
const GenericErrorText = "Sorry, something went wrong while processing your question. Please try again in a moment."

// tierIcon maps a citation color to its display marker.
func tierIcon(color string) string {
	switch color {
	case answer.ColorGreen:
		return "🟢"
	case answer.ColorAmber:
		return "🟡"
	default:
		return "🔴"
	}
}

// Truncate bounds s to max runes, appending an ellipsis when cut.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max == 1 {
		return ellipsis
	}
	return string(runes[:max-1]) + ellipsis
}

func excerpt(s string) string {
	return Truncate(strings.TrimSpace(s), ExcerptMaxLen)
}

func silenceBody(d answer.ReplyDecision) string {
	var b strings.Builder
	b.WriteString(d.Reasoning)
	if len(d.Suggestions) > 0 {
		b.WriteString("\n\nYou could try:")
		for _, s := range d.Suggestions {
			b.WriteString("\n• ")
			b.WriteString(s)
		}
	}
	return b.String()
}

// Slack renders a decision as mrkdwn for chat.postMessage.
func Slack(d answer.ReplyDecision) string {
	switch d.Kind {
	case answer.KindAnswer:
		var b strings.Builder
		b.WriteString(d.Text)
		if len(d.Citations) > 0 {
			b.WriteString("\n\n*Sources*")
			for i, c := range d.Citations {
				fmt.Fprintf(&b, "\n%s *%d. %s*", tierIcon(c.ConfidenceColor), i+1, c.SourceName)
				if ex := excerpt(c.Excerpt); ex != "" {
					fmt.Fprintf(&b, "\n> %s", ex)
				}
				if c.DocumentURL != "" {
					fmt.Fprintf(&b, "\n<%s|View document>", c.DocumentURL)
				}
			}
		}
		return Truncate(b.String(), SlackMaxLen)
	case answer.KindSilence:
		return Truncate(silenceBody(d), SlackMaxLen)
	default:
		return GenericErrorText
	}
}

// WhatsApp renders a decision as plain text for the Cloud API.
func WhatsApp(d answer.ReplyDecision) string {
	switch d.Kind {
	case answer.KindAnswer:
		var b strings.Builder
		b.WriteString(d.Text)
		if len(d.Citations) > 0 {
			b.WriteString("\n\nSources:")
			for i, c := range d.Citations {
				fmt.Fprintf(&b, "\n%s %d. %s", tierIcon(c.ConfidenceColor), i+1, c.SourceName)
				if ex := excerpt(c.Excerpt); ex != "" {
					fmt.Fprintf(&b, " — %q", ex)
				}
			}
		}
		return Truncate(b.String(), WhatsAppMaxLen)
	case answer.KindSilence:
		return Truncate(silenceBody(d), WhatsAppMaxLen)
	default:
		return GenericErrorText
	}
}

// TimelineLine renders one citation as a single compact line for the
// cross-channel timeline view.
func TimelineLine(c answer.CitationBlock) string {
	return fmt.Sprintf("%s %s (%.2f) — %s", tierIcon(c.ConfidenceColor), c.SourceName, c.ConfidenceScore, excerpt(c.Excerpt))
}

// TimelineCitations joins a turn's citations into newline-separated
// compact lines, the form they are persisted in with the outbound turn.
func TimelineCitations(citations []answer.CitationBlock) string {
	if len(citations) == 0 {
		return ""
	}
	lines := make([]string, len(citations))
	for i, c := range citations {
		lines[i] = TimelineLine(c)
	}
	return strings.Join(lines, "\n")
}

// ForChannel dispatches on channel type; the structured API channel does
// not go through here (it passes citation blocks through unchanged).
func ForChannel(channelType string, d answer.ReplyDecision) string {
	switch channelType {
	case "whatsapp":
		return WhatsApp(d)
	default:
		return Slack(d)
	}
}
