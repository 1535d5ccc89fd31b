package processor

import (
	"strings"

	"github.com/nextlevelbuilder/answergrid/internal/config"
	"github.com/nextlevelbuilder/answergrid/internal/event"
	"github.com/nextlevelbuilder/answergrid/internal/tenant"
)

// Drop reasons reported by the filter.
const (
	DropSelfLoop   = "self_loop"
	DropNotMention = "not_mentioned"
	DropEmptyQuery = "empty_query"
)

// FilterResult says whether an event should generate a reply and, when it
// should, the query text with any leading mention token stripped.
type FilterResult struct {
	Allow  bool
	Query  string
	Reason string // set when Allow is false
}

// Filter suppresses events that must not generate a reply: the service's
// own messages (self loop) and, in mention-only group contexts, messages
// that do not address the bot.
type Filter struct {
	selfIDs       []string
	mentionTokens []string
}

func NewFilter(cfg config.FilterConfig) *Filter {
	return &Filter{selfIDs: cfg.SelfIDs, mentionTokens: cfg.MentionTokens}
}

// Apply decides whether msg proceeds to answer generation under the given
// tenant policy. Mention gating applies to group contexts only; direct
// messages always qualify. Tenant mention tokens extend the global set.
func (f *Filter) Apply(msg *event.NormalizedMessage, tc tenant.Context) FilterResult {
	if f.isSelf(msg) {
		return FilterResult{Reason: DropSelfLoop}
	}

	tokens := append(append([]string(nil), f.mentionTokens...), tc.MentionTokens...)

	text := strings.TrimSpace(msg.Text)
	if msg.IsGroup && tc.MentionOnly && !mentionsBot(text, tokens, f.selfIDs) {
		return FilterResult{Reason: DropNotMention}
	}

	// Only a leading mention is stripped; one mid-sentence stays part of
	// the query.
	if stripped, mentioned := stripMention(text, tokens); mentioned {
		text = stripped
	} else if stripped, mentioned := stripUserTag(text, f.selfIDs); mentioned {
		text = stripped
	}

	if text == "" {
		return FilterResult{Reason: DropEmptyQuery}
	}
	return FilterResult{Allow: true, Query: text}
}

func (f *Filter) isSelf(msg *event.NormalizedMessage) bool {
	for _, id := range f.selfIDs {
		if strings.EqualFold(id, msg.SenderID) || (msg.SenderDisplayName != "" && strings.EqualFold(id, msg.SenderDisplayName)) {
			return true
		}
	}
	return false
}

// mentionsBot reports whether text addresses the bot anywhere: one of the
// mention tokens as a case-insensitive substring, or a <@selfID> user tag.
func mentionsBot(text string, tokens, selfIDs []string) bool {
	lower := strings.ToLower(text)
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		for at := 0; ; {
			i := strings.Index(lower[at:], tok)
			if i < 0 {
				break
			}
			end := at + i + len(tok)
			if end == len(lower) || !wordByte(lower[end]) {
				return true
			}
			at = end
		}
	}
	for _, id := range selfIDs {
		if strings.Contains(lower, "<@"+strings.ToLower(id)+">") {
			return true
		}
	}
	return false
}

// wordByte reports whether b continues a word, so "@botanical" does not
// count as a mention of "@bot".
func wordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}

// stripMention reports whether text leads with one of the tokens and
// returns the text with that token removed.
func stripMention(text string, tokens []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(lower, tok); ok {
			if rest != "" && wordByte(rest[0]) {
				continue
			}
			cut := text[len(tok):]
			return strings.TrimSpace(strings.TrimLeft(cut, " :,")), true
		}
	}
	return text, false
}

// stripUserTag handles slack-style leading user tags ("<@U123> question")
// where the tagged id is one of the bot's own identities.
func stripUserTag(text string, selfIDs []string) (string, bool) {
	if !strings.HasPrefix(text, "<@") {
		return text, false
	}
	end := strings.Index(text, ">")
	if end < 0 {
		return text, false
	}
	tagged := text[2:end]
	for _, id := range selfIDs {
		if strings.EqualFold(id, tagged) {
			return strings.TrimSpace(strings.TrimLeft(text[end+1:], " :,")), true
		}
	}
	return text, false
}
