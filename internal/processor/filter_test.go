package processor

import (
	"testing"

	"github.com/nextlevelbuilder/answergrid/internal/config"
	"github.com/nextlevelbuilder/answergrid/internal/event"
	"github.com/nextlevelbuilder/answergrid/internal/tenant"
)

func TestFilterApply(t *testing.T) {
	f := NewFilter(config.FilterConfig{
		MentionTokens: []string{"@bot"},
		SelfIDs:       []string{"UBOT", "answergrid"},
	})

	tests := []struct {
		name      string
		msg       event.NormalizedMessage
		tc        tenant.Context
		wantAllow bool
		wantQuery string
		wantDrop  string
	}{
		{
			name:      "group mention stripped",
			msg:       event.NormalizedMessage{SenderID: "U1", Text: "@bot summarize the filing", IsGroup: true},
			tc:        tenant.Context{MentionOnly: true},
			wantAllow: true,
			wantQuery: "summarize the filing",
		},
		{
			name:      "group user tag mention",
			msg:       event.NormalizedMessage{SenderID: "U1", Text: "<@UBOT> what changed?", IsGroup: true},
			tc:        tenant.Context{MentionOnly: true},
			wantAllow: true,
			wantQuery: "what changed?",
		},
		{
			name:      "group mention mid-sentence allowed unstripped",
			msg:       event.NormalizedMessage{SenderID: "U1", Text: "hey @bot summarize the filing", IsGroup: true},
			tc:        tenant.Context{MentionOnly: true},
			wantAllow: true,
			wantQuery: "hey @bot summarize the filing",
		},
		{
			name:      "group mention case-insensitive at end of sentence",
			msg:       event.NormalizedMessage{SenderID: "U1", Text: "can you help, @BOT?", IsGroup: true},
			tc:        tenant.Context{MentionOnly: true},
			wantAllow: true,
			wantQuery: "can you help, @BOT?",
		},
		{
			name:      "group user tag mid-sentence allowed",
			msg:       event.NormalizedMessage{SenderID: "U1", Text: "what does <@UBOT> think about clause 4?", IsGroup: true},
			tc:        tenant.Context{MentionOnly: true},
			wantAllow: true,
			wantQuery: "what does <@UBOT> think about clause 4?",
		},
		{
			name:     "group chatter without mention",
			msg:      event.NormalizedMessage{SenderID: "U1", Text: "lunch anyone?", IsGroup: true},
			tc:       tenant.Context{MentionOnly: true},
			wantDrop: DropNotMention,
		},
		{
			name:     "token prefix inside longer word is not a mention",
			msg:      event.NormalizedMessage{SenderID: "U1", Text: "@botanical gardens are nice", IsGroup: true},
			tc:       tenant.Context{MentionOnly: true},
			wantDrop: DropNotMention,
		},
		{
			name:      "tenant token extends defaults",
			msg:       event.NormalizedMessage{SenderID: "U1", Text: "@acmebot status?", IsGroup: true},
			tc:        tenant.Context{MentionOnly: true, MentionTokens: []string{"@acmebot"}},
			wantAllow: true,
			wantQuery: "status?",
		},
		{
			name:      "group without mention-only passes chatter",
			msg:       event.NormalizedMessage{SenderID: "U1", Text: "lunch anyone?", IsGroup: true},
			tc:        tenant.Context{},
			wantAllow: true,
			wantQuery: "lunch anyone?",
		},
		{
			name:      "direct message ignores mention gating",
			msg:       event.NormalizedMessage{SenderID: "U1", Text: "what changed?", IsGroup: false},
			tc:        tenant.Context{MentionOnly: true},
			wantAllow: true,
			wantQuery: "what changed?",
		},
		{
			name:      "direct message leading mention stripped anyway",
			msg:       event.NormalizedMessage{SenderID: "U1", Text: "@bot what changed?", IsGroup: false},
			tc:        tenant.Context{},
			wantAllow: true,
			wantQuery: "what changed?",
		},
		{
			name:     "self loop by sender id",
			msg:      event.NormalizedMessage{SenderID: "UBOT", Text: "@bot hi", IsGroup: true},
			tc:       tenant.Context{},
			wantDrop: DropSelfLoop,
		},
		{
			name:     "self loop by display name",
			msg:      event.NormalizedMessage{SenderID: "U9", SenderDisplayName: "AnswerGrid", Text: "hello", IsGroup: false},
			tc:       tenant.Context{},
			wantDrop: DropSelfLoop,
		},
		{
			name:     "mention with no question",
			msg:      event.NormalizedMessage{SenderID: "U1", Text: "@bot", IsGroup: true},
			tc:       tenant.Context{MentionOnly: true},
			wantDrop: DropEmptyQuery,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Apply(&tt.msg, tt.tc)
			if got.Allow != tt.wantAllow {
				t.Fatalf("Allow = %v (reason %q), want %v", got.Allow, got.Reason, tt.wantAllow)
			}
			if tt.wantAllow && got.Query != tt.wantQuery {
				t.Errorf("Query = %q, want %q", got.Query, tt.wantQuery)
			}
			if !tt.wantAllow && got.Reason != tt.wantDrop {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantDrop)
			}
		})
	}
}
