package format

import (
	"strings"
	"testing"

	"github.com/nextlevelbuilder/answergrid/internal/answer"
)

func answerDecision() answer.ReplyDecision {
	return answer.NewAnswer("Revenue grew 10% year over year.", []answer.CitationBlock{
		{SourceName: "Q4 Filing", Excerpt: "revenue grew 10%", ConfidenceScore: 0.9, ConfidenceColor: answer.ColorGreen, DocumentURL: "https://kb.example/d1"},
		{SourceName: "Analyst Memo", Excerpt: "context on growth", ConfidenceScore: 0.72, ConfidenceColor: answer.ColorAmber},
	})
}

func TestSlackAnswer(t *testing.T) {
	out := Slack(answerDecision())
	for _, want := range []string{"Revenue grew 10%", "*Sources*", "🟢", "🟡", "Q4 Filing", "<https://kb.example/d1|View document>"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWhatsAppAnswer(t *testing.T) {
	out := WhatsApp(answerDecision())
	if !strings.Contains(out, "Sources:") || !strings.Contains(out, "🟢 1. Q4 Filing") {
		t.Errorf("output = %s", out)
	}
	if strings.Contains(out, "<https://") {
		t.Error("whatsapp output must not use mrkdwn links")
	}
}

func TestSilenceRendering(t *testing.T) {
	d := answer.NewSilence("I'm not confident enough to answer that.", []string{"rephrase the question", "name the document"})
	for name, fn := range map[string]func(answer.ReplyDecision) string{"slack": Slack, "whatsapp": WhatsApp} {
		t.Run(name, func(t *testing.T) {
			out := fn(d)
			if !strings.Contains(out, "not confident enough") || !strings.Contains(out, "rephrase the question") {
				t.Errorf("output = %s", out)
			}
			if strings.Contains(out, "Sources") || strings.Contains(out, "🟢") {
				t.Error("silence output must not contain citation blocks")
			}
		})
	}
}

func TestErrorRendering(t *testing.T) {
	d := answer.NewError("UPSTREAM_FAILURE")
	if out := Slack(d); out != GenericErrorText {
		t.Errorf("slack error = %q", out)
	}
	if out := WhatsApp(d); out != GenericErrorText {
		t.Errorf("whatsapp error = %q", out)
	}
	if strings.Contains(GenericErrorText, "UPSTREAM") {
		t.Error("raw error kinds must never leak to users")
	}
}

func TestExcerptTruncation(t *testing.T) {
	long := strings.Repeat("x", ExcerptMaxLen*2)
	d := answer.NewAnswer("a", []answer.CitationBlock{{SourceName: "S", Excerpt: long, ConfidenceColor: answer.ColorRed}})
	out := Slack(d)
	if strings.Contains(out, long) {
		t.Error("excerpt not truncated")
	}
	if !strings.Contains(out, "…") {
		t.Error("truncated excerpt missing ellipsis")
	}
}

func TestWholeMessageBound(t *testing.T) {
	d := answer.NewAnswer(strings.Repeat("long answer ", 2000), nil)
	if got := len([]rune(Slack(d))); got > SlackMaxLen {
		t.Errorf("slack output %d runes, limit %d", got, SlackMaxLen)
	}
	if got := len([]rune(WhatsApp(d))); got > WhatsAppMaxLen {
		t.Errorf("whatsapp output %d runes, limit %d", got, WhatsAppMaxLen)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 4, "hel…"},
		{"héllo", 4, "hél…"},
		{"hello", 1, "…"},
		{"hello", 0, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestTimelineLine(t *testing.T) {
	line := TimelineLine(answer.CitationBlock{SourceName: "Memo", ConfidenceScore: 0.71, ConfidenceColor: answer.ColorAmber, Excerpt: "short"})
	if !strings.Contains(line, "Memo") || !strings.Contains(line, "0.71") || strings.Contains(line, "\n") {
		t.Errorf("line = %q", line)
	}
}

func TestTimelineCitations(t *testing.T) {
	if got := TimelineCitations(nil); got != "" {
		t.Errorf("no citations = %q, want empty", got)
	}
	got := TimelineCitations([]answer.CitationBlock{
		{SourceName: "Filing", ConfidenceScore: 0.92, ConfidenceColor: answer.ColorGreen, Excerpt: "a"},
		{SourceName: "Memo", ConfidenceScore: 0.71, ConfidenceColor: answer.ColorAmber, Excerpt: "b"},
	})
	lines := strings.Split(got, "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "Filing") || !strings.Contains(lines[1], "Memo") {
		t.Errorf("lines = %q", got)
	}
}
