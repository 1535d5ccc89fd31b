package answer

import "testing"

func TestDecide(t *testing.T) {
	tests := []struct {
		name            string
		score           float64
		explicitSilence bool
		want            string
	}{
		{"well above threshold", 0.90, false, KindAnswer},
		{"exactly at threshold", 0.65, false, KindAnswer},
		{"just below threshold", 0.6499, false, KindSilence},
		{"low confidence", 0.40, false, KindSilence},
		{"zero", 0, false, KindSilence},
		{"explicit silence overrides high score", 0.99, true, KindSilence},
		{"explicit silence with low score", 0.10, true, KindSilence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.score, tt.explicitSilence, DefaultThreshold); got != tt.want {
				t.Errorf("Decide(%v, %v) = %q, want %q", tt.score, tt.explicitSilence, got, tt.want)
			}
		})
	}
}

func TestDecideThresholdBoundary(t *testing.T) {
	// Answer iff score >= threshold, across a sweep of scores.
	for i := 0; i <= 100; i++ {
		score := float64(i) / 100
		got := Decide(score, false, DefaultThreshold)
		want := KindSilence
		if score >= DefaultThreshold {
			want = KindAnswer
		}
		if got != want {
			t.Fatalf("Decide(%v) = %q, want %q", score, got, want)
		}
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		score     float64
		wantLevel string
		wantColor string
	}{
		{0.99, LevelHigh, ColorGreen},
		{0.85, LevelHigh, ColorGreen},
		{0.8499, LevelMedium, ColorAmber},
		{0.70, LevelMedium, ColorAmber},
		{0.6999, LevelLow, ColorRed},
		{0.30, LevelLow, ColorRed},
		{0, LevelLow, ColorRed},
	}
	for _, tt := range tests {
		level, color := TierFor(tt.score)
		if level != tt.wantLevel || color != tt.wantColor {
			t.Errorf("TierFor(%v) = %s/%s, want %s/%s", tt.score, level, color, tt.wantLevel, tt.wantColor)
		}
	}
}

func TestSilenceCarriesNoCitations(t *testing.T) {
	d := NewSilence("not confident enough to answer", []string{"try rephrasing"})
	if d.Kind != KindSilence {
		t.Fatalf("kind = %q", d.Kind)
	}
	if len(d.Citations) != 0 || d.Text != "" {
		t.Error("silence decision must carry no citations and no answer body")
	}
}
