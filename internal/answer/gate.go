package answer

// DefaultThreshold is the reply-pipeline silence threshold. It is a
// separate knob from the citation tier boundaries in TierFor.
const DefaultThreshold = 0.65

// Decide applies the silence policy: silence when the backend asked for it
// explicitly, or when overall confidence falls below the threshold. Pure —
// the caller attaches citations (answers) or reasoning text (silence).
func Decide(confidenceScore float64, explicitSilence bool, threshold float64) string {
	if explicitSilence || confidenceScore < threshold {
		return KindSilence
	}
	return KindAnswer
}

// Citation tier boundaries (inclusive lower bounds).
const (
	tierGreenMin = 0.85
	tierAmberMin = 0.70
)

// TierFor classifies a single citation score for display.
func TierFor(score float64) (level, color string) {
	switch {
	case score >= tierGreenMin:
		return LevelHigh, ColorGreen
	case score >= tierAmberMin:
		return LevelMedium, ColorAmber
	default:
		return LevelLow, ColorRed
	}
}
