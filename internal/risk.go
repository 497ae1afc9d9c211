package internal

// RiskWeights holds the additive penalties applied by ScoreRisk.
type RiskWeights struct {
	MissingIP        int
	MissingUserAgent int
}

// ScoreRisk computes the heuristic risk score for a connection attempt.
// Deterministic, side-effect free, capped at 100.
func ScoreRisk(clientIP, userAgent string, w RiskWeights) int {
	score := 0

	if clientIP == "" || clientIP == "unknown" {
		score += w.MissingIP
	}
	if userAgent == "" {
		score += w.MissingUserAgent
	}

	return ClampRisk(score)
}

// ClampRisk bounds a risk score to the [0, 100] range.
func ClampRisk(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
