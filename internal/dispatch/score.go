package dispatch

// Candidate is a handler that accepted a query, with its selection score.
type Candidate struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`

	unit *unit
}

// scoreHandler computes a candidate's selection score from its historical
// counters and the handler-declared specialization bonus.
func scoreHandler(stats HandlerStats, bonus, fastLatencyMs float64) float64 {
	score := 1.0

	if stats.Requests > 0 {
		if stats.AvgLatencyMs < fastLatencyMs {
			score += 0.5
		}
		score += stats.CacheHitRatio() * 0.3
	}

	return score + bonus
}

// computeConfidence derives the response confidence from cache status,
// latency and the handler-declared confidence bonus, clamped to [0, 1].
func computeConfidence(cached bool, latencyMs, bonus float64) float64 {
	confidence := 0.5

	if cached {
		confidence += 0.3
	}
	if latencyMs < ConfidentLatencyMs {
		confidence += 0.2
	}
	confidence += bonus

	return clamp(confidence, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
