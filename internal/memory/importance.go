// Package memory maintains the long-term ledger of extracted facts:
// asynchronous ingest from completed turns, similarity dedup, importance
// scoring with recency decay, and the daily archival sweep.
package memory

import (
	"math"
	"time"
)

// ImportanceParams are the scoring knobs.
type ImportanceParams struct {
	HalfLife       time.Duration // recency decay half-life
	FrequencyScale float64       // saturation rate of the access boost
	RecencyWeight  float64       // blend between recency and frequency, in [0,1]
}

// Importance recomputes an entry's score in [0,1] at time now.
//
// Recency decays exponentially with the configured half-life; frequency is
// a saturating boost 1-exp(-scale*(accessCount-1)) so each extra access
// helps less than the previous one. The blend is monotonic in accessCount:
// holding recency fixed, more accesses never lower the score.
// User-flagged entries bypass decay entirely and pin at 1.
func Importance(lastAccessed time.Time, accessCount int, userFlagged bool, now time.Time, p ImportanceParams) float64 {
	if userFlagged {
		return 1.0
	}
	if accessCount < 1 {
		accessCount = 1
	}

	age := now.Sub(lastAccessed)
	if age < 0 {
		age = 0
	}
	halfLives := age.Seconds() / p.HalfLife.Seconds()
	recency := math.Exp2(-halfLives)

	frequency := 1 - math.Exp(-p.FrequencyScale*float64(accessCount-1))

	score := p.RecencyWeight*recency + (1-p.RecencyWeight)*frequency
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
