package cadence

import (
	"math/rand/v2"
	"time"
)

const (
	// PauseEvery inserts a long pause before every 15th send of a pass.
	PauseEvery = 15

	minFirstDelay = time.Second
	maxFirstDelay = 30 * time.Second
	minLongPause  = 600 * time.Second
	maxLongPause  = 1200 * time.Second
)

// BuildPlan returns one delay per lead for a dispatch pass. The first delay is
// between 1s and 30s so campaigns never fire on the same instant. Lead i > 0
// waits a random interval in [minSec, maxSec] multiplied by i, and every 15th
// lead gets an extra 600-1200s pause that carries over to the rest of the
// pass. The result is non-decreasing.
func BuildPlan(rng *rand.Rand, n, minSec, maxSec int) []time.Duration {
	if n <= 0 {
		return nil
	}
	if minSec > maxSec {
		minSec, maxSec = maxSec, minSec
	}
	if minSec < 0 {
		minSec = 0
	}

	plan := make([]time.Duration, n)
	plan[0] = uniform(rng, minFirstDelay, maxFirstDelay)

	var pauses time.Duration
	for i := 1; i < n; i++ {
		interval := uniform(rng, time.Duration(minSec)*time.Second, time.Duration(maxSec)*time.Second)
		d := interval*time.Duration(i) + pauses
		floor := plan[i-1]

		if (i+1)%PauseEvery == 0 {
			pause := uniform(rng, minLongPause, maxLongPause)
			pauses += pause
			d += pause
			floor += pause
		}
		if d < floor {
			d = floor
		}
		plan[i] = d
	}
	return plan
}

// uniform returns a random duration in [lo, hi] at millisecond resolution.
func uniform(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	loMs, hiMs := lo.Milliseconds(), hi.Milliseconds()
	if hiMs <= loMs {
		return lo
	}
	return time.Duration(loMs+rng.Int64N(hiMs-loMs+1)) * time.Millisecond
}

// TypingDelay is the randomized pause before an automatic reply goes out.
func TypingDelay(rng *rand.Rand) time.Duration {
	return uniform(rng, 30*time.Second, 180*time.Second)
}
