package cadence

import "math/rand/v2"

// SelectVariant picks a variant uniformly among every index except lastUsed.
// A single-variant list always yields index 0 and an empty list yields -1.
// A lastUsed outside the list (such as domain.NoVariant) excludes nothing.
func SelectVariant(rng *rand.Rand, variants []string, lastUsed int) (string, int) {
	switch n := len(variants); {
	case n == 0:
		return "", -1
	case n == 1:
		return variants[0], 0
	case lastUsed < 0 || lastUsed >= n:
		idx := rng.IntN(n)
		return variants[idx], idx
	default:
		idx := rng.IntN(n - 1)
		if idx >= lastUsed {
			idx++
		}
		return variants[idx], idx
	}
}
