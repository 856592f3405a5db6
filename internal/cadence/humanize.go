package cadence

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxTransforms caps how many perturbations a single message receives.
const MaxTransforms = 2

var (
	greetingSets = [][]string{
		{"Olá", "Oi", "Opa"},
		{"Bom dia", "Boa tarde"},
		{"Hello", "Hi", "Hey"},
	}
	howAreYouSets = [][]string{
		{"tudo bem", "tudo certo", "como vai"},
		{"how are you", "how's it going", "how are things"},
	}
	emojis = []string{"😊", "🙂", "👋"}

	// howAreYouPatterns mirrors howAreYouSets as case-insensitive matchers
	// so positions index the original text.
	howAreYouPatterns = compileFolded(howAreYouSets)
)

// transform rewrites text or returns it unchanged when its pattern is absent.
type transform func(rng *rand.Rand, text string) string

var transforms = []transform{
	swapGreeting,
	swapHowAreYou,
	togglePunctuation,
	toggleEmoji,
	toggleFirstLetterCase,
}

// Humanizer applies light random perturbations to outbound text so repeated
// sends do not share a literal fingerprint.
type Humanizer struct {
	rng *rand.Rand
}

// NewHumanizer creates a humanizer drawing from rng.
func NewHumanizer(rng *rand.Rand) *Humanizer {
	return &Humanizer{rng: rng}
}

// Humanize applies between zero and two distinct transforms to text.
func (h *Humanizer) Humanize(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	n := h.rng.IntN(MaxTransforms + 1)
	for _, idx := range h.rng.Perm(len(transforms))[:n] {
		text = transforms[idx](h.rng, text)
	}
	return text
}

func swapGreeting(rng *rand.Rand, text string) string {
	for _, set := range greetingSets {
		for i, g := range set {
			if !hasWordPrefix(text, g) {
				continue
			}
			return pickOther(rng, set, i) + text[len(g):]
		}
	}
	return text
}

func swapHowAreYou(rng *rand.Rand, text string) string {
	for s, set := range howAreYouSets {
		for i := range set {
			loc := howAreYouPatterns[s][i].FindStringIndex(text)
			if loc == nil {
				continue
			}
			repl := pickOther(rng, set, i)
			if isUpperAt(text, loc[0]) {
				repl = upperFirst(repl)
			}
			return text[:loc[0]] + repl + text[loc[1]:]
		}
	}
	return text
}

func togglePunctuation(_ *rand.Rand, text string) string {
	trimmed := strings.TrimRightFunc(text, unicode.IsSpace)
	switch {
	case strings.HasSuffix(trimmed, "!"):
		return trimmed[:len(trimmed)-1] + "?"
	case strings.HasSuffix(trimmed, "?"):
		return trimmed[:len(trimmed)-1] + "!"
	}
	return text
}

func toggleEmoji(rng *rand.Rand, text string) string {
	trimmed := strings.TrimRightFunc(text, unicode.IsSpace)
	for _, e := range emojis {
		if strings.HasSuffix(trimmed, e) {
			return strings.TrimRightFunc(strings.TrimSuffix(trimmed, e), unicode.IsSpace)
		}
	}
	return trimmed + " " + emojis[rng.IntN(len(emojis))]
}

func toggleFirstLetterCase(_ *rand.Rand, text string) string {
	r, size := utf8.DecodeRuneInString(text)
	if r == utf8.RuneError || !unicode.IsLetter(r) {
		return text
	}
	if unicode.IsUpper(r) {
		return string(unicode.ToLower(r)) + text[size:]
	}
	return string(unicode.ToUpper(r)) + text[size:]
}

// hasWordPrefix matches prefix at the start of text, case-insensitively,
// followed by a non-letter or the end of the text.
func hasWordPrefix(text, prefix string) bool {
	if len(text) < len(prefix) || !strings.EqualFold(text[:len(prefix)], prefix) {
		return false
	}
	if len(text) == len(prefix) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[len(prefix):])
	return !unicode.IsLetter(r)
}

func compileFolded(sets [][]string) [][]*regexp.Regexp {
	out := make([][]*regexp.Regexp, len(sets))
	for i, set := range sets {
		for _, phrase := range set {
			out[i] = append(out[i], regexp.MustCompile("(?i)"+regexp.QuoteMeta(phrase)))
		}
	}
	return out
}

func pickOther(rng *rand.Rand, set []string, current int) string {
	idx := rng.IntN(len(set) - 1)
	if idx >= current {
		idx++
	}
	return set[idx]
}

func isUpperAt(text string, pos int) bool {
	r, _ := utf8.DecodeRuneInString(text[pos:])
	return unicode.IsUpper(r)
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
