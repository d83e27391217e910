package textsim

var negations = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "don": {}, "dont": {}, "doesn": {}, "doesnt": {},
	"isn": {}, "isnt": {}, "shouldn": {}, "shouldnt": {}, "won": {}, "wont": {},
	"cannot": {}, "avoid": {}, "stop": {}, "without": {}, "nor": {},
}

// Negated reports whether s contains an odd number of negation words.
func Negated(s string) bool {
	n := 0
	for _, w := range Words(s) {
		if _, ok := negations[w]; ok {
			n++
		}
	}
	return n%2 == 1
}

// SamePolarity reports whether a and b are both affirmative or both negated.
func SamePolarity(a, b string) bool {
	return Negated(a) == Negated(b)
}

// antonyms pairs opposite verbs and qualifiers. Each pair is listed once.
var antonyms = [][2]string{
	{"enable", "disable"},
	{"enabled", "disabled"},
	{"always", "never"},
	{"use", "avoid"},
	{"allow", "forbid"},
	{"allow", "deny"},
	{"add", "remove"},
	{"include", "exclude"},
	{"sync", "async"},
	{"synchronous", "asynchronous"},
	{"mutable", "immutable"},
	{"required", "optional"},
	{"prefer", "avoid"},
	{"accept", "reject"},
	{"start", "stop"},
	{"true", "false"},
	{"before", "after"},
	{"increase", "decrease"},
	{"public", "private"},
}

// HasAntonymPair reports whether one text uses a word whose opposite appears
// only in the other text.
func HasAntonymPair(a, b string) bool {
	wa := wordSet(a)
	wb := wordSet(b)
	for _, p := range antonyms {
		if opposes(wa, wb, p[0], p[1]) || opposes(wa, wb, p[1], p[0]) {
			return true
		}
	}
	return false
}

func opposes(a, b map[string]struct{}, x, y string) bool {
	_, ax := a[x]
	_, ay := a[y]
	_, bx := b[x]
	_, by := b[y]
	return ax && !ay && by && !bx
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range Words(s) {
		set[w] = struct{}{}
	}
	return set
}

var polarWords = func() map[string]struct{} {
	set := make(map[string]struct{}, len(antonyms)*2)
	for _, p := range antonyms {
		set[p[0]] = struct{}{}
		set[p[1]] = struct{}{}
	}
	return set
}()

// IsPolarWord reports whether w is one side of a known antonym pair.
func IsPolarWord(w string) bool {
	_, ok := polarWords[w]
	return ok
}
