package specialist

import (
	"regexp"
	"strings"
)

var (
	destinationPattern = regexp.MustCompile(`\b(?:to|in|at|for|visit|visiting|about)\s+([A-Z][a-zA-Z]+(?:\s[A-Z][a-zA-Z]+)?)`)
	originPattern      = regexp.MustCompile(`\bfrom\s+([A-Z][a-zA-Z]+(?:\s[A-Z][a-zA-Z]+)?)`)
)

// Capitalised words that follow "to" or "for" without naming a place.
var notPlaces = map[string]struct{}{
	"book": {}, "find": {}, "get": {}, "go": {}, "i": {}, "me": {}, "my": {}, "rent": {}, "the": {}, "travel": {},
}

// destinationCity finds the first capitalised place after "to", "in" and
// similar words. Empty when nothing looks like a city.
func destinationCity(texts ...string) string {
	return firstPlace(destinationPattern, texts)
}

func originCity(texts ...string) string {
	return firstPlace(originPattern, texts)
}

func firstPlace(re *regexp.Regexp, texts []string) string {
	for _, text := range texts {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			place := strings.TrimSpace(m[1])
			first, _, _ := strings.Cut(place, " ")
			if _, skip := notPlaces[strings.ToLower(first)]; skip {
				continue
			}
			return place
		}
	}
	return ""
}
