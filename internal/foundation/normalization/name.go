package normalization

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var segmentReplacer = strings.NewReplacer(
	" ", "-",
	"'", "",
	".", "",
)

// Name maps a catalog display name to a filesystem path segment: lower-cased,
// spaces become hyphens, apostrophes and periods are dropped and runs of
// hyphens collapse to one.
//
// Name is not injective ("Jet Black" and "Jet-Black" share a segment), so it
// must never be used to match entities. Callers that build sibling paths
// must check for collisions, including names that normalize to "".
func Name(name string) string {
	// cases.Caser is not safe for concurrent use; Name runs inside pool workers.
	s := cases.Lower(language.Und).String(name)
	s = segmentReplacer.Replace(s)
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return s
}
