package registry

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mbolis/quick-forms/apperr"
)

var reNoIdent = regexp.MustCompile(`\W+`)

// Slugify derives an option key candidate from a label: lowercase,
// non-identifier runs collapsed to a single underscore, leading and
// trailing separators trimmed.
func Slugify(label string) string {
	slug := strings.ToLower(label)
	slug = reNoIdent.ReplaceAllLiteralString(slug, " ")
	slug = strings.Join(strings.Fields(slug), "_")
	if slug == "" {
		slug = "opt"
	}
	return slug
}

// MintKeys turns a batch of initial labels into keys. Collisions
// within the batch are disambiguated with a numeric suffix derived
// from occurrence order, so the result is a pure function of the
// input. If two keys still collide after disambiguation the whole
// batch is rejected.
func MintKeys(labels []string) ([]string, error) {
	candidates := make([]string, len(labels))
	for i, label := range labels {
		candidates[i] = Slugify(label)
	}

	keys := make([]string, len(labels))
	for i, candidate := range candidates {
		n := 0
		for _, prev := range candidates[:i] {
			if prev == candidate {
				n++
			}
		}
		if n > 0 {
			keys[i] = fmt.Sprintf("%s__%d", candidate, n)
		} else {
			keys[i] = candidate
		}
	}

	seen := map[string]int{}
	for i, key := range keys {
		if j, dup := seen[key]; dup {
			return nil, apperr.Validation(
				"option labels %q and %q map to the same key %q",
				labels[j], labels[i], key,
			)
		}
		seen[key] = i
	}
	return keys, nil
}
