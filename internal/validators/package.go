// Package validators enforces the length and charset constraints a package
// record must satisfy before anything is persisted or written to disk.
package validators

import (
	"regexp"

	"github.com/aopkg/aopkg-server/internal/store"
)

const (
	maxAuthorLength           = 30
	maxNameLength             = 30
	maxShortDescriptionLength = 100
	maxDescriptionHTMLLength  = 8000
	maxVersionLength          = 12
	maxBotVersionLength       = 50
	maxBotTypeLength          = 15
)

// Package names end up unescaped in filesystem paths and HTTP path
// segments for artifact retrieval, so the charset doubles as a
// path-traversal and injection guard.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidName reports whether a package name satisfies the charset
// restriction. Download lookups re-check this before touching the
// filesystem.
func ValidName(name string) bool {
	return len(name) <= maxNameLength && namePattern.MatchString(name)
}

// ValidPackage checks every field constraint on a candidate record and
// returns a single boolean. No partial validation: a record either passes
// all constraints or is rejected.
func ValidPackage(v *store.Version) bool {
	return len(v.Author) <= maxAuthorLength &&
		len(v.ShortDescription) <= maxShortDescriptionLength &&
		len(v.DescriptionHTML) <= maxDescriptionHTMLLength &&
		len(v.Version.String()) <= maxVersionLength &&
		len(v.BotVersion.String()) <= maxBotVersionLength &&
		len(v.BotType.String()) <= maxBotTypeLength &&
		ValidName(v.Name)
}
