// Package render converts package README markdown into sanitized HTML.
package render

import (
	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

// policy is immutable after construction and safe for concurrent use.
var policy = bluemonday.UGCPolicy()

// ToHTML renders markdown to sanitized HTML. It is total: malformed
// markdown degrades to whatever the renderer produces, never an error.
func ToHTML(markdown string) string {
	unsafe := blackfriday.Run([]byte(markdown),
		blackfriday.WithExtensions(blackfriday.CommonExtensions))
	return string(policy.SanitizeBytes(unsafe))
}
