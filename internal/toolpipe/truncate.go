// Package toolpipe implements the Tool-Result Pipeline (spec §4.8) and
// inbound-image normalization (spec §4.9): every tool result and every
// user-provided image is run through the same text-truncation and
// image-normalization steps before it reaches a model call, so no tool
// author needs to defend against the model endpoint's size limits
// in-toolkit.
package toolpipe

import "fmt"

// DefaultMaxChars is the default text-block truncation limit (spec §4.8).
const DefaultMaxChars = 50000

// TruncateText slices text to maxChars (defaulting to DefaultMaxChars when
// maxChars <= 0) and appends a note describing how much was cut, exactly
// as spec §4.8 step 1 requires. Text already within the limit is returned
// unchanged.
func TruncateText(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if len(text) <= maxChars {
		return text
	}
	cut := len(text) - maxChars
	return text[:maxChars] + fmt.Sprintf("\n\n[truncated: original length %d chars, %d chars removed]", len(text), cut)
}
