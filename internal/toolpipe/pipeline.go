package toolpipe

import (
	"encoding/base64"

	"github.com/stewardhq/steward/internal/safety"
	"github.com/stewardhq/steward/internal/session"
)

var leakDetector = safety.NewLeakDetector()

// ProcessToolResult runs every block in content through the Tool-Result
// Pipeline (spec §4.8): text blocks are truncated to maxChars, image blocks
// are decoded/oriented/rescaled to the size grid, and any image that fails
// to decode is replaced in place by a text block explaining why. Every tool
// author gets this for free; none needs to defend against endpoint size
// limits itself.
func ProcessToolResult(content []session.Block, maxChars int) []session.Block {
	out := make([]session.Block, 0, len(content))
	for _, b := range content {
		switch b.Kind {
		case session.BlockText:
			b.Text = annotateLeaks(TruncateText(b.Text, maxChars))
			out = append(out, b)
		case session.BlockImage:
			out = append(out, normalizeImageBlock(b))
		default:
			out = append(out, b)
		}
	}
	return out
}

// ProcessInboundImages normalizes every image block on an inbound user
// message (spec §4.9) the same way ProcessToolResult does for tool output.
func ProcessInboundImages(images []session.Block) []session.Block {
	out := make([]session.Block, 0, len(images))
	for _, b := range images {
		if b.Kind != session.BlockImage {
			out = append(out, b)
			continue
		}
		out = append(out, normalizeImageBlock(b))
	}
	return out
}

// annotateLeaks appends a warning note when text contains a pattern that
// looks like a leaked secret (API key, bearer token, private key, ...), so
// the model sees the same signal an operator reviewing raw tool output
// would. It never modifies or drops the underlying text; shared.Redact,
// applied separately by tools that emit shell/process output, is what
// actually masks the value.
func annotateLeaks(text string) string {
	warnings := leakDetector.Scan(text)
	if len(warnings) == 0 {
		return text
	}
	seen := make(map[string]bool, len(warnings))
	var kinds []string
	for _, w := range warnings {
		if !seen[w.Pattern] {
			seen[w.Pattern] = true
			kinds = append(kinds, w.Pattern)
		}
	}
	note := "\n\n[warning: this output may contain a leaked secret ("
	for i, k := range kinds {
		if i > 0 {
			note += ", "
		}
		note += k
	}
	note += ")]"
	return text + note
}

func normalizeImageBlock(b session.Block) session.Block {
	raw, err := base64.StdEncoding.DecodeString(b.ImageData)
	if err != nil {
		return session.Block{Kind: session.BlockText, Text: "[image block had invalid base64 data and was dropped]"}
	}

	res := NormalizeImage(raw, b.ImageMimeType)
	if res.TextFallback != "" {
		return session.Block{Kind: session.BlockText, Text: res.TextFallback}
	}

	b.ImageData = base64.StdEncoding.EncodeToString(res.Data)
	b.ImageMimeType = res.MediaType
	return b
}
