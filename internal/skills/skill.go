package skills

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Skill is one workspace/skills/*/SKILL.md entry (spec: skills are
// {name, content} pairs fed into prompt assembly). Metadata carries the
// full parsed frontmatter map so checkEligibility can read nested
// requirement keys (e.g. openclaw.requires.anyBins) without a fixed schema.
type Skill struct {
	Name          string
	Description   string
	Compatibility string
	Bins          []string
	Content       string
	Metadata      map[string]any

	SourceDir string
	Source    string
}

// ParseSkillMD parses a SKILL.md file: a "---"-delimited YAML frontmatter
// block followed by a markdown body, which becomes Content.
func ParseSkillMD(data []byte) (Skill, error) {
	frontmatter, body, err := splitFrontmatter(data)
	if err != nil {
		return Skill{}, err
	}

	var meta map[string]any
	if len(frontmatter) > 0 {
		if err := yaml.Unmarshal(frontmatter, &meta); err != nil {
			return Skill{}, fmt.Errorf("parse SKILL.md frontmatter: %w", err)
		}
	}
	if meta == nil {
		meta = map[string]any{}
	}

	s := Skill{
		Name:          metaString(meta, "name"),
		Description:   metaString(meta, "description"),
		Compatibility: metaString(meta, "compatibility"),
		Bins:          anyToStringSlice(meta["bins"]),
		Content:       strings.TrimSpace(string(body)),
		Metadata:      meta,
	}
	return s, nil
}

// splitFrontmatter separates a leading "---\n...\n---\n" YAML block from the
// rest of the document. A file with no frontmatter delimiter is returned
// whole as the body.
func splitFrontmatter(data []byte) (frontmatter, body []byte, err error) {
	trimmed := bytes.TrimLeft(data, "\ufeff")
	if !bytes.HasPrefix(trimmed, []byte("---\n")) && !bytes.HasPrefix(trimmed, []byte("---\r\n")) {
		return nil, trimmed, nil
	}
	rest := trimmed[bytes.IndexByte(trimmed, '\n')+1:]
	end := bytes.Index(rest, []byte("\n---\n"))
	endLen := 5
	if end < 0 {
		end = bytes.Index(rest, []byte("\n---\r\n"))
		endLen = 6
	}
	if end < 0 {
		return nil, nil, fmt.Errorf("unterminated SKILL.md frontmatter")
	}
	return rest[:end], rest[end+endLen:], nil
}

func metaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
