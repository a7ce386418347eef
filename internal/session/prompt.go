package session

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

// PromptInputs holds every ingredient spec §4.1 step 7 lists for system
// prompt assembly.
type PromptInputs struct {
	BootstrapContext string // concatenation of AGENTS.md/SOUL.md/USER.md/TOOLS.md/IDENTITY.md
	WorkspacePaths   []string
	LongTermMemory   string // MEMORY.md content
	StructuredMemory string // formatted <core_memory> block from the structured MemoryStore
	Skills           []SkillSummary
	SandboxNotes     string
	ChannelContext   string
	Input            InboundMessage
}

// SkillSummary is the minimal projection of a loaded skill the prompt needs.
type SkillSummary struct {
	Name        string
	Description string
}

// AssembleSystemPrompt builds the system prompt for one turn from the
// ingredients spec §4.1 step 7 names: bootstrap context, workspace notes,
// long-term memory, skills, runtime facts, sandbox notes, subagent guidance,
// channel context, and the optional extra prompt used by subagent mode.
func AssembleSystemPrompt(in PromptInputs) string {
	var b strings.Builder

	if in.BootstrapContext != "" {
		b.WriteString(in.BootstrapContext)
		b.WriteString("\n\n")
	}

	if len(in.WorkspacePaths) > 0 {
		b.WriteString("Workspace paths:\n")
		for _, p := range in.WorkspacePaths {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		b.WriteString("\n")
	}

	if strings.TrimSpace(in.LongTermMemory) != "" {
		b.WriteString("Long-term memory (MEMORY.md):\n")
		b.WriteString(in.LongTermMemory)
		b.WriteString("\n\n")
	}

	if strings.TrimSpace(in.StructuredMemory) != "" {
		b.WriteString(in.StructuredMemory)
		b.WriteString("\n\n")
	}

	if len(in.Skills) > 0 {
		b.WriteString("Available skills:\n")
		for _, s := range in.Skills {
			fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Runtime: os=%s time=%s\n\n", runtime.GOOS, time.Now().UTC().Format(time.RFC3339))

	if wd, err := os.Getwd(); err == nil {
		fmt.Fprintf(&b, "cwd: %s\n\n", wd)
	}

	if in.SandboxNotes != "" {
		b.WriteString(in.SandboxNotes)
		b.WriteString("\n\n")
	}

	if in.Input.IsSubagent {
		b.WriteString(subagentGuidance(in.Input.Depth))
		b.WriteString("\n\n")
	}

	if in.ChannelContext != "" {
		b.WriteString(in.ChannelContext)
		b.WriteString("\n\n")
	}

	if in.Input.ExtraPrompt != "" {
		b.WriteString(in.Input.ExtraPrompt)
	}

	return strings.TrimSpace(b.String())
}

// subagentGuidance is the system-prompt suffix identifying a turn as running
// inside a subagent: it forbids user-facing scheduling/greeting behavior and
// states whether further spawning is available.
func subagentGuidance(depth int) string {
	guidance := "You are running as a subagent handling a delegated task. Do not schedule jobs or greet the user; report your result concisely when done."
	return guidance + fmt.Sprintf(" Current depth: %d.", depth)
}

// BootstrapFileNames lists the fixed, optional root-level markdown files
// whose concatenation forms BootstrapContext (spec §3, "Skills &
// BootstrapContext").
var BootstrapFileNames = []string{"AGENTS.md", "SOUL.md", "USER.md", "TOOLS.md", "IDENTITY.md", "CLAUDE.md"}

// LoadBootstrapContext reads every present BootstrapFileNames entry under
// workspaceDir and concatenates them in order, separated by blank lines.
func LoadBootstrapContext(workspaceDir string) string {
	var parts []string
	for _, name := range BootstrapFileNames {
		data, err := os.ReadFile(workspaceDir + string(os.PathSeparator) + name)
		if err != nil {
			continue
		}
		content := strings.TrimSpace(string(data))
		if content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, "\n\n")
}
