package task

import (
	"regexp"
	"strings"

	"github.com/taskrelay/taskrelay/internal/store"
)

// tagPattern matches {{key: value}} directives. Keys are normalized to
// lower case; values run to the closing delimiter and are trimmed.
var tagPattern = regexp.MustCompile(`\{\{\s*([A-Za-z][A-Za-z0-9_-]*)\s*:\s*([^{}]*?)\s*\}\}`)

// Parse extracts directive tags from all blocks and the execution trigger
// from the last block. Malformed directives are skipped, never an error.
// Duplicate keys: the later occurrence wins.
func Parse(blocks []store.ContentBlock) (map[string]string, *Trigger) {
	tags := make(map[string]string)
	for _, block := range blocks {
		for _, m := range tagPattern.FindAllStringSubmatch(block.Text, -1) {
			key := strings.ToLower(m[1])
			value := strings.TrimSpace(m[2])
			if value == "" {
				continue
			}
			tags[key] = value
		}
	}

	if len(blocks) == 0 {
		return tags, nil
	}
	return tags, parseTrigger(blocks[len(blocks)-1].Text)
}

// parseTrigger recognizes a block beginning with "execute", or "continue"
// followed by an optional separator and free-text prompt. Matching is
// case-insensitive since tasks are authored by hand.
func parseTrigger(text string) *Trigger {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	if strings.HasPrefix(lower, "execute") {
		rest := trimmed[len("execute"):]
		if rest == "" || isSeparator(rest[0]) {
			return &Trigger{Kind: TriggerExecute}
		}
		return nil
	}

	if strings.HasPrefix(lower, "continue") {
		rest := trimmed[len("continue"):]
		if rest == "" {
			return &Trigger{Kind: TriggerContinue}
		}
		if isSeparator(rest[0]) {
			return &Trigger{Kind: TriggerContinue, Prompt: strings.TrimSpace(strings.TrimLeft(rest, " \t:-"))}
		}
		return nil
	}

	return nil
}

func isSeparator(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == ':' || c == '-' || c == ','
}

// BodyText joins block texts with directive tags stripped, used as the
// backend prompt for a fresh run.
func BodyText(blocks []store.ContentBlock) string {
	var parts []string
	for _, block := range blocks {
		text := strings.TrimSpace(tagPattern.ReplaceAllString(block.Text, ""))
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n")
}
