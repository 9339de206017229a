package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskrelay/taskrelay/internal/store"
)

func blocks(texts ...string) []store.ContentBlock {
	out := make([]store.ContentBlock, 0, len(texts))
	for _, t := range texts {
		out = append(out, store.ContentBlock{Type: "paragraph", Text: t})
	}
	return out
}

func TestParseTags(t *testing.T) {
	tags, _ := Parse(blocks(
		"Fix the login bug {{worktree: login-fix}}",
		"{{model: opus}} some more detail {{app: web}}",
	))

	assert.Equal(t, map[string]string{
		"worktree": "login-fix",
		"model":    "opus",
		"app":      "web",
	}, tags)
}

func TestParseTagsCaseInsensitiveKeys(t *testing.T) {
	tags, _ := Parse(blocks("{{Model: opus}} {{WORKFLOW: plan}}"))

	assert.Equal(t, "opus", tags["model"])
	assert.Equal(t, "plan", tags["workflow"])
}

func TestParseTagsLastOccurrenceWins(t *testing.T) {
	tags, _ := Parse(blocks(
		"{{model: haiku}}",
		"{{model: opus}}",
	))

	assert.Equal(t, "opus", tags["model"])
}

func TestParseTagsMalformedOmitted(t *testing.T) {
	tags, _ := Parse(blocks(
		"{{model opus}} {{: value}} {{model:}} {{  }} {unclosed",
		"{{model:   }}",
	))

	assert.Empty(t, tags)
}

func TestParseTagsUnrecognizedKeysPreserved(t *testing.T) {
	tags, _ := Parse(blocks("{{priority: high}}"))

	assert.Equal(t, "high", tags["priority"])
}

func TestParseTriggerExecute(t *testing.T) {
	_, trigger := Parse(blocks("do the thing", "execute"))

	require.NotNil(t, trigger)
	assert.Equal(t, TriggerExecute, trigger.Kind)
}

func TestParseTriggerExecuteCaseInsensitive(t *testing.T) {
	_, trigger := Parse(blocks("Execute"))

	require.NotNil(t, trigger)
	assert.Equal(t, TriggerExecute, trigger.Kind)
}

func TestParseTriggerContinueWithPrompt(t *testing.T) {
	_, trigger := Parse(blocks("body", "continue: use the staging database instead"))

	require.NotNil(t, trigger)
	assert.Equal(t, TriggerContinue, trigger.Kind)
	assert.Equal(t, "use the staging database instead", trigger.Prompt)
}

func TestParseTriggerBareContinue(t *testing.T) {
	_, trigger := Parse(blocks("continue"))

	require.NotNil(t, trigger)
	assert.Equal(t, TriggerContinue, trigger.Kind)
	assert.Empty(t, trigger.Prompt)
}

func TestParseTriggerOnlyLastBlockCounts(t *testing.T) {
	_, trigger := Parse(blocks("execute", "just notes"))

	assert.Nil(t, trigger)
}

func TestParseTriggerNoFalsePrefixMatch(t *testing.T) {
	// "executed" and "continuous" are not triggers.
	_, trigger := Parse(blocks("executed the test plan yesterday"))
	assert.Nil(t, trigger)

	_, trigger = Parse(blocks("continuous deployment is enabled"))
	assert.Nil(t, trigger)
}

func TestParseEmptyBlocks(t *testing.T) {
	tags, trigger := Parse(nil)

	assert.Empty(t, tags)
	assert.Nil(t, trigger)
}

func TestBodyTextStripsDirectives(t *testing.T) {
	text := BodyText(blocks(
		"Fix the bug {{model: opus}}",
		"{{worktree: x}}",
		"More detail",
	))

	assert.Equal(t, "Fix the bug\nMore detail", text)
}

func TestPromptExcludesTriggerBlock(t *testing.T) {
	tk := FromRecord(store.TaskRecord{ID: "t1", Status: store.StatusNotStarted},
		blocks("please fix the login bug", "execute"))

	assert.Equal(t, "please fix the login bug", tk.Prompt())
}

func TestPromptUsesContinueText(t *testing.T) {
	tk := FromRecord(store.TaskRecord{ID: "t1", Status: store.StatusHilReview},
		blocks("original body", "continue: retry with verbose logging"))

	assert.Equal(t, "retry with verbose logging", tk.Prompt())
}
