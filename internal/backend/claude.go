package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Claude runs the claude CLI in print mode inside the task's workspace,
// parsing its stream-json output into progress chunks.
type Claude struct{}

// NewClaude creates the default lightweight backend.
func NewClaude() *Claude {
	return &Claude{}
}

// Name implements Backend.
func (c *Claude) Name() string { return "claude" }

// streamEvent is one line of claude CLI stream-json output.
type streamEvent struct {
	Type  string `json:"type"`
	Event struct {
		Type  string `json:"type"`
		Index int    `json:"index"`
		Delta struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"delta,omitempty"`
	} `json:"event,omitempty"`
	Result struct {
		IsError bool   `json:"is_error,omitempty"`
		Error   string `json:"error,omitempty"`
	} `json:"result,omitempty"`
}

// Invoke implements Backend.
func (c *Claude) Invoke(ctx context.Context, p Payload, progress ProgressFunc) (*Result, error) {
	output, err := runClaudeStreaming(ctx, p.WorkspacePath, p.Model, p.Prompt, progress)
	if err != nil {
		return nil, err
	}
	return interpretOutput(output), nil
}

// runClaudeStreaming spawns one claude invocation and streams its text
// deltas through progress, returning the accumulated output.
func runClaudeStreaming(ctx context.Context, dir, model, prompt string, progress ProgressFunc) (string, error) {
	// -p enables print mode (non-interactive); permissions are skipped
	// because nobody is at the terminal to approve them.
	cmd := exec.CommandContext(ctx, "claude", "-p",
		"--dangerously-skip-permissions",
		"--output-format", "stream-json",
		"--model", model,
		prompt)
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start command: %w", err)
	}

	var stderrOutput strings.Builder
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			stderrOutput.WriteString(scanner.Text())
			stderrOutput.WriteString("\n")
		}
	}()

	var outputBuilder strings.Builder
	var resultErr string
	scanner := bufio.NewScanner(stdout)
	// Large buffer for long JSON lines.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if msg, isErr := parseResultError(line); isErr {
			resultErr = msg
			continue
		}
		if text := parseStreamLine(line); text != "" {
			outputBuilder.WriteString(text)
			if progress != nil {
				progress(text)
			}
		}
	}

	cmdErr := cmd.Wait()
	<-stderrDone

	if cmdErr != nil {
		errMsg := cmdErr.Error()
		if stderrOutput.Len() > 0 {
			errMsg = fmt.Sprintf("%s\n%s", errMsg, stderrOutput.String())
		}
		return outputBuilder.String(), fmt.Errorf("claude exited: %s", errMsg)
	}
	// The CLI may exit zero while reporting failure in its result event.
	if resultErr != "" {
		return outputBuilder.String(), fmt.Errorf("claude reported error: %s", resultErr)
	}
	return outputBuilder.String(), nil
}

// parseStreamLine extracts text content from a stream-json line. Non-JSON
// lines are ignored.
func parseStreamLine(line string) string {
	var event streamEvent
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		return ""
	}
	if event.Type == "stream_event" &&
		event.Event.Type == "content_block_delta" &&
		event.Event.Delta.Type == "text_delta" {
		return event.Event.Delta.Text
	}
	return ""
}

// parseResultError extracts the error message from a terminal result event
// with is_error set.
func parseResultError(line string) (string, bool) {
	var event streamEvent
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		return "", false
	}
	if event.Type != "result" || !event.Result.IsError {
		return "", false
	}
	msg := event.Result.Error
	if msg == "" {
		msg = "unknown error"
	}
	return msg, true
}

// interpretOutput turns accumulated CLI output into a terminal result,
// recognizing the human-input marker on the final non-empty line.
func interpretOutput(output string) *Result {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, needsHumanMarker) {
			return &Result{
				Outcome: OutcomeNeedsHuman,
				Output:  output,
			}
		}
		break
	}
	return &Result{Outcome: OutcomeSuccess, Output: output}
}
