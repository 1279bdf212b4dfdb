// Package agent hosts the language-model agents behind the workflow
// ports: lead scoring, outreach drafting, slot extraction, and call
// analysis. Every agent degrades to a deterministic fallback when no
// model is configured, so the pipeline stays runnable without an API key.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	adkagent "google.golang.org/adk/agent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"acquisition_backend/platform/ai/kimi"
	"acquisition_backend/platform/config"
)

const (
	maxContactNotes  = 2000
	maxReplyLength   = 4000
	maxTranscriptLen = 24000
	userDataBegin    = "<<<BEGIN_USER_DATA>>>"
	userDataEnd      = "<<<END_USER_DATA>>>"
)

// sanitizeUserInput strips control characters and truncates, so a hostile
// contact field cannot smuggle instructions or blow the context window.
func sanitizeUserInput(s string, maxLen int) string {
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sb.WriteRune(r)
	}
	result := sb.String()
	if len(result) > maxLen {
		result = result[:maxLen] + "... [truncated]"
	}
	return result
}

// wrapUserData isolates user-provided content from instructions.
func wrapUserData(content string) string {
	return fmt.Sprintf("%s\n%s\n%s", userDataBegin, content, userDataEnd)
}

func newKimiModel(cfg config.AIConfig) *kimi.Model {
	return kimi.NewModel(kimi.Config{
		APIKey:  cfg.GetKimiAPIKey(),
		BaseURL: cfg.GetKimiBaseURL(),
		Model:   cfg.GetKimiModel(),
	})
}

// harness bundles the runner plumbing every agent carries.
type harness struct {
	agent          adkagent.Agent
	runner         *runner.Runner
	sessionService session.Service
	appName        string
	runMu          sync.Mutex
}

func (h *harness) enabled() bool {
	return h != nil && h.runner != nil
}

// runPrompt executes a single prompt in a throwaway session and returns
// the collected response text.
func (h *harness) runPrompt(ctx context.Context, userPrefix, promptText string) (string, error) {
	sessionID := uuid.New().String()
	userID := userPrefix + "-" + sessionID

	_, err := h.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   h.appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return "", fmt.Errorf("%s: create session: %w", h.appName, err)
	}
	defer func() {
		_ = h.sessionService.Delete(ctx, &session.DeleteRequest{
			AppName:   h.appName,
			UserID:    userID,
			SessionID: sessionID,
		})
	}()

	userMessage := &genai.Content{
		Role: "user",
		Parts: []*genai.Part{{
			Text: promptText,
		}},
	}

	runConfig := adkagent.RunConfig{StreamingMode: adkagent.StreamingModeNone}

	var outputText strings.Builder
	for event, err := range h.runner.Run(ctx, userID, sessionID, userMessage, runConfig) {
		if err != nil {
			return "", fmt.Errorf("%s: run failed: %w", h.appName, err)
		}
		if event.Content == nil {
			continue
		}
		for _, part := range event.Content.Parts {
			outputText.WriteString(part.Text)
		}
	}

	return strings.TrimSpace(outputText.String()), nil
}
