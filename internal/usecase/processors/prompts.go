package processors

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	"github.com/kailas-cloud/supportgraph/internal/domain/entity"
)

// Bump a version when its prompt or output schema changes so that stored
// hashes stop matching and entities are reprocessed.
const (
	summarizePromptVersion = "summarize/v1"
	labelsPromptVersion    = "labels/v1"
	statusPromptVersion    = "status/v1"
	duplicatePromptVersion = "duplicate/v1"
)

// maxTranscriptChars bounds the conversation text sent to the model.
const maxTranscriptChars = 12000

const summarizeSystem = `You summarize customer support conversations.
Return a short title, the customer's problem, the resolution if one was reached
(empty string otherwise) and up to 10 lowercase keywords naming products,
features, error messages and symptoms. Keywords must not contain commas.`

const labelsSystem = `You classify customer support conversations.
Pick every label from the allowed list that applies. Use the labels exactly as
written. Pick none when nothing fits.`

const statusSystem = `You track the lifecycle of customer support conversations.
Pick the single status from the allowed list that best describes where the
conversation stands now.`

const duplicateSystem = `You decide whether two customer support conversations
report the same underlying problem. Answer duplicate=true only when resolving
one would resolve the other. Confidence is between 0 and 1.`

func summarizePrompt(e *entity.Entity) domain.Prompt {
	var b strings.Builder
	if e.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n\n", e.Title)
	}
	b.WriteString("Conversation:\n")
	b.WriteString(truncate(e.Transcript(), maxTranscriptChars))
	return domain.Prompt{Schema: "conversation_summary", System: summarizeSystem, User: b.String()}
}

func labelsPrompt(s Summary, allowed []string) domain.Prompt {
	user := fmt.Sprintf("Allowed labels: %s\n\n%s", strings.Join(allowed, ", "), s.Text())
	return domain.Prompt{Schema: "label_choice", System: labelsSystem, User: user}
}

func statusPrompt(s Summary, current string, allowed []string) domain.Prompt {
	user := fmt.Sprintf("Allowed statuses: %s\nCurrent status: %s\n\n%s",
		strings.Join(allowed, ", "), current, s.Text())
	return domain.Prompt{Schema: "status_choice", System: statusSystem, User: user}
}

func duplicatePrompt(s Summary, candidateText string) domain.Prompt {
	user := fmt.Sprintf("Conversation A:\n%s\n\nConversation B:\n%s",
		s.Text(), truncate(candidateText, maxTranscriptChars))
	return domain.Prompt{Schema: "duplicate_verdict", System: duplicateSystem, User: user}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
