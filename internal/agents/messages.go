package agents

import (
	"fmt"
	"reflect"

	"github.com/nidhogg/agentlab/internal/provider"
)

// MergeMessages folds right into left, appending only messages not already
// present by value. Existing order is preserved and nothing is dropped.
func MergeMessages(left, right []provider.Message) []provider.Message {
	merged := make([]provider.Message, 0, len(left)+len(right))
	for _, msg := range append(append([]provider.Message{}, left...), right...) {
		if !containsMessage(merged, msg) {
			merged = append(merged, msg)
		}
	}
	return merged
}

func containsMessage(msgs []provider.Message, msg provider.Message) bool {
	for _, m := range msgs {
		if reflect.DeepEqual(m, msg) {
			return true
		}
	}
	return false
}

// lastInteraction returns the suffix of messages starting at the most recent
// human message, or nil when no human message exists.
func lastInteraction(messages []provider.Message) []provider.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == provider.RoleHuman {
			return messages[i:]
		}
	}
	return nil
}

// messagesData renders a message list as plain maps for response payloads.
func messagesData(messages []provider.Message) []map[string]any {
	out := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		entry := map[string]any{
			"role":    m.Role,
			"content": m.Content,
		}
		if m.Name != "" {
			entry["name"] = m.Name
		}
		out = append(out, entry)
	}
	return out
}

// thoughtChain records one human/AI exchange as a compact narrative message
// carried in workflow state for later turns.
func thoughtChain(humanInput, aiResponse, connection string) provider.Message {
	content := fmt.Sprintf(
		"First: The human asked or stated - %s\nThen: The AI responded with - %s\n",
		humanInput, aiResponse)
	if connection != "" {
		content += "Connection: " + connection
	}
	return provider.AssistantMessage(content, "")
}
