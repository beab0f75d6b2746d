package conversation

import "context"

// Thread retrieves the linear conversation from the thread root down to
// leafID, by following parent ids. It stops at the first id that is not in
// the store, and at an id it has already visited.
func Thread(ctx context.Context, store Store, leafID string) Conversation {
	var thread Conversation
	seen := map[string]bool{}
	id := leafID
	for id != "" && !seen[id] {
		seen[id] = true
		node, exists := store.Get(ctx, id)
		if !exists {
			break
		}
		thread = append(Conversation{node}, thread...)
		id = node.ParentID
	}
	return thread
}

// GetSinglePrompt concatenates the thread as "[role]: content" lines.
func (messages Conversation) GetSinglePrompt() string {
	if len(messages) == 0 {
		return ""
	}

	if len(messages) == 1 {
		return messages[0].Content
	}

	prompt := ""
	for _, message := range messages {
		prompt += message.String() + "\n"
	}

	return prompt
}
