package protocol

// NormalizeCompletionResponse converts a raw completion response into the
// chat-completion shape callers expect, so the chat-template fallback is
// invisible to them. Identifier, creation timestamp, model name and usage
// accounting are preserved; the single choice's text becomes an assistant
// message and its finish reason is carried over unchanged.
func NormalizeCompletionResponse(comp *CompletionResponse) *ChatCompletionResponse {
	var text, finishReason string
	if len(comp.Choices) > 0 {
		text = comp.Choices[0].Text
		finishReason = comp.Choices[0].FinishReason
	}

	return &ChatCompletionResponse{
		ID:      comp.ID,
		Object:  "chat.completion",
		Created: comp.Created,
		Model:   comp.Model,
		Choices: []ChatChoice{
			{
				Index: 0,
				Message: Message{
					Role:    "assistant",
					Content: text,
				},
				FinishReason: finishReason,
			},
		},
		Usage: comp.Usage,
	}
}
