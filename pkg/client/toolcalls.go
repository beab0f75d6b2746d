package client

import (
	go_openai "github.com/sashabaranov/go-openai"
)

// ToolCallMerger reassembles tool calls from streamed fragments. Fragments
// sharing an index belong to the same call: the first one creates it, later
// ones only append to its arguments. Calls keep the order in which their
// index first appeared.
type ToolCallMerger struct {
	toolCalls map[int]*go_openai.ToolCall
	order     []int
}

func NewToolCallMerger() *ToolCallMerger {
	return &ToolCallMerger{
		toolCalls: make(map[int]*go_openai.ToolCall),
	}
}

func (tcm *ToolCallMerger) AddToolCalls(toolCalls []go_openai.ToolCall) {
	for i, call := range toolCalls {
		// servers that omit the index send one fragment per position
		index := i
		if call.Index != nil {
			index = *call.Index
		}
		if existing, found := tcm.toolCalls[index]; found {
			existing.Function.Arguments += call.Function.Arguments
			continue
		}
		call := call
		tcm.toolCalls[index] = &call
		tcm.order = append(tcm.order, index)
	}
}

func (tcm *ToolCallMerger) GetToolCalls() []go_openai.ToolCall {
	if len(tcm.order) == 0 {
		return nil
	}
	result := make([]go_openai.ToolCall, 0, len(tcm.order))
	for _, index := range tcm.order {
		call := *tcm.toolCalls[index]
		// the index only matters on the wire of a stream
		call.Index = nil
		result = append(result, call)
	}
	return result
}

func (tcm *ToolCallMerger) Len() int {
	return len(tcm.order)
}
