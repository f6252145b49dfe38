// ABOUTME: OpenAI Chat Completions client implementing muxllm.Client for the built-in story writer.
// ABOUTME: Supports a custom base URL so OpenAI-compatible providers can stand in for OpenAI.

package llm

import (
	"context"
	"fmt"
	"log"

	muxllm "github.com/2389-research/mux/llm"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultChatModel is used when neither the client nor the request names a model.
const DefaultChatModel = "gpt-4o-mini"

const defaultMaxTokens = 4096

// OpenAICompatClient implements muxllm.Client using the Chat Completions API.
// Only text content is converted; the story writer never uses tools.
type OpenAICompatClient struct {
	client openai.Client
	model  string
}

// NewOpenAICompatClient creates a Chat Completions client. An empty baseURL
// targets api.openai.com.
func NewOpenAICompatClient(apiKey, model, baseURL string, extra ...option.RequestOption) *OpenAICompatClient {
	if model == "" {
		model = DefaultChatModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)
	return &OpenAICompatClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// CreateMessage sends a message and returns the complete response.
func (c *OpenAICompatClient) CreateMessage(ctx context.Context, req *muxllm.Request) (*muxllm.Response, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(req))
	if err != nil {
		return nil, err
	}
	return convertCompatResponse(resp), nil
}

// CreateMessageStream sends a message and returns a channel of streaming
// events. The channel is closed after EventMessageStop or EventError.
func (c *OpenAICompatClient) CreateMessageStream(ctx context.Context, req *muxllm.Request) (<-chan muxllm.StreamEvent, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(req))

	eventChan := make(chan muxllm.StreamEvent, 100)

	// send gives up once ctx ends so a reader that stops early never
	// strands this goroutine.
	send := func(ev muxllm.StreamEvent) bool {
		select {
		case eventChan <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("component=llm action=stream_panic err=%v", r)
				send(muxllm.StreamEvent{
					Type:  muxllm.EventError,
					Error: fmt.Errorf("panic in stream processing: %v", r),
				})
			}
			close(eventChan)
		}()
		defer stream.Close()

		var acc openai.ChatCompletionAccumulator

		if !send(muxllm.StreamEvent{Type: muxllm.EventMessageStart}) {
			return
		}

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				if !send(muxllm.StreamEvent{
					Type: muxllm.EventContentDelta,
					Text: chunk.Choices[0].Delta.Content,
				}) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			send(muxllm.StreamEvent{
				Type:  muxllm.EventError,
				Error: err,
			})
			return
		}

		send(muxllm.StreamEvent{
			Type:     muxllm.EventMessageStop,
			Response: convertCompatResponse(&acc.ChatCompletion),
		})
	}()

	return eventChan, nil
}

// params fills request defaults without mutating the caller's request.
func (c *OpenAICompatClient) params(req *muxllm.Request) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model:               model,
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, msg := range req.Messages {
		text := messageText(msg)
		switch msg.Role {
		case muxllm.RoleUser:
			messages = append(messages, openai.UserMessage(text))
		case muxllm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(text))
		}
	}
	params.Messages = messages
	return params
}

// messageText prefers Content and falls back to the first text block.
func messageText(msg muxllm.Message) string {
	if msg.Content != "" {
		return msg.Content
	}
	for _, block := range msg.Blocks {
		if block.Type == muxllm.ContentTypeText {
			return block.Text
		}
	}
	return ""
}

// convertCompatResponse converts OpenAI ChatCompletion to a mux Response.
func convertCompatResponse(resp *openai.ChatCompletion) *muxllm.Response {
	result := &muxllm.Response{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: muxllm.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}

	if len(resp.Choices) == 0 {
		return result
	}

	choice := resp.Choices[0]
	switch choice.FinishReason {
	case "length":
		result.StopReason = muxllm.StopReasonMaxTokens
	default:
		result.StopReason = muxllm.StopReasonEndTurn
	}

	if choice.Message.Content != "" {
		result.Content = append(result.Content, muxllm.ContentBlock{
			Type: muxllm.ContentTypeText,
			Text: choice.Message.Content,
		})
	}
	return result
}

// Compile-time interface assertion.
var _ muxllm.Client = (*OpenAICompatClient)(nil)
