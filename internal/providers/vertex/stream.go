package vertex

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/omniguard/llm-observability/internal/providers"
	"github.com/omniguard/llm-observability/services"
)

// sendChunk sends a chunk on ch, respecting context cancellation. Returns
// false when the context was cancelled.
func sendChunk(ctx context.Context, ch chan<- providers.StreamChunk, chunk providers.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// readStream reads the SSE response of streamGenerateContent and forwards
// text deltas. The channel is closed when the stream ends, on error, or when
// ctx is cancelled. body is always closed.
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, ch chan<- providers.StreamChunk) {
	defer close(ch)
	defer func() { _ = body.Close() }()

	// Close body on cancellation to unblock the scanner.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = body.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, scannerBufferSize), scannerBufferSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			sendChunk(ctx, ch, providers.StreamChunk{Err: ctx.Err()})
			return
		}

		line := scanner.Text()
		if strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var chunk generateResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			sendChunk(ctx, ch, providers.StreamChunk{Err: services.WrapUpstream("parsing stream chunk", err)})
			return
		}

		var usage *providers.TokenUsage
		if chunk.UsageMetadata != nil {
			usage = &providers.TokenUsage{
				Model:        c.model,
				InputTokens:  chunk.UsageMetadata.PromptTokenCount,
				OutputTokens: chunk.UsageMetadata.CandidatesTokenCount,
				TotalTokens:  chunk.UsageMetadata.TotalTokenCount,
			}
		}

		var text strings.Builder
		if len(chunk.Candidates) > 0 {
			for _, p := range chunk.Candidates[0].Content.Parts {
				text.WriteString(p.Text)
			}
		}

		if text.Len() > 0 || usage != nil {
			if !sendChunk(ctx, ch, providers.StreamChunk{Text: text.String(), Usage: usage}) {
				return
			}
		}
	}

	if ctx.Err() != nil {
		sendChunk(ctx, ch, providers.StreamChunk{Err: ctx.Err()})
		return
	}
	if err := scanner.Err(); err != nil {
		sendChunk(ctx, ch, providers.StreamChunk{Err: services.WrapUpstream("reading provider stream", err)})
	}
}
