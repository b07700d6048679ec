package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Hyung-98/ChatbotSocket-sub000/service/storage"
	"github.com/Hyung-98/ChatbotSocket-sub000/tools/safe"
)

// SSEClient streams completions from an OpenAI-compatible
// /v1/chat/completions endpoint with stream=true.
type SSEClient struct {
	Endpoint string
	APIKey   string
	Model    string
	HTTP     *http.Client // nil => http.DefaultClient (no timeout: streams are long-lived)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []chatMessage `json:"messages"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *SSEClient) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *SSEClient) Stream(ctx context.Context, history []storage.Message) (<-chan StreamEvent, error) {
	req := chatRequest{Model: c.Model, Stream: true}
	for _, m := range history {
		role := m.Role
		if role == "" {
			role = storage.RoleUser
		}
		req.Messages = append(req.Messages, chatMessage{Role: role, Content: m.Content})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "text/event-stream")
	if c.APIKey != "" {
		hreq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.httpClient().Do(hreq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		sample, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("generation endpoint status %d: %s", resp.StatusCode, sample)
	}

	out := make(chan StreamEvent, 64)
	safe.SafeGo(func() {
		defer close(out)
		defer func() { _ = resp.Body.Close() }()

		var full strings.Builder
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				out <- StreamEvent{Done: true, Full: full.String()}
				return
			}
			var chunk chatChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				// tolerate keep-alive noise between events
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if tok := chunk.Choices[0].Delta.Content; tok != "" {
				full.WriteString(tok)
				out <- StreamEvent{Token: tok}
			}
			if fr := chunk.Choices[0].FinishReason; fr != nil && *fr != "" {
				out <- StreamEvent{Done: true, Full: full.String()}
				return
			}
		}
		if err := sc.Err(); err != nil {
			out <- StreamEvent{Err: err}
			return
		}
		// upstream closed without [DONE]; treat accumulated text as the answer
		out <- StreamEvent{Done: true, Full: full.String()}
	})
	return out, nil
}
