package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-go-golems/convo/pkg/abort"
	"github.com/go-go-golems/convo/pkg/history"
	"github.com/pkg/errors"
)

const (
	chatCompletionsPath = "/v1/chat/completions"
	modelsPath          = "/v1/models"
)

// requestBody merges, later entries winning: the configured defaults, the
// per-call params, tools, then the computed messages, stream and max_tokens.
// n is dropped, only one choice is ever read.
func (c *Client) requestBody(o *sendOptions, prompt *history.Prompt, stream bool) map[string]interface{} {
	body := c.settings.DefaultRequestParams()
	for k, v := range o.requestParams {
		body[k] = v
	}
	if len(o.tools) > 0 {
		body["tools"] = o.tools
	}
	if o.toolChoice != nil {
		body["tool_choice"] = o.toolChoice
	}

	delete(body, "n")
	body["messages"] = prompt.Messages
	body["stream"] = stream
	body["max_tokens"] = prompt.MaxTokens

	return body
}

func (c *Client) newRequest(ctx context.Context, method string, path string, body interface{}, stream bool) (*http.Request, error) {
	url, err := c.endpoints.Endpoint(c.settings.Client.BaseURL, path)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshaling request body")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}

	cs := c.settings.Client
	req.Header.Set("Authorization", "Bearer "+cs.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cs.Organization != nil && *cs.Organization != "" {
		req.Header.Set("OpenAI-Organization", *cs.Organization)
	}
	if cs.UserAgent != nil && *cs.UserAgent != "" {
		req.Header.Set("User-Agent", *cs.UserAgent)
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	return req, nil
}

// do sends req and turns a non-2xx status into an *APIError. A transport
// failure caused by cancellation is reported as the cancellation itself.
func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.transport.Do(req)
	if err != nil {
		if cause := abort.FromContext(ctx); cause != nil {
			return nil, cause
		}
		return nil, errors.Wrapf(err, "%s %s", req.Method, req.URL.String())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			if cause := abort.FromContext(ctx); cause != nil {
				return nil, cause
			}
		}
		return nil, newAPIError(req.URL.String(), resp.StatusCode, statusText(resp), body)
	}

	return resp, nil
}

// statusText is the reason phrase without the leading code.
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
