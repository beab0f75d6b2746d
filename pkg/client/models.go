package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-go-golems/convo/pkg/abort"
	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
)

// ListModels returns the models the endpoint offers. It shares the
// client's cancellation scope and timeout with SendMessage.
func (c *Client) ListModels(ctx context.Context) ([]go_openai.Model, error) {
	reqCtx, release := abort.Bind(ctx, c.scope)
	defer release()

	return abort.Run(reqCtx, c.scope, abort.Options{
		Timeout: c.settings.TimeoutDuration(),
		Message: c.settings.Client.TimeoutMessage,
	}, func(ctx context.Context) ([]go_openai.Model, error) {
		req, err := c.newRequest(ctx, http.MethodGet, modelsPath, nil, false)
		if err != nil {
			return nil, err
		}
		resp, err := c.do(ctx, req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			if cause := abort.FromContext(ctx); cause != nil {
				return nil, cause
			}
			return nil, errors.Wrap(err, "reading models")
		}
		var list go_openai.ModelsList
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, errors.Wrap(err, "decoding models")
		}
		c.logger.Debug().Int("count", len(list.Models)).Msg("listed models")
		return list.Models, nil
	})
}
