// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

// Package openai implements the gateway contract on the OpenAI Chat
// Completions API.
package openai

import (
	"context"
	"encoding/json"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/bastion-dev/bastion/internal/gateway"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

func init() {
	gateway.RegisterBackend("openai", func(cfg gateway.Config) (gateway.Completer, error) {
		return New(cfg)
	})
}

// Completer implements gateway.Completer using the OpenAI SDK.
type Completer struct {
	client openaisdk.Client
	cfg    gateway.Config
}

var _ gateway.Completer = (*Completer)(nil)

// New creates an OpenAI completer. Returns an error if the API key is
// missing.
func New(cfg gateway.Config) (*Completer, error) {
	if cfg.APIKey == "" {
		return nil, basterr.New(basterr.CodeGatewayNotConfigured, "openai: missing api_key in config")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Completer{client: openaisdk.NewClient(opts...), cfg: cfg}, nil
}

func (c *Completer) Name() string { return "openai" }

// Complete runs one synchronous completion call.
func (c *Completer) Complete(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	req = c.cfg.ApplyDefaults(req)
	params, err := buildParams(req)
	if err != nil {
		return nil, basterr.Wrap(err, basterr.CodeGatewayRequestInvalid, "openai: building request params")
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, basterr.Wrap(err, basterr.CodeGatewayCallFailure, "openai: completion call")
	}
	if len(completion.Choices) == 0 {
		return nil, basterr.New(basterr.CodeGatewayResponseInvalid, "openai: response contains no choices")
	}

	msg := completion.Choices[0].Message
	resp := &gateway.Response{
		Text: msg.Content,
		Usage: gateway.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}

	for _, tc := range msg.ToolCalls {
		args := tc.Function.Arguments
		if !json.Valid([]byte(args)) {
			args = "{}"
		}
		resp.ToolCalls = append(resp.ToolCalls, gateway.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return resp, nil
}

// buildParams converts a gateway.Request into OpenAI SDK ChatCompletionNewParams.
func buildParams(req gateway.Request) (openaisdk.ChatCompletionNewParams, error) {
	msgs, err := convertMessages(req.Messages, req.SystemPrompt)
	if err != nil {
		return openaisdk.ChatCompletionNewParams{}, err
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
	}

	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(float64(req.Temperature))
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	return params, nil
}

// convertMessages transforms the transcript into OpenAI SDK message params.
// The system prompt is prepended as a system message if present.
func convertMessages(msgs []gateway.Message, systemPrompt string) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	var result []openaisdk.ChatCompletionMessageParamUnion

	if systemPrompt != "" {
		result = append(result, openaisdk.SystemMessage(systemPrompt))
	}

	for _, msg := range msgs {
		switch msg.Role {
		case gateway.RoleUser:
			result = append(result, openaisdk.UserMessage(msg.Content))
		case gateway.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				result = append(result, openaisdk.AssistantMessage(msg.Content))
				continue
			}
			assistant := openaisdk.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = param.NewOpt(msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openaisdk.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openaisdk.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			result = append(result, openaisdk.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case gateway.RoleTool:
			result = append(result, openaisdk.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			return result, basterr.Errorf(basterr.CodeGatewayRequestInvalid,
				"openai: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

// convertTools transforms tool definitions into OpenAI SDK tool params.
func convertTools(tools []gateway.ToolDefinition) []openaisdk.ChatCompletionToolParam {
	result := make([]openaisdk.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  shared.FunctionParameters(t.InputSchema),
			},
		})
	}
	return result
}
