// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

// Package anthropic implements the gateway contract on the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/bastion-dev/bastion/internal/gateway"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

func init() {
	gateway.RegisterBackend("anthropic", func(cfg gateway.Config) (gateway.Completer, error) {
		return New(cfg)
	})
}

// Completer implements gateway.Completer using the Anthropic SDK.
type Completer struct {
	client anthropicsdk.Client
	cfg    gateway.Config
}

var _ gateway.Completer = (*Completer)(nil)

// New creates an Anthropic completer. Returns an error if the API key
// is missing.
func New(cfg gateway.Config) (*Completer, error) {
	if cfg.APIKey == "" {
		return nil, basterr.New(basterr.CodeGatewayNotConfigured, "anthropic: missing api_key in config")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Completer{client: anthropicsdk.NewClient(opts...), cfg: cfg}, nil
}

func (c *Completer) Name() string { return "anthropic" }

// Complete runs one synchronous completion call.
func (c *Completer) Complete(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	req = c.cfg.ApplyDefaults(req)
	params, err := buildParams(req)
	if err != nil {
		return nil, basterr.Wrap(err, basterr.CodeGatewayRequestInvalid, "anthropic: building request params")
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, basterr.Wrap(err, basterr.CodeGatewayCallFailure, "anthropic: completion call")
	}

	resp := &gateway.Response{
		Usage: gateway.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if resp.Text != "" {
				resp.Text += "\n"
			}
			resp.Text += block.Text
		case "tool_use":
			args := string(block.Input)
			if !json.Valid([]byte(args)) {
				args = "{}"
			}
			resp.ToolCalls = append(resp.ToolCalls, gateway.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}

	return resp, nil
}

// buildParams converts a gateway.Request into Anthropic SDK MessageNewParams.
func buildParams(req gateway.Request) (anthropicsdk.MessageNewParams, error) {
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return anthropicsdk.MessageNewParams{}, err
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}

	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropicsdk.Float(float64(req.Temperature))
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	return params, nil
}

// convertMessages transforms the transcript into Anthropic SDK MessageParam
// slices. Assistant tool calls are replayed as tool_use blocks; tool
// results travel as user messages carrying tool_result blocks.
func convertMessages(msgs []gateway.Message) ([]anthropicsdk.MessageParam, error) {
	var result []anthropicsdk.MessageParam

	for _, msg := range msgs {
		switch msg.Role {
		case gateway.RoleUser:
			result = append(result, anthropicsdk.NewUserMessage(
				anthropicsdk.NewTextBlock(msg.Content),
			))
		case gateway.RoleAssistant:
			var blocks []anthropicsdk.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropicsdk.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropicsdk.NewToolUseBlock(tc.ID, json.RawMessage(tc.Arguments), tc.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropicsdk.NewTextBlock(""))
			}
			result = append(result, anthropicsdk.NewAssistantMessage(blocks...))
		case gateway.RoleTool:
			result = append(result, anthropicsdk.NewUserMessage(
				anthropicsdk.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		default:
			return result, basterr.Errorf(basterr.CodeGatewayRequestInvalid,
				"anthropic: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

// convertTools transforms tool definitions into Anthropic SDK tool params.
func convertTools(tools []gateway.ToolDefinition) []anthropicsdk.ToolUnionParam {
	result := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        t.Name,
				Description: anthropicsdk.Opt(t.Description),
				InputSchema: extractSchema(t.InputSchema),
			},
		})
	}
	return result
}

// extractSchema maps a full JSON Schema object (keys like "type",
// "properties", "required") into the SDK's ToolInputSchemaParam, which
// takes Properties and Required as separate fields.
func extractSchema(raw map[string]any) anthropicsdk.ToolInputSchemaParam {
	schema := anthropicsdk.ToolInputSchemaParam{}
	if props, ok := raw["properties"]; ok {
		schema.Properties = props
	}
	if req, ok := raw["required"]; ok {
		if arr, ok := req.([]any); ok {
			strs := make([]string, 0, len(arr))
			for _, v := range arr {
				if s, ok := v.(string); ok {
					strs = append(strs, s)
				}
			}
			schema.Required = strs
		}
	}
	return schema
}
