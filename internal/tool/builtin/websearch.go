// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bastion-dev/bastion/internal/tool"
	basterr "github.com/bastion-dev/bastion/pkg/errors"
)

const defaultSearchEndpoint = "https://api.tavily.com/search"

const (
	minSearchResults = 1
	maxSearchResults = 20
)

type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func webSearchTool(cfg Config) tool.Descriptor {
	endpoint := cfg.SearchEndpoint
	if endpoint == "" {
		endpoint = defaultSearchEndpoint
	}

	return tool.Descriptor{
		Name:        "web_search",
		Description: "Search the web and return the top results with short content snippets.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query.",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Number of results to return, 1 to 20. Defaults to 5.",
				},
			},
			"required": []any{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			if cfg.SearchAPIKey == "" {
				return "", basterr.New(basterr.CodeToolHandlerFailure,
					"web search is not configured: missing API key")
			}

			query, _ := args["query"].(string)
			maxResults := 5
			if n, ok := args["max_results"].(float64); ok {
				maxResults = int(n)
			}
			if maxResults < minSearchResults {
				maxResults = minSearchResults
			}
			if maxResults > maxSearchResults {
				maxResults = maxSearchResults
			}

			body, err := json.Marshal(searchRequest{
				APIKey:     cfg.SearchAPIKey,
				Query:      query,
				MaxResults: maxResults,
			})
			if err != nil {
				return "", basterr.Wrapf(err, basterr.CodeToolHandlerFailure, "encoding search request")
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
			if err != nil {
				return "", basterr.Wrapf(err, basterr.CodeToolHandlerFailure, "building search request")
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := cfg.HTTPClient.Do(req)
			if err != nil {
				return "", basterr.Wrapf(err, basterr.CodeToolHandlerFailure, "calling search API")
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return "", basterr.Errorf(basterr.CodeToolHandlerFailure,
					"search API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
			}

			var parsed searchResponse
			if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
				return "", basterr.Wrapf(err, basterr.CodeToolHandlerFailure, "decoding search response")
			}

			if len(parsed.Results) == 0 {
				return "no results found", nil
			}

			var b strings.Builder
			for i, r := range parsed.Results {
				if i > 0 {
					b.WriteString("\n\n")
				}
				fmt.Fprintf(&b, "%d. %s\n%s\n%s", i+1, r.Title, r.URL, r.Content)
			}
			return b.String(), nil
		},
	}
}
