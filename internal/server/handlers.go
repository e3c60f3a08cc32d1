package server

import (
	"context"
	"encoding/json"

	"shardindex/internal/protocol"
	"shardindex/internal/query"
)

var invalidSearchInput = map[string]any{"error": "Invalid search_input"}

// SearchHandler decodes a search request, validates its required
// fields, and evaluates the query against engine. Validation failures
// are reported as a normal reply, not an error, per the InvalidSearchInput
// policy.
func SearchHandler(engine *query.Engine) Handler {
	return func(ctx context.Context, frame *protocol.Frame) (any, error) {
		payload, err := protocol.DecodePayload(frame)
		if err != nil {
			return invalidSearchInput, nil
		}

		var raw map[string]json.RawMessage
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			return invalidSearchInput, nil
		}

		sourceRaw, ok := raw["bloom_source"]
		if !ok {
			return invalidSearchInput, nil
		}
		filesRaw, ok := raw["files"]
		if !ok {
			return invalidSearchInput, nil
		}
		queryRaw, ok := raw["query"]
		if !ok {
			return invalidSearchInput, nil
		}

		var source, files string
		if err := json.Unmarshal(sourceRaw, &source); err != nil {
			return invalidSearchInput, nil
		}
		if err := json.Unmarshal(filesRaw, &files); err != nil {
			return invalidSearchInput, nil
		}
		node, err := query.Parse(queryRaw)
		if err != nil {
			return invalidSearchInput, nil
		}

		shardIDs, err := engine.Eval(ctx, query.Request{Source: source, Files: files, Query: node})
		if err != nil {
			return nil, err
		}
		return shardIDs, nil
	}
}

// PingHandler answers a liveness probe.
func PingHandler() Handler {
	return func(ctx context.Context, frame *protocol.Frame) (any, error) {
		return "alive", nil
	}
}

// BloomHandler is an alias of PingHandler kept for older clients that
// probe liveness with the "bloom" message class.
func BloomHandler() Handler {
	return PingHandler()
}

// MessageHandler echoes its decoded payload back verbatim. A trivial
// diagnostic handler, not used by search clients.
func MessageHandler() Handler {
	return func(ctx context.Context, frame *protocol.Frame) (any, error) {
		payload, err := protocol.DecodePayload(frame)
		if err != nil {
			return nil, err
		}
		return payload, nil
	}
}
