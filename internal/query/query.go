// Package query defines the query tree accepted by the search handler and
// the engine that evaluates it against a path trie of filter artifacts.
//
// A query is either an internal node (a boolean condition over child
// queries) or a leaf (a column/value predicate):
//
//	{"condition": "AND", "rules": [ ... ]}
//	{"column": "status", "value": "active"}
package query

import (
	"encoding/json"
	"fmt"
)

// Op is the boolean operator of an internal query node.
type Op string

const (
	OpAnd Op = "AND"
	OpOr  Op = "OR"
)

// Node is one node of a query tree, either *Internal or *Leaf.
type Node interface {
	isNode()
}

// Internal combines child queries with a boolean operator.
type Internal struct {
	Condition Op     `json:"condition"`
	Rules     []Node `json:"rules"`
}

func (*Internal) isNode() {}

// Leaf asks whether column's value matches value within a shard.
type Leaf struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

func (*Leaf) isNode() {}

// wireNode mirrors the union shape for decoding: a node is a leaf if it
// carries "column", otherwise an internal node keyed on "condition".
type wireNode struct {
	Condition *Op    `json:"condition"`
	Rules     []json.RawMessage `json:"rules"`
	Column    *string `json:"column"`
	Value     *string `json:"value"`
}

// Parse decodes raw JSON into a Node tree.
func Parse(data []byte) (Node, error) {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("query: malformed json: %w", err)
	}
	return fromWire(w)
}

func fromWire(w wireNode) (Node, error) {
	if w.Column != nil {
		if w.Value == nil {
			return nil, fmt.Errorf("query: leaf %q missing value", *w.Column)
		}
		return &Leaf{Column: *w.Column, Value: *w.Value}, nil
	}

	if w.Condition == nil {
		return nil, fmt.Errorf("query: node has neither column nor condition")
	}
	switch *w.Condition {
	case OpAnd, OpOr:
	default:
		return nil, fmt.Errorf("query: unknown condition %q", *w.Condition)
	}

	children := make([]Node, 0, len(w.Rules))
	for _, raw := range w.Rules {
		var childWire wireNode
		if err := json.Unmarshal(raw, &childWire); err != nil {
			return nil, fmt.Errorf("query: malformed rule: %w", err)
		}
		child, err := fromWire(childWire)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	return &Internal{Condition: *w.Condition, Rules: children}, nil
}
