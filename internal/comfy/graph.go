package comfy

import (
	"encoding/json"
	"fmt"
)

// Graph is a workflow in the graph-execution service's API format: a mapping
// from node identifier to node. The structure is authored externally; this
// package only mutates documented injection points and never validates class
// types.
type Graph map[string]Node

// Node is one unit of the workflow graph.
type Node struct {
	Inputs    map[string]any `json:"inputs"`
	ClassType string         `json:"class_type"`
}

// Params maps node identifier -> input key -> replacement value.
type Params map[string]map[string]any

// ParseGraph decodes a workflow template document.
func ParseGraph(data []byte) (Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("comfy: parse graph: %w", err)
	}
	return g, nil
}

// Clone returns a structurally independent copy of the graph. Input values are
// copied recursively so callers can mutate the clone while the template keeps
// serving concurrent submissions.
func (g Graph) Clone() Graph {
	if g == nil {
		return nil
	}
	out := make(Graph, len(g))
	for id, node := range g {
		cloned := Node{ClassType: node.ClassType}
		if node.Inputs != nil {
			cloned.Inputs = cloneInputs(node.Inputs)
		}
		out[id] = cloned
	}
	return out
}

// ApplyParameters clones the template and overwrites the addressed inputs.
// Injection points absent from the template are skipped silently: templates of
// differing shapes may be driven by the same parameter map.
func ApplyParameters(template Graph, params Params) Graph {
	graph := template.Clone()
	for nodeID, inputs := range params {
		node, ok := graph[nodeID]
		if !ok || node.Inputs == nil {
			continue
		}
		for key, value := range inputs {
			if _, ok := node.Inputs[key]; !ok {
				continue
			}
			node.Inputs[key] = value
		}
	}
	return graph
}

func cloneInputs(inputs map[string]any) map[string]any {
	out := make(map[string]any, len(inputs))
	for k, v := range inputs {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		return cloneInputs(value)
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = cloneValue(item)
		}
		return out
	default:
		// Scalars (and anything else JSON-shaped graphs cannot contain)
		// are copied by value.
		return value
	}
}

// Bindings names the mutation-target nodes of a workflow template. Empty
// fields mean the template has no such node and the corresponding parameter
// is dropped.
type Bindings struct {
	LoadImageNode      string
	PositivePromptNode string
	NegativePromptNode string
	SamplerNode        string
}

// Params builds the parameter map for one submission. Zero seed and steps
// leave the template's own values in place.
func (b Bindings) Params(imageRef, positive, negative string, seed, steps int) Params {
	params := Params{}
	if b.LoadImageNode != "" && imageRef != "" {
		params[b.LoadImageNode] = map[string]any{"image": imageRef}
	}
	if b.PositivePromptNode != "" && positive != "" {
		params[b.PositivePromptNode] = map[string]any{"text": positive}
	}
	if b.NegativePromptNode != "" && negative != "" {
		params[b.NegativePromptNode] = map[string]any{"text": negative}
	}
	if b.SamplerNode != "" {
		sampler := map[string]any{}
		if seed > 0 {
			sampler["seed"] = seed
		}
		if steps > 0 {
			sampler["steps"] = steps
		}
		if len(sampler) > 0 {
			params[b.SamplerNode] = sampler
		}
	}
	return params
}
