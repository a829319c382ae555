// Package normalizer turns a sanitized JSON candidate into typed proposals.
package normalizer

import (
	"encoding/json"
	"strings"

	"linkboard/backend/internal/constants"
	"linkboard/backend/internal/state"
	apperrors "linkboard/backend/pkg/errors"
)

// Normalizer validates and coerces parsed model output
type Normalizer struct {
	ids *IDGenerator
}

// New creates a normalizer drawing provisional identifiers from ids
func New(ids *IDGenerator) *Normalizer {
	if ids == nil {
		ids = NewIDGenerator()
	}
	return &Normalizer{ids: ids}
}

// Normalize parses candidate and returns the proposals it describes.
//
// Missing or mistyped "nodes" and "edges" members degrade to empty lists, as
// does a top-level array. Scalars and null fail with ErrNotAnObject.
// Nodes without a label are dropped. Edges are kept only when both endpoint
// labels match, case-insensitively, a node of the same batch. An empty result
// is not an error here; callers decide what an empty batch means.
func (n *Normalizer) Normalize(candidate string) (*state.Proposals, error) {
	var parsed interface{}
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return nil, apperrors.NewMalformedResponse(candidate, err)
	}
	var obj map[string]interface{}
	switch v := parsed.(type) {
	case map[string]interface{}:
		obj = v
	case []interface{}:
		// an array carries no nodes or edges members
	default:
		return nil, apperrors.ErrNotAnObject
	}

	proposals := &state.Proposals{
		Nodes: []state.ProposedNode{},
		Edges: []state.ProposedEdge{},
	}

	labels := make(map[string]string)
	for _, raw := range asObjects(obj["nodes"]) {
		node, ok := n.node(raw)
		if !ok {
			continue
		}
		proposals.Nodes = append(proposals.Nodes, node)
		labels[strings.ToLower(node.Label)] = node.ProvisionalID
	}

	for _, raw := range asObjects(obj["edges"]) {
		edge, ok := n.edge(raw, labels)
		if !ok {
			continue
		}
		proposals.Edges = append(proposals.Edges, edge)
	}

	return proposals, nil
}

func (n *Normalizer) node(raw map[string]interface{}) (state.ProposedNode, bool) {
	label := strings.TrimSpace(str(raw, "label"))
	if label == "" {
		return state.ProposedNode{}, false
	}
	return state.ProposedNode{
		ProvisionalID:    n.ids.Next(constants.NodeIDPrefix),
		Label:            label,
		NodeType:         state.ParseNodeType(str(raw, "nodeType")),
		Metadata:         str(raw, "metadata"),
		Role:             str(raw, "role"),
		Aliases:          str(raw, "aliases"),
		Status:           str(raw, "status"),
		Location:         str(raw, "location"),
		DOB:              str(raw, "dob"),
		EventType:        str(raw, "eventType"),
		EventDate:        str(raw, "eventDate"),
		EventLocation:    str(raw, "eventLocation"),
		EventDescription: str(raw, "eventDescription"),
		ReviewState:      state.ReviewPending,
	}, true
}

func (n *Normalizer) edge(raw map[string]interface{}, labels map[string]string) (state.ProposedEdge, bool) {
	source := strings.TrimSpace(str(raw, "sourceLabel"))
	target := strings.TrimSpace(str(raw, "targetLabel"))
	if source == "" || target == "" {
		return state.ProposedEdge{}, false
	}
	sourceRef, ok := labels[strings.ToLower(source)]
	if !ok {
		return state.ProposedEdge{}, false
	}
	targetRef, ok := labels[strings.ToLower(target)]
	if !ok {
		return state.ProposedEdge{}, false
	}

	return state.ProposedEdge{
		ProvisionalID: n.ids.Next(constants.EdgeIDPrefix),
		SourceLabel:   source,
		TargetLabel:   target,
		SourceRef:     sourceRef,
		TargetRef:     targetRef,
		Relationship:  state.ParseRelationship(str(raw, "relationship")),
		CustomLabel:   str(raw, "customLabel"),
		Description:   str(raw, "description"),
		Confidence:    state.ParseConfidence(str(raw, "confidence")),
		Direction:     state.ParseDirection(str(raw, "direction")),
		Weight:        weight(raw["weight"]),
		StartDate:     str(raw, "startDate"),
		EndDate:       str(raw, "endDate"),
		EventDate:     str(raw, "eventDate"),
		Location:      str(raw, "location"),
		ReviewState:   state.ReviewPending,
	}, true
}

// asObjects returns the object elements of v when v is an array
func asObjects(v interface{}) []map[string]interface{} {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func str(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func weight(v interface{}) int {
	f, ok := v.(float64)
	if !ok {
		return constants.DefaultEdgeWeight
	}
	return state.ClampWeight(f)
}
