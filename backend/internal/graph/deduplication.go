package graph

import "strings"

// ============================================================================
// Label Deduplication
// ============================================================================

// LabelKey is the comparison key for entity labels. Labels match
// case-insensitively after trimming.
func LabelKey(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// LabelIndex maps label keys to store identifiers. When several stored nodes
// share a key the first one listed wins.
type LabelIndex map[string]string

// NewLabelIndex builds an index from ListNodeLabels output
func NewLabelIndex(labels []NodeLabel) LabelIndex {
	idx := make(LabelIndex, len(labels))
	for _, l := range labels {
		key := LabelKey(l.Label)
		if key == "" {
			continue
		}
		if _, seen := idx[key]; !seen {
			idx[key] = l.ID
		}
	}
	return idx
}

// Lookup returns the identifier stored for label, if any
func (idx LabelIndex) Lookup(label string) (string, bool) {
	id, ok := idx[LabelKey(label)]
	return id, ok
}

// Add records id for label unless the label is already indexed
func (idx LabelIndex) Add(label, id string) {
	key := LabelKey(label)
	if key == "" {
		return
	}
	if _, seen := idx[key]; !seen {
		idx[key] = id
	}
}
