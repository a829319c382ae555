package state

import (
	"math"
	"strings"

	"linkboard/backend/internal/constants"
)

// NodeType is the closed set of entity kinds a proposal may carry
type NodeType string

const (
	NodeTypePerson       NodeType = "Person"
	NodeTypeOrganization NodeType = "Organization"
	NodeTypePhone        NodeType = "Phone"
	NodeTypeEvent        NodeType = "Event"
)

// NodeTypes lists every node type in prompt order
var NodeTypes = []NodeType{NodeTypePerson, NodeTypeOrganization, NodeTypePhone, NodeTypeEvent}

// Relationship is the closed set of edge categories
type Relationship string

const (
	RelationshipFamilial      Relationship = "Familial"
	RelationshipProfessional  Relationship = "Professional"
	RelationshipFinancial     Relationship = "Financial"
	RelationshipCommunication Relationship = "Communication"
	RelationshipSocial        Relationship = "Social"
	RelationshipCriminal      Relationship = "Criminal"
	RelationshipAssociate     Relationship = "Associate"
	RelationshipUnknown       Relationship = "Unknown"
)

// Relationships lists every relationship type in prompt order
var Relationships = []Relationship{
	RelationshipFamilial,
	RelationshipProfessional,
	RelationshipFinancial,
	RelationshipCommunication,
	RelationshipSocial,
	RelationshipCriminal,
	RelationshipAssociate,
	RelationshipUnknown,
}

// Confidence is how strongly the source text supports an edge
type Confidence string

const (
	ConfidenceConfirmed Confidence = "Confirmed"
	ConfidenceProbable  Confidence = "Probable"
	ConfidenceSuspected Confidence = "Suspected"
)

// ConfidenceLevels lists every confidence level, strongest first
var ConfidenceLevels = []Confidence{ConfidenceConfirmed, ConfidenceProbable, ConfidenceSuspected}

// Direction describes how an edge is drawn
type Direction string

const (
	DirectionDirected   Direction = "directed"
	DirectionMutual     Direction = "mutual"
	DirectionUndirected Direction = "undirected"
)

// Directions lists every edge direction
var Directions = []Direction{DirectionDirected, DirectionMutual, DirectionUndirected}

// EventTypes are suggested to the model for Event nodes. They are stored verbatim.
var EventTypes = []string{"Meeting", "Transaction", "Crime", "Communication", "Travel", "Other"}

// ParseNodeType maps s onto the enumeration case-insensitively, defaulting to Person
func ParseNodeType(s string) NodeType {
	return matchEnum(s, NodeTypes, NodeTypePerson)
}

// ParseRelationship maps s onto the enumeration case-insensitively, defaulting to Unknown
func ParseRelationship(s string) Relationship {
	return matchEnum(s, Relationships, RelationshipUnknown)
}

// ParseConfidence maps s onto the enumeration case-insensitively, defaulting to Probable
func ParseConfidence(s string) Confidence {
	return matchEnum(s, ConfidenceLevels, ConfidenceProbable)
}

// ParseDirection maps s onto the enumeration case-insensitively, defaulting to directed
func ParseDirection(s string) Direction {
	return matchEnum(s, Directions, DirectionDirected)
}

func matchEnum[T ~string](s string, values []T, fallback T) T {
	s = strings.TrimSpace(s)
	for _, v := range values {
		if strings.EqualFold(s, string(v)) {
			return v
		}
	}
	return fallback
}

// ClampWeight rounds v half-up to an integer and clamps it to the edge weight bounds
func ClampWeight(v float64) int {
	if math.IsNaN(v) {
		return constants.DefaultEdgeWeight
	}
	w := math.Floor(v + 0.5)
	if w < constants.MinEdgeWeight {
		return constants.MinEdgeWeight
	}
	if w > constants.MaxEdgeWeight {
		return constants.MaxEdgeWeight
	}
	return int(w)
}

// ReviewState is the per-proposal operator decision. Pending is initial-only:
// once an item is touched it only moves between Accepted and Rejected.
type ReviewState int

const (
	ReviewPending ReviewState = iota
	ReviewAccepted
	ReviewRejected
)

// Toggle returns the next state: pending and rejected go to accepted, accepted goes to rejected
func (r ReviewState) Toggle() ReviewState {
	if r == ReviewAccepted {
		return ReviewRejected
	}
	return ReviewAccepted
}

func (r ReviewState) String() string {
	switch r {
	case ReviewAccepted:
		return "accepted"
	case ReviewRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// MarshalText renders the state as its name in JSON payloads
func (r ReviewState) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Phase is the extraction session phase
type Phase string

const (
	PhaseInput      Phase = "input"
	PhaseRequesting Phase = "requesting"
	PhaseReview     Phase = "review"
	PhaseCommitting Phase = "committing"
	PhaseError      Phase = "error"
	PhaseClosed     Phase = "closed"
)

// ProposedNode is an extracted entity awaiting review
type ProposedNode struct {
	ProvisionalID    string      `json:"provisional_id"`
	Label            string      `json:"label"`
	NodeType         NodeType    `json:"node_type"`
	Metadata         string      `json:"metadata"`
	Role             string      `json:"role"`
	Aliases          string      `json:"aliases"`
	Status           string      `json:"status"`
	Location         string      `json:"location"`
	DOB              string      `json:"dob"`
	EventType        string      `json:"event_type"`
	EventDate        string      `json:"event_date"`
	EventLocation    string      `json:"event_location"`
	EventDescription string      `json:"event_description"`
	ReviewState      ReviewState `json:"review_state"`
}

// ProposedEdge is an extracted relationship awaiting review. SourceRef and
// TargetRef are provisional identifiers of nodes in the same batch.
type ProposedEdge struct {
	ProvisionalID string       `json:"provisional_id"`
	SourceLabel   string       `json:"source_label"`
	TargetLabel   string       `json:"target_label"`
	SourceRef     string       `json:"source_ref"`
	TargetRef     string       `json:"target_ref"`
	Relationship  Relationship `json:"relationship"`
	CustomLabel   string       `json:"custom_label"`
	Description   string       `json:"description"`
	Confidence    Confidence   `json:"confidence"`
	Direction     Direction    `json:"direction"`
	Weight        int          `json:"weight"`
	StartDate     string       `json:"start_date"`
	EndDate       string       `json:"end_date"`
	EventDate     string       `json:"event_date"`
	Location      string       `json:"location"`
	ReviewState   ReviewState  `json:"review_state"`
}

// DisplayLabel is the label drawn on the committed edge
func (e ProposedEdge) DisplayLabel() string {
	if e.CustomLabel != "" {
		return e.CustomLabel
	}
	return string(e.Relationship)
}

// Proposals is one extraction batch
type Proposals struct {
	Nodes []ProposedNode `json:"nodes"`
	Edges []ProposedEdge `json:"edges"`
}

// Empty reports whether the batch has neither nodes nor edges
func (p *Proposals) Empty() bool {
	return len(p.Nodes) == 0 && len(p.Edges) == 0
}
