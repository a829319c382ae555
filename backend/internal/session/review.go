package session

import (
	"strings"
	"time"
	"unicode/utf8"

	"linkboard/backend/internal/adapter"
	"linkboard/backend/internal/merge"
	"linkboard/backend/internal/state"
	apperrors "linkboard/backend/pkg/errors"
)

// ============================================================================
// Review
// ============================================================================

// ToggleNode flips a node between accepted and rejected and returns its new state
func (s *Session) ToggleNode(id string) (state.ReviewState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireReview("toggle node"); err != nil {
		return state.ReviewPending, err
	}
	i := s.nodeIndex(id)
	if i < 0 {
		return state.ReviewPending, apperrors.NewProposalNotFound(id)
	}
	s.nodes[i].ReviewState = s.nodes[i].ReviewState.Toggle()
	return s.nodes[i].ReviewState, nil
}

// ToggleEdge flips an edge between accepted and rejected and returns its new state
func (s *Session) ToggleEdge(id string) (state.ReviewState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireReview("toggle edge"); err != nil {
		return state.ReviewPending, err
	}
	i := s.edgeIndex(id)
	if i < 0 {
		return state.ReviewPending, apperrors.NewProposalNotFound(id)
	}
	s.edges[i].ReviewState = s.edges[i].ReviewState.Toggle()
	return s.edges[i].ReviewState, nil
}

// AcceptAll accepts every proposal
func (s *Session) AcceptAll() error {
	return s.setAll(state.ReviewAccepted, "accept all")
}

// RejectAll rejects every proposal
func (s *Session) RejectAll() error {
	return s.setAll(state.ReviewRejected, "reject all")
}

func (s *Session) setAll(rs state.ReviewState, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireReview(action); err != nil {
		return err
	}
	for i := range s.nodes {
		s.nodes[i].ReviewState = rs
	}
	for i := range s.edges {
		s.edges[i].ReviewState = rs
	}
	return nil
}

// NodePatch holds the node fields an operator may edit. Nil fields are left alone.
type NodePatch struct {
	Label            *string `json:"label"`
	NodeType         *string `json:"node_type"`
	Metadata         *string `json:"metadata"`
	Role             *string `json:"role"`
	Aliases          *string `json:"aliases"`
	Status           *string `json:"status"`
	Location         *string `json:"location"`
	DOB              *string `json:"dob"`
	EventType        *string `json:"event_type"`
	EventDate        *string `json:"event_date"`
	EventLocation    *string `json:"event_location"`
	EventDescription *string `json:"event_description"`
}

// EdgePatch holds the edge fields an operator may edit. Endpoints are fixed.
type EdgePatch struct {
	Relationship *string  `json:"relationship"`
	CustomLabel  *string  `json:"custom_label"`
	Description  *string  `json:"description"`
	Confidence   *string  `json:"confidence"`
	Direction    *string  `json:"direction"`
	Weight       *float64 `json:"weight"`
	StartDate    *string  `json:"start_date"`
	EndDate      *string  `json:"end_date"`
	EventDate    *string  `json:"event_date"`
	Location     *string  `json:"location"`
}

// UpdateNode applies patch to a proposed node. Enumerations fall back to
// their defaults like freshly extracted values; a blank label is refused.
func (s *Session) UpdateNode(id string, patch NodePatch) (state.ProposedNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireReview("edit node"); err != nil {
		return state.ProposedNode{}, err
	}
	i := s.nodeIndex(id)
	if i < 0 {
		return state.ProposedNode{}, apperrors.NewProposalNotFound(id)
	}

	n := s.nodes[i]
	if patch.Label != nil {
		label := strings.TrimSpace(*patch.Label)
		if label == "" {
			return state.ProposedNode{}, apperrors.NewInvalidProposalEdit("label", "must not be blank")
		}
		n.Label = label
	}
	if patch.NodeType != nil {
		n.NodeType = state.ParseNodeType(*patch.NodeType)
	}
	assign(&n.Metadata, patch.Metadata)
	assign(&n.Role, patch.Role)
	assign(&n.Aliases, patch.Aliases)
	assign(&n.Status, patch.Status)
	assign(&n.Location, patch.Location)
	assign(&n.DOB, patch.DOB)
	assign(&n.EventType, patch.EventType)
	assign(&n.EventDate, patch.EventDate)
	assign(&n.EventLocation, patch.EventLocation)
	assign(&n.EventDescription, patch.EventDescription)

	s.nodes[i] = n
	for j := range s.edges {
		if s.edges[j].SourceRef == id {
			s.edges[j].SourceLabel = n.Label
		}
		if s.edges[j].TargetRef == id {
			s.edges[j].TargetLabel = n.Label
		}
	}
	return n, nil
}

// UpdateEdge applies patch to a proposed edge. Enumerations fall back to
// their defaults and the weight is clamped.
func (s *Session) UpdateEdge(id string, patch EdgePatch) (state.ProposedEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireReview("edit edge"); err != nil {
		return state.ProposedEdge{}, err
	}
	i := s.edgeIndex(id)
	if i < 0 {
		return state.ProposedEdge{}, apperrors.NewProposalNotFound(id)
	}

	e := s.edges[i]
	if patch.Relationship != nil {
		e.Relationship = state.ParseRelationship(*patch.Relationship)
	}
	if patch.Confidence != nil {
		e.Confidence = state.ParseConfidence(*patch.Confidence)
	}
	if patch.Direction != nil {
		e.Direction = state.ParseDirection(*patch.Direction)
	}
	if patch.Weight != nil {
		e.Weight = state.ClampWeight(*patch.Weight)
	}
	assign(&e.CustomLabel, patch.CustomLabel)
	assign(&e.Description, patch.Description)
	assign(&e.StartDate, patch.StartDate)
	assign(&e.EndDate, patch.EndDate)
	assign(&e.EventDate, patch.EventDate)
	assign(&e.Location, patch.Location)

	s.edges[i] = e
	return e, nil
}

func assign(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// requireReview guards review-only actions. Caller holds the lock.
func (s *Session) requireReview(action string) error {
	if s.phase != state.PhaseReview {
		return apperrors.NewInvalidTransition(string(s.phase), action)
	}
	return nil
}

func (s *Session) nodeIndex(id string) int {
	for i := range s.nodes {
		if s.nodes[i].ProvisionalID == id {
			return i
		}
	}
	return -1
}

func (s *Session) edgeIndex(id string) int {
	for i := range s.edges {
		if s.edges[i].ProvisionalID == id {
			return i
		}
	}
	return -1
}

// ============================================================================
// Snapshot
// ============================================================================

// NodeView is a proposed node as shown to the operator
type NodeView struct {
	state.ProposedNode
	// Duplicate is set when a board node already carries this label
	Duplicate bool `json:"duplicate"`
}

// EdgeView is a proposed edge as shown to the operator
type EdgeView struct {
	state.ProposedEdge
	// EndpointRejected is set when either endpoint node is rejected, so the
	// edge would be skipped on commit
	EndpointRejected bool `json:"endpoint_rejected"`
}

// Snapshot is a point-in-time copy of the session
type Snapshot struct {
	ID               string           `json:"id"`
	Phase            state.Phase      `json:"phase"`
	SourceText       string           `json:"source_text"`
	SourceChars      int              `json:"source_chars"`
	MaxSourceChars   int              `json:"max_source_chars"`
	Settings         adapter.Settings `json:"settings"`
	RequestStartedAt *time.Time       `json:"request_started_at,omitempty"`
	Nodes            []NodeView       `json:"nodes"`
	Edges            []EdgeView       `json:"edges"`
	AcceptedCount    int              `json:"accepted_count"`
	Error            string           `json:"error,omitempty"`
	LastResult       *merge.Result    `json:"last_result,omitempty"`
}

// Snapshot returns a copy of the session safe to serialise. The API key is redacted.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:             s.id,
		Phase:          s.phase,
		SourceText:     s.sourceText,
		SourceChars:    utf8.RuneCountInString(s.sourceText),
		MaxSourceChars: s.opts.MaxSourceChars,
		Settings:       s.settings.Redacted(),
		Nodes:          make([]NodeView, 0, len(s.nodes)),
		Edges:          make([]EdgeView, 0, len(s.edges)),
		LastResult:     s.lastResult,
	}
	if s.phase == state.PhaseRequesting {
		started := s.startedAt
		snap.RequestStartedAt = &started
	}
	if s.lastError != nil {
		snap.Error = apperrors.UserMessage(s.lastError)
	}

	rejected := make(map[string]bool)
	for _, n := range s.nodes {
		_, dup := s.existing.Lookup(n.Label)
		snap.Nodes = append(snap.Nodes, NodeView{ProposedNode: n, Duplicate: dup})
		if n.ReviewState == state.ReviewRejected {
			rejected[n.ProvisionalID] = true
		}
		if n.ReviewState == state.ReviewAccepted {
			snap.AcceptedCount++
		}
	}
	for _, e := range s.edges {
		snap.Edges = append(snap.Edges, EdgeView{
			ProposedEdge:     e,
			EndpointRejected: rejected[e.SourceRef] || rejected[e.TargetRef],
		})
		if e.ReviewState == state.ReviewAccepted {
			snap.AcceptedCount++
		}
	}

	return snap
}
