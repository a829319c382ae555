package normalizer

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkboard/backend/internal/sanitizer"
	"linkboard/backend/internal/state"
	apperrors "linkboard/backend/pkg/errors"
)

func TestNormalize_WrongTypedMembersDegrade(t *testing.T) {
	inputs := []string{
		`{}`,
		`{"nodes":null}`,
		`{"nodes":"Alice","edges":42}`,
		`{"nodes":{"label":"Alice"},"edges":{}}`,
		`{"nodes":[1,"two",null,[]],"edges":[true]}`,
		`[]`,
		`[{"label":"Alice"}]`,
	}
	n := New(nil)
	for _, in := range inputs {
		p, err := n.Normalize(in)
		require.NoError(t, err, in)
		assert.Empty(t, p.Nodes, in)
		assert.Empty(t, p.Edges, in)
		assert.True(t, p.Empty(), in)
	}
}

func TestNormalize_NotAnObject(t *testing.T) {
	n := New(nil)
	for _, in := range []string{`null`, `"text"`, `7`, `true`} {
		_, err := n.Normalize(in)
		assert.ErrorIs(t, err, apperrors.ErrNotAnObject, in)
	}
}

func TestNormalize_Malformed(t *testing.T) {
	_, err := New(nil).Normalize(`{"nodes":[`)

	var malformed *apperrors.ErrMalformedResponse
	require.ErrorAs(t, err, &malformed)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeParse))
}

func TestNormalize_Nodes(t *testing.T) {
	p, err := New(nil).Normalize(`{"nodes":[
		{"label":"  Alice  ","nodeType":"person","role":"CFO","aliases":7},
		{"label":"   "},
		{"nodeType":"Organization"},
		{"label":"Acme","nodeType":"Company"},
		{"label":"Summit","nodeType":"Event","eventType":"Meeting","eventDate":"2024-03-01"}
	]}`)
	require.NoError(t, err)
	require.Len(t, p.Nodes, 3)

	alice := p.Nodes[0]
	assert.Equal(t, "Alice", alice.Label)
	assert.Equal(t, state.NodeTypePerson, alice.NodeType)
	assert.Equal(t, "CFO", alice.Role)
	assert.Equal(t, "", alice.Aliases)
	assert.Equal(t, state.ReviewPending, alice.ReviewState)
	assert.True(t, strings.HasPrefix(alice.ProvisionalID, "n"))

	assert.Equal(t, state.NodeTypePerson, p.Nodes[1].NodeType, "unknown node type falls back to Person")
	assert.Equal(t, state.NodeTypeEvent, p.Nodes[2].NodeType)
	assert.Equal(t, "Meeting", p.Nodes[2].EventType)
	assert.Equal(t, "2024-03-01", p.Nodes[2].EventDate)
}

func TestNormalize_DanglingEdgeReference(t *testing.T) {
	p, err := New(nil).Normalize(`{"nodes":[{"label":"Carol"}],"edges":[{"sourceLabel":"Carol","targetLabel":"Dave","relationship":"Unknown"}]}`)
	require.NoError(t, err)

	assert.Len(t, p.Nodes, 1)
	assert.Empty(t, p.Edges)
}

func TestNormalize_EdgeResolution(t *testing.T) {
	p, err := New(nil).Normalize(`{
		"nodes":[{"label":"Alice"},{"label":"Acme Corp","nodeType":"Organization"}],
		"edges":[
			{"sourceLabel":" alice ","targetLabel":"ACME CORP","relationship":"professional","customLabel":"employed by","confidence":"Confirmed","direction":"Mutual","weight":5},
			{"sourceLabel":"Alice","targetLabel":""},
			{"targetLabel":"Alice"},
			{"sourceLabel":"Alice","targetLabel":"Acme Corp","relationship":"Business","confidence":"high","direction":"left"}
		]}`)
	require.NoError(t, err)
	require.Len(t, p.Edges, 2)

	e := p.Edges[0]
	assert.Equal(t, p.Nodes[0].ProvisionalID, e.SourceRef)
	assert.Equal(t, p.Nodes[1].ProvisionalID, e.TargetRef)
	assert.Equal(t, "alice", e.SourceLabel)
	assert.Equal(t, state.RelationshipProfessional, e.Relationship)
	assert.Equal(t, "employed by", e.CustomLabel)
	assert.Equal(t, state.ConfidenceConfirmed, e.Confidence)
	assert.Equal(t, state.DirectionMutual, e.Direction)
	assert.Equal(t, 5, e.Weight)
	assert.True(t, strings.HasPrefix(e.ProvisionalID, "e"))

	fallback := p.Edges[1]
	assert.Equal(t, state.RelationshipUnknown, fallback.Relationship)
	assert.Equal(t, state.ConfidenceProbable, fallback.Confidence)
	assert.Equal(t, state.DirectionDirected, fallback.Direction)
	assert.Equal(t, 2, fallback.Weight)
}

func TestNormalize_EveryEdgeReferencesBatchNode(t *testing.T) {
	p, err := New(nil).Normalize(`{
		"nodes":[{"label":"A"},{"label":"B"},{"label":""}],
		"edges":[
			{"sourceLabel":"A","targetLabel":"B"},
			{"sourceLabel":"A","targetLabel":"C"},
			{"sourceLabel":"X","targetLabel":"B"},
			{"sourceLabel":"b","targetLabel":"a"}
		]}`)
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, n := range p.Nodes {
		ids[n.ProvisionalID] = true
	}
	assert.Len(t, p.Edges, 2)
	for _, e := range p.Edges {
		assert.True(t, ids[e.SourceRef], "source %s not in batch", e.SourceRef)
		assert.True(t, ids[e.TargetRef], "target %s not in batch", e.TargetRef)
	}
}

func TestNormalize_DuplicateLabelsResolveToLast(t *testing.T) {
	p, err := New(nil).Normalize(`{"nodes":[{"label":"Sam"},{"label":"sam"},{"label":"Kim"}],"edges":[{"sourceLabel":"SAM","targetLabel":"Kim"}]}`)
	require.NoError(t, err)

	require.Len(t, p.Nodes, 3)
	require.Len(t, p.Edges, 1)
	assert.Equal(t, p.Nodes[1].ProvisionalID, p.Edges[0].SourceRef)
}

func TestNormalize_WeightClamp(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`-5`, 1},
		{`0`, 1},
		{`1`, 1},
		{`4.6`, 5},
		{`9`, 8},
		{`100`, 8},
		{`"x"`, 2},
		{`"5"`, 2},
		{`null`, 2},
	}
	n := New(nil)
	for _, tt := range tests {
		in := fmt.Sprintf(`{"nodes":[{"label":"A"},{"label":"B"}],"edges":[{"sourceLabel":"A","targetLabel":"B","weight":%s}]}`, tt.raw)
		p, err := n.Normalize(in)
		require.NoError(t, err)
		require.Len(t, p.Edges, 1)
		assert.Equal(t, tt.want, p.Edges[0].Weight, "weight %s", tt.raw)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	in := `{"nodes":[{"label":"A","metadata":"m"},{"label":"B"}],"edges":[{"sourceLabel":"A","targetLabel":"B","weight":3}]}`
	n := New(nil)

	a, err := n.Normalize(in)
	require.NoError(t, err)
	b, err := n.Normalize(in)
	require.NoError(t, err)

	strip := func(p *state.Proposals) *state.Proposals {
		for i := range p.Nodes {
			p.Nodes[i].ProvisionalID = ""
		}
		for i := range p.Edges {
			p.Edges[i].ProvisionalID, p.Edges[i].SourceRef, p.Edges[i].TargetRef = "", "", ""
		}
		return p
	}
	assert.Equal(t, strip(a), strip(b))
}

func TestSanitizedScenarios(t *testing.T) {
	n := New(nil)

	fenced := "```json\n{\"nodes\":[{\"label\":\"Alice\",\"nodeType\":\"Person\"}],\"edges\":[]}\n```"
	p, err := n.Normalize(sanitizer.Sanitize(fenced))
	require.NoError(t, err)
	require.Len(t, p.Nodes, 1)
	assert.Equal(t, "Alice", p.Nodes[0].Label)
	assert.Equal(t, state.NodeTypePerson, p.Nodes[0].NodeType)
	assert.Empty(t, p.Edges)

	p, err = n.Normalize(sanitizer.Sanitize(`{'nodes':[{'label':'Bob',}],'edges':[`))
	require.NoError(t, err)
	require.Len(t, p.Nodes, 1)
	assert.Equal(t, "Bob", p.Nodes[0].Label)
	assert.Empty(t, p.Edges)
}

func TestIDGenerator_UniqueUnderConcurrency(t *testing.T) {
	g := NewIDGenerator()
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[string]bool, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, g.Next("n"))
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				seen[id] = true
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestIDGenerator_SameMillisecond(t *testing.T) {
	g := NewIDGenerator()
	fixed := time.UnixMilli(1718000000000)
	g.now = func() time.Time { return fixed }

	assert.Equal(t, "n1718000000000-1", g.Next("n"))
	assert.Equal(t, "e1718000000000-2", g.Next("e"))
}
