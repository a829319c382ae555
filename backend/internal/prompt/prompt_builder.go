package prompt

import (
	"fmt"
	"strings"

	"linkboard/backend/internal/state"
)

// Prompt is the instruction/payload pair sent to the model
type Prompt struct {
	System string
	User   string
}

// Vocabulary is the closed set of values the model is told to use. The
// normalizer enforces the same sets, so keeping them in one place keeps the
// model's output on values that survive normalization.
type Vocabulary struct {
	NodeTypes         []string
	RelationshipTypes []string
	ConfidenceLevels  []string
	Directions        []string
	EventTypes        []string
}

// DefaultVocabulary returns the board's enumerations
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		NodeTypes:         toStrings(state.NodeTypes),
		RelationshipTypes: toStrings(state.Relationships),
		ConfidenceLevels:  toStrings(state.ConfidenceLevels),
		Directions:        toStrings(state.Directions),
		EventTypes:        append([]string(nil), state.EventTypes...),
	}
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// BuildPrompt creates the system instruction and user payload for one extraction
func BuildPrompt(sourceText string, vocab Vocabulary) Prompt {
	return Prompt{
		System: buildSystemPrompt(vocab),
		User:   buildUserPrompt(sourceText),
	}
}

func buildUserPrompt(text string) string {
	return "Extract all entities and relationships from the following text:\n\n" + text
}

func buildSystemPrompt(v Vocabulary) string {
	alt := func(values []string) string { return strings.Join(values, " | ") }
	list := func(values []string) string { return strings.Join(values, ", ") }

	var sb strings.Builder
	sb.WriteString(`You are an intelligence analyst assistant that extracts structured entities and relationships from unstructured text for a link analysis investigation board.

TASK: Extract all entities (people, organizations, phone numbers, events) and relationships between them from the provided text. Output ONLY valid JSON matching the exact schema below. No markdown, no explanation, no code fences.

OUTPUT SCHEMA:
{
  "nodes": [
    {
      "label": "string (entity name, required)",
`)
	fmt.Fprintf(&sb, "      \"nodeType\": \"%s\",\n", alt(v.NodeTypes))
	sb.WriteString(`      "metadata": "string (brief notes about this entity from the text)",
      "role": "string (job title or role, for Person nodes only)",
      "aliases": "string (comma-separated alternate names if mentioned)",
      "status": "string (leave empty unless text explicitly states a status)",
      "location": "string (associated location if mentioned)",
      "dob": "string (YYYY-MM-DD if mentioned, else empty)",
`)
	fmt.Fprintf(&sb, "      \"eventType\": \"%s (for Event nodes only)\",\n", alt(v.EventTypes))
	sb.WriteString(`      "eventDate": "string (YYYY-MM-DD if mentioned, else empty)",
      "eventLocation": "string (for Event nodes only)",
      "eventDescription": "string (brief description for Event nodes only)"
    }
  ],
  "edges": [
    {
      "sourceLabel": "string (exact label of source node from nodes array)",
      "targetLabel": "string (exact label of target node from nodes array)",
`)
	fmt.Fprintf(&sb, "      \"relationship\": \"%s\",\n", alt(v.RelationshipTypes))
	sb.WriteString(`      "customLabel": "string (specific verb or action, e.g. 'paid', 'called', 'met with')",
      "description": "string (evidence or context from the text supporting this relationship)",
`)
	fmt.Fprintf(&sb, "      \"confidence\": \"%s\",\n", alt(v.ConfidenceLevels))
	fmt.Fprintf(&sb, "      \"direction\": \"%s\",\n", alt(v.Directions))
	sb.WriteString(`      "weight": 2,
      "startDate": "string (YYYY-MM-DD if mentioned, else empty)",
      "endDate": "string (YYYY-MM-DD if mentioned, else empty)",
      "eventDate": "string (YYYY-MM-DD if a specific date is mentioned, else empty)",
      "location": "string (where the interaction occurred if mentioned)"
    }
  ]
}

RULES:
`)
	fmt.Fprintf(&sb, "1. Node types MUST be exactly one of: %s\n", list(v.NodeTypes))
	sb.WriteString("2. Phone numbers become Phone nodes with the number as the label\n")
	sb.WriteString("3. Locations mentioned as entities should become Organization nodes with the location name as the label and \"[Location]\" in metadata\n")
	fmt.Fprintf(&sb, "4. Relationship types MUST be exactly one of: %s\n", list(v.RelationshipTypes))
	sb.WriteString(`5. Use "customLabel" for specific verbs (e.g., "employed by" -> relationship: "Professional", customLabel: "employed by")
6. Edge sourceLabel and targetLabel MUST exactly match a node label in the nodes array
7. Only extract entities and relationships explicitly stated or strongly implied in the text
`)
	fmt.Fprintf(&sb, "8. Confidence MUST be exactly one of: %s. Use the first for explicit statements, the second for strong implications, the last for weak implications\n", list(v.ConfidenceLevels))
	fmt.Fprintf(&sb, "9. Weight is an integer from 1 (weak) to 8 (strong); direction MUST be exactly one of: %s\n", list(v.Directions))
	sb.WriteString(`10. Do NOT invent relationships not supported by the text
11. Output MUST be valid JSON. No trailing commas, no comments, no markdown code fences.
12. If the text contains no extractable entities, output {"nodes": [], "edges": []}`)

	return sb.String()
}
