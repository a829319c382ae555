package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Helper Functions
// ============================================================================

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getIntFromRecord(record *neo4j.Record, key string) int {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if i, ok := val.(int64); ok {
		return int(i)
	}
	if i, ok := val.(int); ok {
		return i
	}
	return 0
}

func getBoolFromRecord(record *neo4j.Record, key string) bool {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return false
	}
	b, _ := val.(bool)
	return b
}

func getTimeFromRecord(record *neo4j.Record, key string) time.Time {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return time.Time{}
	}
	// Neo4j datetime values come as time.Time
	if t, ok := val.(time.Time); ok {
		return t
	}
	return time.Time{}
}

func nodeFromRecord(record *neo4j.Record) Node {
	return Node{
		ID: getStringFromRecord(record, "id"),
		NodeAttributes: NodeAttributes{
			Label:            getStringFromRecord(record, "label"),
			NodeType:         getStringFromRecord(record, "node_type"),
			Metadata:         getStringFromRecord(record, "metadata"),
			Role:             getStringFromRecord(record, "role"),
			Aliases:          getStringFromRecord(record, "aliases"),
			Status:           getStringFromRecord(record, "status"),
			Location:         getStringFromRecord(record, "location"),
			DOB:              getStringFromRecord(record, "dob"),
			EventType:        getStringFromRecord(record, "event_type"),
			EventDate:        getStringFromRecord(record, "event_date"),
			EventLocation:    getStringFromRecord(record, "event_location"),
			EventDescription: getStringFromRecord(record, "event_description"),
		},
		CreatedAt: getTimeFromRecord(record, "created_at"),
	}
}

func edgeFromRecord(record *neo4j.Record) Edge {
	return Edge{
		ID:       getStringFromRecord(record, "id"),
		SourceID: getStringFromRecord(record, "source_id"),
		TargetID: getStringFromRecord(record, "target_id"),
		EdgeAttributes: EdgeAttributes{
			Label:        getStringFromRecord(record, "label"),
			Relationship: getStringFromRecord(record, "relationship"),
			CustomLabel:  getStringFromRecord(record, "custom_label"),
			Description:  getStringFromRecord(record, "description"),
			Confidence:   getStringFromRecord(record, "confidence"),
			Direction:    getStringFromRecord(record, "direction"),
			Weight:       getIntFromRecord(record, "weight"),
			StartDate:    getStringFromRecord(record, "start_date"),
			EndDate:      getStringFromRecord(record, "end_date"),
			EventDate:    getStringFromRecord(record, "event_date"),
			Location:     getStringFromRecord(record, "location"),
		},
		CreatedAt: getTimeFromRecord(record, "created_at"),
	}
}

func nodeParams(id string, attrs NodeAttributes) map[string]interface{} {
	return map[string]interface{}{
		"id":                id,
		"label":             attrs.Label,
		"node_type":         attrs.NodeType,
		"metadata":          attrs.Metadata,
		"role":              attrs.Role,
		"aliases":           attrs.Aliases,
		"status":            attrs.Status,
		"location":          attrs.Location,
		"dob":               attrs.DOB,
		"event_type":        attrs.EventType,
		"event_date":        attrs.EventDate,
		"event_location":    attrs.EventLocation,
		"event_description": attrs.EventDescription,
	}
}

func edgeParams(id, sourceID, targetID string, attrs EdgeAttributes) map[string]interface{} {
	return map[string]interface{}{
		"id":           id,
		"source_id":    sourceID,
		"target_id":    targetID,
		"label":        attrs.Label,
		"relationship": attrs.Relationship,
		"custom_label": attrs.CustomLabel,
		"description":  attrs.Description,
		"confidence":   attrs.Confidence,
		"direction":    attrs.Direction,
		"weight":       int64(attrs.Weight),
		"start_date":   attrs.StartDate,
		"end_date":     attrs.EndDate,
		"event_date":   attrs.EventDate,
		"location":     attrs.Location,
	}
}
