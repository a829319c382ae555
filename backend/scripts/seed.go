package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"linkboard/backend/internal/graph"
	"linkboard/backend/internal/merge"
	"linkboard/backend/internal/state"
	"linkboard/backend/pkg/config"
	"linkboard/backend/pkg/logger"
)

func main() {
	reset := flag.Bool("reset", false, "Delete every entity and link before seeding")
	skipConfirm := flag.Bool("y", false, "Skip the reset confirmation prompt")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting board seeding...", zap.String("graph_backend", cfg.GraphBackend))

	ctx := context.Background()
	store, err := graph.Open(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to open graph store", zap.Error(err))
	}
	defer store.Close()

	if *reset {
		if !*skipConfirm {
			fmt.Println("WARNING: This will DELETE ALL entities and links on the board!")
			fmt.Print("Are you sure you want to continue? (yes/no): ")

			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if strings.TrimSpace(strings.ToLower(answer)) != "yes" {
				fmt.Println("Aborted.")
				return
			}
		}

		log.Info("Clearing board...")
		if err := store.Clear(ctx); err != nil {
			log.Fatal("Failed to clear board", zap.Error(err))
		}
	}

	nodes, edges := demoBatch()
	result, err := merge.NewEngine(nil).Commit(ctx, nodes, edges, store)
	if err != nil {
		log.Fatal("Failed to seed board", zap.Error(err))
	}

	log.Info("Seeding complete",
		zap.Int("nodes_created", result.NodesCreated),
		zap.Int("nodes_reused", result.NodesReused),
		zap.Int("edges_created", result.EdgesCreated),
		zap.Int("edges_skipped", result.EdgesSkipped),
	)
}

// demoBatch is a small accepted batch covering each entity type
func demoBatch() ([]state.ProposedNode, []state.ProposedEdge) {
	nodes := []state.ProposedNode{
		{ProvisionalID: "n-1", Label: "Alice Smith", NodeType: state.NodeTypePerson, Role: "CFO", Location: "Chicago"},
		{ProvisionalID: "n-2", Label: "Acme Corp", NodeType: state.NodeTypeOrganization, Metadata: "Logistics company"},
		{ProvisionalID: "n-3", Label: "Bob Jones", NodeType: state.NodeTypePerson, Role: "Accountant", Aliases: "Bobby"},
		{ProvisionalID: "n-4", Label: "555-0142", NodeType: state.NodeTypePhone},
		{
			ProvisionalID:    "n-5",
			Label:            "Q3 Board Meeting",
			NodeType:         state.NodeTypeEvent,
			EventType:        "Meeting",
			EventDate:        "2024-09-12",
			EventLocation:    "Acme HQ",
			EventDescription: "Quarterly review attended by finance staff",
		},
	}

	edges := []state.ProposedEdge{
		{
			ProvisionalID: "e-1", SourceLabel: "Alice Smith", TargetLabel: "Acme Corp",
			Relationship: state.RelationshipProfessional, CustomLabel: "works at",
			Confidence: state.ConfidenceConfirmed, Direction: state.DirectionDirected, Weight: 3,
		},
		{
			ProvisionalID: "e-2", SourceLabel: "Bob Jones", TargetLabel: "Acme Corp",
			Relationship: state.RelationshipProfessional,
			Confidence:   state.ConfidenceProbable, Direction: state.DirectionDirected, Weight: 2,
		},
		{
			ProvisionalID: "e-3", SourceLabel: "Alice Smith", TargetLabel: "Bob Jones",
			Relationship: state.RelationshipFinancial, CustomLabel: "paid", Description: "Wire transfer in August",
			Confidence: state.ConfidenceSuspected, Direction: state.DirectionDirected, Weight: 2,
		},
		{
			ProvisionalID: "e-4", SourceLabel: "Bob Jones", TargetLabel: "555-0142",
			Relationship: state.RelationshipCommunication, CustomLabel: "uses",
			Confidence: state.ConfidenceProbable, Direction: state.DirectionUndirected, Weight: 1,
		},
		{
			ProvisionalID: "e-5", SourceLabel: "Alice Smith", TargetLabel: "Q3 Board Meeting",
			Relationship: state.RelationshipAssociate, CustomLabel: "attended",
			Confidence: state.ConfidenceConfirmed, Direction: state.DirectionDirected, Weight: 1,
		},
	}

	refs := make(map[string]string, len(nodes))
	for i := range nodes {
		nodes[i].ReviewState = state.ReviewAccepted
		refs[nodes[i].Label] = nodes[i].ProvisionalID
	}
	for i := range edges {
		edges[i].ReviewState = state.ReviewAccepted
		edges[i].SourceRef = refs[edges[i].SourceLabel]
		edges[i].TargetRef = refs[edges[i].TargetLabel]
	}
	return nodes, edges
}
