package main

import (
	"fmt"

	"github.com/aescanero/waypoint/internal/config"
	"github.com/aescanero/waypoint/internal/roadmap"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// roadmapFlags override the environment's roadmap selection
type roadmapFlags struct {
	file    string
	nodes   int
	minCost int64
	maxCost int64
	seed    int64
}

func (f *roadmapFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "roadmap", "", "Roadmap YAML/JSON file (overrides ROADMAP_FILE)")
	cmd.Flags().IntVar(&f.nodes, "nodes", 0, "Node count of a random complete roadmap")
	cmd.Flags().Int64Var(&f.minCost, "min-cost", 0, "Minimum random edge cost")
	cmd.Flags().Int64Var(&f.maxCost, "max-cost", 0, "Maximum random edge cost")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "Random roadmap seed")

	for _, random := range []string{"nodes", "min-cost", "max-cost", "seed"} {
		cmd.MarkFlagsMutuallyExclusive("roadmap", random)
	}
}

// apply copies the flags the user set onto cfg
func (f *roadmapFlags) apply(cmd *cobra.Command, cfg *config.RoadmapConfig) {
	flags := cmd.Flags()
	if flags.Changed("roadmap") {
		cfg.File = f.file
	}
	if flags.Changed("nodes") || flags.Changed("min-cost") || flags.Changed("max-cost") || flags.Changed("seed") {
		cfg.File = ""
	}
	if flags.Changed("nodes") {
		cfg.Nodes = f.nodes
	}
	if flags.Changed("min-cost") {
		cfg.MinCost = f.minCost
	}
	if flags.Changed("max-cost") {
		cfg.MaxCost = f.maxCost
	}
	if flags.Changed("seed") {
		cfg.Seed = f.seed
	}
}

// loadRoadmap builds the roadmap from a file or, without one, at random
func loadRoadmap(cfg config.RoadmapConfig, logger *zap.Logger) (*roadmap.Roadmap, error) {
	if cfg.File != "" {
		rm, err := roadmap.Load(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to load roadmap: %w", err)
		}
		logger.Info("roadmap loaded",
			zap.String("file", cfg.File),
			zap.Int("nodes", rm.Graph.NumNodes()),
			zap.Int("edges", rm.Graph.NumEdges()),
			zap.Int("waypoints", len(rm.Waypoints)))
		return rm, nil
	}

	rm, err := roadmap.Random(roadmap.RandomConfig{
		Nodes:   cfg.Nodes,
		MinCost: cfg.MinCost,
		MaxCost: cfg.MaxCost,
		Seed:    cfg.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate roadmap: %w", err)
	}
	logger.Info("random roadmap generated",
		zap.Int("nodes", cfg.Nodes),
		zap.Int64("min_cost", cfg.MinCost),
		zap.Int64("max_cost", cfg.MaxCost),
		zap.Int64("seed", cfg.Seed))
	return rm, nil
}
