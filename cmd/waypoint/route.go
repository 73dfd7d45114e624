package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/aescanero/waypoint/internal/planner"
	"github.com/aescanero/waypoint/internal/roadmap"
	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type routeOptions struct {
	start   int
	end     int
	from    string
	to      string
	output  string
	roadmap roadmapFlags
}

// routeOutput is the JSON shape of a planned route
type routeOutput struct {
	Start          int     `json:"start"`
	End            int     `json:"end"`
	Path           []int   `json:"path"`
	Cost           int64   `json:"cost"`
	DistanceMeters float64 `json:"distance_m,omitempty"`
}

func newRouteCmd(a *app) *cobra.Command {
	opts := &routeOptions{}

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Plan a route without flying it",
		Long: `Print the cheapest path between two roadmap nodes and its cost.

Endpoints are node ids (--start, --end) or, on roadmaps with waypoint
coordinates, "lon,lat" pairs snapped to the nearest waypoint (--from, --to).

Examples:
  waypoint route --roadmap corridor.yaml --start 0 --end 4
  waypoint route --roadmap city.yaml --from 2.1734,41.3851 --to 2.1920,41.4036 --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoute(cmd, a, opts)
		},
	}

	cmd.Flags().IntVar(&opts.start, "start", 0, "Start node")
	cmd.Flags().IntVar(&opts.end, "end", -1, "End node (default: last node)")
	cmd.Flags().StringVar(&opts.from, "from", "", "Start coordinate as lon,lat")
	cmd.Flags().StringVar(&opts.to, "to", "", "End coordinate as lon,lat")
	cmd.Flags().StringVar(&opts.output, "output", "text", "Output format: text, json")
	cmd.MarkFlagsMutuallyExclusive("start", "from")
	cmd.MarkFlagsMutuallyExclusive("end", "to")
	opts.roadmap.register(cmd)

	return cmd
}

func runRoute(cmd *cobra.Command, a *app, opts *routeOptions) error {
	if err := checkOutput(opts.output); err != nil {
		return err
	}

	cfg := *a.cfg
	opts.roadmap.apply(cmd, &cfg.Roadmap)
	if err := cfg.Validate(); err != nil {
		return err
	}

	rm, err := loadRoadmap(cfg.Roadmap, a.logger)
	if err != nil {
		return err
	}

	start, err := resolveNode(rm, opts.start, opts.from)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	end := rm.Graph.NumNodes() - 1
	if cmd.Flags().Changed("end") {
		end = opts.end
	}
	end, err = resolveNode(rm, end, opts.to)
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}

	path, err := planner.ShortestPath(rm.Graph, start, end)
	if errors.Is(err, domain.ErrUnreachable) {
		a.logger.Warn("no route", zap.Int("start", start), zap.Int("end", end))
		return fmt.Errorf("%w: %w", errMissionFailed, err)
	}
	if err != nil {
		return err
	}

	out := routeOutput{
		Start:          start,
		End:            end,
		Path:           path.Nodes,
		Cost:           path.Cost,
		DistanceMeters: rm.PathDistanceMeters(path.Nodes),
	}

	w := cmd.OutOrStdout()
	if opts.output == "json" {
		return writeJSON(w, out)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Path:\t%s\n", formatPath(out.Path))
	fmt.Fprintf(tw, "Cost:\t%d\n", out.Cost)
	if out.DistanceMeters > 0 {
		fmt.Fprintf(tw, "Distance:\t%.0f m\n", out.DistanceMeters)
	}
	return tw.Flush()
}

// resolveNode returns node, or the waypoint nearest to coord when given
func resolveNode(rm *roadmap.Roadmap, node int, coord string) (int, error) {
	if coord == "" {
		return node, nil
	}

	lon, lat, err := parseCoordinate(coord)
	if err != nil {
		return -1, err
	}
	return rm.Nearest(lon, lat)
}

func parseCoordinate(s string) (float64, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, domain.InvalidArgument("coordinate %q is not lon,lat", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, domain.WrapError(domain.CodeInvalidArgument, "invalid longitude", err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, domain.WrapError(domain.CodeInvalidArgument, "invalid latitude", err)
	}
	return lon, lat, nil
}
