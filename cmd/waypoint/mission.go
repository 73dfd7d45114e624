package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aescanero/waypoint/internal/application/orchestrator"
	"github.com/aescanero/waypoint/internal/phase"
	eventsmemory "github.com/aescanero/waypoint/pkg/adapters/events/memory"
	promcollector "github.com/aescanero/waypoint/pkg/adapters/metrics/prometheus"
	storagememory "github.com/aescanero/waypoint/pkg/adapters/storage/memory"
	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newMissionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mission",
		Short: "Run missions",
	}
	cmd.AddCommand(newMissionRunCmd(a))
	return cmd
}

type missionRunOptions struct {
	start         int
	end           int
	injectFault   string
	output        string
	trace         bool
	phaseDuration time.Duration
	roadmap       roadmapFlags
}

func newMissionRunCmd(a *app) *cobra.Command {
	opts := &missionRunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Plan and fly one mission",
		Long: `Plan the cheapest route from --start to --end and fly it: takeoff and survey,
then return-to-home and land. The report is printed when the mission ends.

Without --end the mission flies to the last roadmap node. Without a roadmap
file a random complete roadmap is generated.

Exit codes:
  0 - Mission succeeded
  1 - Mission failed (unreachable, phase fault or timeout)
  2 - Invalid arguments or configuration

Examples:
  # Random 100-node roadmap, node 0 to node 99
  waypoint mission run

  # Roadmap file, injected fault in the survey phase, JSON report
  waypoint mission run --roadmap corridor.yaml --start 0 --end 4 --inject-fault survey --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMission(cmd, a, opts)
		},
	}

	cmd.Flags().IntVar(&opts.start, "start", 0, "Start node")
	cmd.Flags().IntVar(&opts.end, "end", -1, "End node (default: last node)")
	cmd.Flags().StringVar(&opts.injectFault, "inject-fault", "", "Replace a phase with a failure: takeoff, survey, return_to_home, land")
	cmd.Flags().StringVar(&opts.output, "output", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "Include recorded spans in the output")
	cmd.Flags().DurationVar(&opts.phaseDuration, "phase-duration", 0, "How long each phase acts (overrides MISSION_PHASE_DURATION)")
	opts.roadmap.register(cmd)

	return cmd
}

// missionOutput is the JSON shape of a mission run
type missionOutput struct {
	Report *domain.MissionReport `json:"report"`
	Spans  []spanSummary         `json:"spans,omitempty"`
}

type spanSummary struct {
	Name     string        `json:"name"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration_ns"`
	Status   string        `json:"status"`
}

func runMission(cmd *cobra.Command, a *app, opts *missionRunOptions) error {
	if err := checkOutput(opts.output); err != nil {
		return err
	}

	cfg := *a.cfg
	opts.roadmap.apply(cmd, &cfg.Roadmap)
	if cmd.Flags().Changed("phase-duration") {
		cfg.Mission.PhaseDuration = opts.phaseDuration
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	rm, err := loadRoadmap(cfg.Roadmap, a.logger)
	if err != nil {
		return err
	}

	end := opts.end
	if !cmd.Flags().Changed("end") {
		end = rm.Graph.NumNodes() - 1
	}

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(cmd.Context()) }()

	bus := eventsmemory.NewInMemoryEventBus(a.logger)
	defer bus.Close()

	manager := orchestrator.NewManager(
		phase.NewRegistry(a.logger, phase.WithDuration(cfg.Mission.PhaseDuration)),
		bus,
		storagememory.NewInMemoryReportStorage(),
		promcollector.NewCollector(prometheus.NewRegistry()),
		orchestrator.NewValidator(),
		a.logger,
		orchestrator.WithTracer(tp.Tracer("waypoint")),
		orchestrator.WithMissionTimeout(cfg.Timeouts.MissionExecutionTimeout),
		orchestrator.WithActuationWait(cfg.Mission.ActuationWaitTimeout),
	)

	report, runErr := manager.ExecuteMission(cmd.Context(), rm.Graph, domain.MissionRequest{
		Start:       opts.start,
		End:         end,
		InjectFault: domain.PhaseKind(opts.injectFault),
	})
	if domain.CodeOf(runErr) == domain.CodeInvalidArgument {
		return runErr
	}

	out := missionOutput{Report: report}
	if opts.trace {
		out.Spans = summarizeSpans(recorder.Ended())
	}

	if err := writeMission(cmd.OutOrStdout(), opts.output, out); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("%w: %w", errMissionFailed, runErr)
	}
	return nil
}

func writeMission(w io.Writer, format string, out missionOutput) error {
	if format == "json" {
		return writeJSON(w, out)
	}

	r := out.Report
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Mission:\t%s\n", r.MissionID)
	fmt.Fprintf(tw, "Status:\t%s\n", r.Status)
	if r.Reason != domain.FailureReasonNone {
		fmt.Fprintf(tw, "Reason:\t%s\n", r.Reason)
		fmt.Fprintf(tw, "Error:\t%s\n", r.Error)
	}
	fmt.Fprintf(tw, "Route:\t%d -> %d\n", r.Start, r.End)
	if len(r.Path) > 0 {
		fmt.Fprintf(tw, "Path:\t%s\n", formatPath(r.Path))
		fmt.Fprintf(tw, "Cost:\t%d\n", r.Cost)
	}
	fmt.Fprintf(tw, "States:\t%s\n", formatStates(r.States))
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nPhases:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  PHASE\tOUTCOME\tDURATION\tERROR")
	for _, p := range r.Phases {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", p.Phase, p.Outcome, p.CompletedAt.Sub(p.StartedAt).Round(time.Microsecond), p.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(out.Spans) > 0 {
		fmt.Fprintln(w, "\nSpans:")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, s := range out.Spans {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", s.Name, s.Duration.Round(time.Microsecond), s.Status)
		}
		return tw.Flush()
	}
	return nil
}

func summarizeSpans(spans []sdktrace.ReadOnlySpan) []spanSummary {
	summaries := make([]spanSummary, 0, len(spans))
	for _, s := range spans {
		summaries = append(summaries, spanSummary{
			Name:     s.Name(),
			Start:    s.StartTime(),
			Duration: s.EndTime().Sub(s.StartTime()),
			Status:   s.Status().Code.String(),
		})
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Start.Before(summaries[j].Start)
	})
	return summaries
}

func formatPath(path []int) string {
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, " -> ")
}

func formatStates(states []domain.MissionState) string {
	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = string(s)
	}
	return strings.Join(parts, " > ")
}

func checkOutput(format string) error {
	switch format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("invalid output format %q (must be text or json)", format)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
