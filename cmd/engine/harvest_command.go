package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/poll"
)

func newHarvestCommand(ctx *commandContext) *cobra.Command {
	var fresh bool
	var jsonOut bool
	var strict bool

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Collect, enrich and normalize the job feed once",
		Long: "Runs the full pipeline once. With pipeline.resume enabled, a previous run's\n" +
			"listing and detail artifacts are reused and only missing details are fetched.\n" +
			"Interrupting the run keeps everything fetched so far.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if fresh {
				cfg.Pipeline.Resume = false
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := openResources(runCtx, cfg)
			if err != nil {
				return err
			}
			defer res.Close()

			out, err := poll.PollOnce(runCtx, cfg, res.builder(), nil)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				enc.SetEscapeHTML(false)
				if err := enc.Encode(out); err != nil {
					return err
				}
			} else {
				printOutcome(w, out)
			}

			if out.Cancelled {
				return context.Canceled
			}
			if strict && (out.CollectStatus == domain.CollectStalled || len(out.Failures) > 0) {
				return fmt.Errorf("harvest incomplete: collect=%s failures=%d", out.CollectStatus, len(out.Failures))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fresh, "fresh", false, "Ignore artifacts from previous runs")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the run outcome as JSON")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when collection stalled or any record failed")
	return cmd
}

func printOutcome(w io.Writer, out domain.RunOutcome) {
	c := out.Counts
	fmt.Fprintf(w, "run %s: collect %s", out.RunID, out.CollectStatus)
	if len(out.Resumed) > 0 {
		fmt.Fprintf(w, " (resumed %v)", out.Resumed)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  listings:   %d collected over %d pages, %d without id, %d duplicates\n",
		c.StubsCollected, c.PagesFetched, c.StubsMissingID, c.DuplicateIDs)
	fmt.Fprintf(w, "  details:    %d fetched, %d reused, %d failed\n", c.DetailsFetched, c.DetailsReused, c.DetailsFailed)
	fmt.Fprintf(w, "  normalized: %d records, %d failed, %d without title, %d without description\n",
		c.RecordsNormalized, c.NormalizeFailed, c.EmptyTitle, c.EmptyDescription)
	for _, f := range out.Failures {
		fmt.Fprintf(w, "  failed %s [%s/%s after %d attempts]: %s\n", f.ID, f.Stage, f.Kind, f.Attempts, f.Reason)
	}
}
