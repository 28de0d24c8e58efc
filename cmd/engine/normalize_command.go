package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"jobharvest-engine/internal/artifact"
	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/logger"
	"jobharvest-engine/internal/normalize"
	"jobharvest-engine/internal/store"
)

func newNormalizeCommand(ctx *commandContext) *cobra.Command {
	var skipStore bool

	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Rebuild normalized records from the saved detail artifact",
		Long:  "Re-runs normalization over details.json without touching the network,\nrewrites jobs.json and upserts the records into the job store.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log := logger.New("normalize")

			arts, err := artifact.Open(cfg.ArtifactDir())
			if err != nil {
				return err
			}
			if err := arts.Lock(); err != nil {
				return err
			}
			defer func() {
				if err := arts.Unlock(); err != nil {
					log.LogError("release artifact lock", err)
				}
			}()

			details, ok, err := arts.LoadDetails()
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("no detail artifact in " + arts.Path() + "; run `engine harvest` first")
			}

			schema, err := normalize.SchemaByVersion(cfg.Normalizer.CustomFieldSchema)
			if err != nil {
				return err
			}
			start := time.Now()
			res, err := normalize.New(schema).All(cmd.Context(), details, cfg.Normalizer.Workers)
			if err != nil {
				return err
			}
			for _, f := range res.Failures {
				log.Warn().Str("id", f.ID).Str("kind", string(f.Kind)).Msg(f.Reason)
			}
			if err := arts.SaveJobs(res.Jobs); err != nil {
				return err
			}

			stored := 0
			if !skipStore {
				stored, err = storeJobs(cmd.Context(), cfg.SQLitePath(), runIDFor(arts), res.Jobs)
				if err != nil {
					return err
				}
			}

			log.Info().
				Int("details", len(details)).
				Int("normalized", len(res.Jobs)).
				Int("failed", len(res.Failures)).
				Int("stored", stored).
				Dur("took", time.Since(start)).
				Msg("normalize finished")
			fmt.Fprintf(cmd.OutOrStdout(), "normalized %d of %d details (%d failed)\n", len(res.Jobs), len(details), len(res.Failures))
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipStore, "no-store", false, "Only rewrite jobs.json")
	return cmd
}

// runIDFor keeps the id of the run that produced the details when known.
func runIDFor(arts *artifact.Dir) string {
	if o, ok, err := arts.LoadOutcome(); err == nil && ok && o.RunID != "" {
		return o.RunID
	}
	return uuid.NewString()
}

func storeJobs(ctx context.Context, path, runID string, jobs []domain.CanonicalJob) (int, error) {
	db, err := store.Open(path)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	return store.UpsertJobs(ctx, db.Pool, runID, jobs)
}
