package pipeline

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"jobharvest-engine/internal/artifact"
	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/events"
	"jobharvest-engine/internal/logger"
	"jobharvest-engine/internal/normalize"
	"jobharvest-engine/internal/scrape/collector"
	"jobharvest-engine/internal/scrape/enricher"
	"jobharvest-engine/internal/scrape/types"
	"jobharvest-engine/internal/sink"
	"jobharvest-engine/internal/status"
	"jobharvest-engine/internal/store"
)

// Notifier receives progress events (harvest_started, stage_completed,
// harvest_finished).
type Notifier func(typ string, data any)

type Deps struct {
	Feed      types.PagedFeed
	Details   types.DetailFetcher
	Artifacts *artifact.Dir

	// Optional outputs.
	DB     *sql.DB
	Status status.Store
	Sink   sink.Publisher
	Notify Notifier
	Log    *logger.Logger
}

type Driver struct {
	deps Deps
	opts Options
	log  *logger.Logger
}

// New checks that every required capability is present. Anything missing is
// a fatal configuration error and no stage runs.
func New(deps Deps, opts Options) (*Driver, error) {
	switch {
	case deps.Feed == nil:
		return nil, domain.Wrap(domain.ErrFatalConfig, "pipeline", "new", "no paged feed", nil)
	case deps.Details == nil:
		return nil, domain.Wrap(domain.ErrFatalConfig, "pipeline", "new", "no detail fetcher", nil)
	case deps.Artifacts == nil:
		return nil, domain.Wrap(domain.ErrFatalConfig, "pipeline", "new", "no artifact directory", nil)
	}
	if opts.Schema.KeyFormat == "" {
		opts.Schema = normalize.CustomFieldsV1
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Notify == nil {
		deps.Notify = func(string, any) {}
	}
	return &Driver{deps: deps, opts: opts, log: deps.Log}, nil
}

// Run executes collect, enrich and normalize, persisting each stage's
// artifact. Only a fatal configuration error is returned; every other
// problem ends up in the outcome's status, counts and failures.
func (d *Driver) Run(ctx context.Context) (domain.RunOutcome, error) {
	arts := d.deps.Artifacts
	if err := arts.Lock(); err != nil {
		return domain.RunOutcome{}, err
	}
	defer func() {
		if err := arts.Unlock(); err != nil {
			d.log.LogError("release artifact lock", err)
		}
	}()

	out := domain.RunOutcome{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Failures:  []domain.Failure{},
	}
	d.deps.Notify(events.TypeHarvestStarted, map[string]any{"run_id": out.RunID})

	m := d.loadManifest(out.RunID)

	stubs := d.collect(ctx, &out, &m)
	details := d.enrich(ctx, &out, &m, stubs)
	d.normalize(ctx, &out, &m, details)

	out.Cancelled = out.Cancelled || ctx.Err() != nil
	out.FinishedAt = time.Now().UTC()

	d.publish(ctx, out)
	if err := arts.SaveOutcome(out); err != nil {
		d.log.LogError("save outcome", err)
	}
	d.logSummary(out)
	d.deps.Notify(events.TypeHarvestFinished, map[string]any{
		"run_id":         out.RunID,
		"collect_status": out.CollectStatus,
		"counts":         out.Counts,
		"cancelled":      out.Cancelled,
	})
	return out, nil
}

// loadManifest returns the manifest to continue from. Only an interrupted
// run is resumed: its listing must be complete and normalization must not
// have finished. Anything else starts over with a cleared directory.
func (d *Driver) loadManifest(runID string) artifact.Manifest {
	arts := d.deps.Artifacts
	if d.opts.Resume {
		m, ok, err := arts.LoadManifest()
		if err != nil {
			d.log.Warn().Err(err).Msg("manifest unreadable; starting fresh")
		}
		if ok && err == nil && resumable(m) {
			d.log.Info().Str("previous_run", m.RunID).Strs("completed", stageNames(m.Completed)).Msg("resuming")
			m.RunID = runID
			return m
		}
	}
	if err := arts.Reset(); err != nil {
		d.log.LogError("reset artifacts", err)
	}
	return artifact.Manifest{RunID: runID}
}

func resumable(m artifact.Manifest) bool {
	return m.Done(domain.StageCollect) &&
		!m.Done(domain.StageNormalize) &&
		m.CollectStatus == domain.CollectCompleted
}

func (d *Driver) collect(ctx context.Context, out *domain.RunOutcome, m *artifact.Manifest) []domain.ListingStub {
	arts := d.deps.Artifacts

	if m.Done(domain.StageCollect) {
		stubs, ok, err := arts.LoadListings()
		if ok && err == nil {
			out.Resumed = append(out.Resumed, domain.StageCollect)
			out.CollectStatus = m.CollectStatus
			out.Counts.StubsCollected = len(stubs)
			d.stageDone(domain.StageCollect, len(stubs), true)
			return stubs
		}
		d.log.Warn().Err(err).Msg("listing artifact missing or unreadable; collecting again")
		*m = artifact.Manifest{RunID: m.RunID}
	}

	res := collector.New(d.deps.Feed, d.opts.Collector, d.log.Component("collector")).Run(ctx)
	out.CollectStatus = res.Status
	out.Counts.PagesFetched = res.Pages
	out.Counts.StubsCollected = len(res.Stubs)

	if err := arts.SaveListings(res.Stubs); err != nil {
		d.log.LogError("save listing artifact", err)
		return res.Stubs
	}
	m.CollectStatus = res.Status
	if res.Status == domain.CollectCompleted && ctx.Err() == nil {
		m.MarkDone(domain.StageCollect)
	}
	d.saveManifest(*m)
	d.stageDone(domain.StageCollect, len(res.Stubs), false)
	return res.Stubs
}

func (d *Driver) enrich(ctx context.Context, out *domain.RunOutcome, m *artifact.Manifest, stubs []domain.ListingStub) []domain.RawDetail {
	arts := d.deps.Artifacts

	ids, missing, dups := enricher.UniqueIDs(stubs)
	out.Counts.StubsMissingID = missing
	out.Counts.DuplicateIDs = dups

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	set := enricher.NewDetailSet()
	if m.Done(domain.StageCollect) {
		prev, ok, err := arts.LoadDetails()
		if err != nil {
			d.log.Warn().Err(err).Msg("detail artifact unreadable; fetching everything again")
		}
		if ok && err == nil {
			for _, det := range prev {
				if wanted[det.ID] {
					set.Upsert(det)
				}
			}
			if set.Len() > 0 {
				out.Resumed = append(out.Resumed, domain.StageEnrich)
			}
		}
	}
	out.Counts.DetailsReused = set.Len()

	pending := make([]domain.ListingStub, 0, len(ids)-set.Len())
	for _, id := range ids {
		if !set.Has(id) {
			pending = append(pending, domain.ListingStub{ID: id})
		}
	}

	if len(pending) > 0 {
		res := enricher.New(d.deps.Details, d.opts.Enricher, d.log.Component("enricher")).Run(ctx, pending)
		for _, det := range res.Details {
			set.Upsert(det)
		}
		out.Counts.DetailsFetched = len(res.Details)
		out.Counts.DetailsFailed = len(res.Failures)
		out.Failures = append(out.Failures, res.Failures...)
		out.Cancelled = out.Cancelled || res.Cancelled
	}

	details := set.Ordered(ids)
	if err := arts.SaveDetails(details); err != nil {
		d.log.LogError("save detail artifact", err)
		return details
	}
	if ctx.Err() == nil {
		m.MarkDone(domain.StageEnrich)
	}
	d.saveManifest(*m)
	d.stageDone(domain.StageEnrich, len(details), len(pending) == 0)
	return details
}

func (d *Driver) normalize(ctx context.Context, out *domain.RunOutcome, m *artifact.Manifest, details []domain.RawDetail) {
	// Normalization is local and cheap; it still runs after cancellation so
	// the normalized artifact matches the details on disk.
	nctx := context.WithoutCancel(ctx)
	res, err := normalize.New(d.opts.Schema).All(nctx, details, d.opts.NormalizeWorkers)
	if err != nil {
		d.log.LogError("normalize", err)
		return
	}

	out.Jobs = res.Jobs
	out.Failures = append(out.Failures, res.Failures...)
	out.Counts.RecordsNormalized = len(res.Jobs)
	out.Counts.NormalizeFailed = len(res.Failures)
	for _, j := range res.Jobs {
		if j.Title == "" {
			out.Counts.EmptyTitle++
		}
		if j.Description == "" {
			out.Counts.EmptyDescription++
		}
	}

	if err := d.deps.Artifacts.SaveJobs(res.Jobs); err != nil {
		d.log.LogError("save normalized artifact", err)
		return
	}
	if finished(ctx, out) {
		m.MarkDone(domain.StageNormalize)
	}
	d.saveManifest(*m)
	d.stageDone(domain.StageNormalize, len(res.Jobs), false)
}

// publish pushes the outcome to the optional outputs. Their failures are
// logged and never change the outcome.
func (d *Driver) publish(ctx context.Context, out domain.RunOutcome) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()

	var g errgroup.Group
	if d.deps.DB != nil {
		g.Go(func() error {
			n, err := store.UpsertJobs(pctx, d.deps.DB, out.RunID, out.Jobs)
			if err != nil {
				d.log.LogError("store jobs", err)
				return nil
			}
			if err := store.RecordRun(pctx, d.deps.DB, out); err != nil {
				d.log.LogError("store run", err)
				return nil
			}
			d.log.Debug().Int("rows", n).Msg("jobs stored")
			return nil
		})
	}
	if d.deps.Sink != nil {
		g.Go(func() error {
			if err := d.deps.Sink.Publish(pctx, out.RunID, out.Jobs); err != nil {
				d.log.LogError("publish jobs", err)
			}
			return nil
		})
	}
	if d.deps.Status != nil {
		g.Go(func() error {
			if err := d.deps.Status.SetRun(pctx, out); err != nil {
				d.log.LogError("store run status", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// finished reports whether the run leaves nothing to resume. Failed details
// earn the next run one retry pass; a run that was itself resumed is final.
func finished(ctx context.Context, out *domain.RunOutcome) bool {
	if ctx.Err() != nil || out.Cancelled {
		return false
	}
	if out.Counts.DetailsFailed == 0 {
		return true
	}
	for _, s := range out.Resumed {
		if s == domain.StageCollect {
			return true
		}
	}
	return false
}

func (d *Driver) saveManifest(m artifact.Manifest) {
	if err := d.deps.Artifacts.SaveManifest(m); err != nil {
		d.log.LogError("save manifest", err)
	}
}

func (d *Driver) stageDone(stage domain.Stage, n int, resumed bool) {
	d.log.Info().Str("stage", string(stage)).Int("records", n).Bool("resumed", resumed).Msg("stage done")
	d.deps.Notify(events.TypeStageCompleted, map[string]any{"stage": stage, "records": n, "resumed": resumed})
}

func (d *Driver) logSummary(out domain.RunOutcome) {
	c := out.Counts
	ev := d.log.Info()
	if out.CollectStatus == domain.CollectStalled || out.Cancelled || len(out.Failures) > 0 {
		ev = d.log.Warn()
	}
	ev.Str("run_id", out.RunID).
		Str("collect_status", string(out.CollectStatus)).
		Bool("cancelled", out.Cancelled).
		Int("stubs", c.StubsCollected).
		Int("stubs_missing_id", c.StubsMissingID).
		Int("duplicates", c.DuplicateIDs).
		Int("details_fetched", c.DetailsFetched).
		Int("details_reused", c.DetailsReused).
		Int("details_failed", c.DetailsFailed).
		Int("normalized", c.RecordsNormalized).
		Int("normalize_failed", c.NormalizeFailed).
		Int("empty_title", c.EmptyTitle).
		Int("empty_description", c.EmptyDescription).
		Strs("failed_ids", out.FailedIDs()).
		Dur("took", out.FinishedAt.Sub(out.StartedAt)).
		Msg("harvest finished")

	for _, f := range out.Failures {
		d.log.Warn().
			Str("id", f.ID).
			Str("stage", string(f.Stage)).
			Str("kind", string(f.Kind)).
			Int("attempts", f.Attempts).
			Msg(f.Reason)
	}
}

func stageNames(stages []domain.Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = string(s)
	}
	return out
}
