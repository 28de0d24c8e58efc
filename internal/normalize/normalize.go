package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"golang.org/x/sync/errgroup"

	"jobharvest-engine/internal/domain"
)

type Normalizer struct {
	schema CustomFieldSchema
}

func New(schema CustomFieldSchema) *Normalizer {
	return &Normalizer{schema: schema}
}

// Normalize maps a raw detail to a canonical record. It always returns a
// usable record; the error reports that the payload could not be decoded or
// carried no id, in which case the record holds only what could be salvaged.
func (n *Normalizer) Normalize(d domain.RawDetail) (domain.CanonicalJob, error) {
	job := domain.CanonicalJob{ID: strings.TrimSpace(d.ID)}

	m, err := decode(d.Payload)
	if err != nil {
		job.Refresh()
		return job, domain.Wrap(domain.ErrMalformed, "normalize", "decode payload", "", err)
	}
	if job.ID == "" {
		job.ID = domain.PayloadID(d.Payload)
	}

	s := n.schema
	job.VisualID = pickText(m, keysVisualID)
	job.Title = StripHTML(pickText(m, keysTitle))
	job.Company = pickText(m, keysCompany)
	job.Location = strings.Join(pickLabels(m, keysLocation), ", ")
	job.JobType = strings.Join(pickLabels(m, keysJobType), ", ")
	job.SalaryInfo = FormatSalary(
		pickText(m, keysSalaryFrom),
		pickText(m, keysSalaryTo),
		pickText(m, keysSalaryFreq),
	)
	job.StartDate = pickText(m, keysStartDate)
	job.EndDate = pickText(m, keysEndDate)
	job.Description = StripHTML(pickText(m, keysDescription))
	job.Requirements = StripHTML(pickText(m, keysRequirements))
	job.ContactEmail = pickText(m, keysEmail)
	job.RemoteType = strings.Join(pickLabels(m, keysRemote), ", ")
	job.ExperienceLevel = strings.Join(labels(m[s.key(s.ExperienceLevel)]), ", ")
	job.EducationLevel = strings.Join(pickLabels(m, keysEducation), ", ")
	job.Majors = pickLabels(m, keysMajors)
	job.Languages = labels(m[s.key(s.Languages)])
	job.Vacancies = pickText(m, keysVacancies)
	job.HoursPerWeek = strings.Join(labels(m[s.key(s.HoursPerWeek)]), ", ")
	job.Refresh()

	if job.ID == "" {
		return job, domain.Wrap(domain.ErrMalformed, "normalize", "id", "payload carries no id", nil)
	}
	return job, nil
}

func decode(p json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// Result of normalizing a batch, in input order.
type Result struct {
	Jobs     []domain.CanonicalJob
	Failures []domain.Failure
}

// All normalizes details in parallel with at most workers goroutines.
// Records that fail to normalize are reported and left out; the rest keep
// the input order. A later record with the same id replaces an earlier one.
func (n *Normalizer) All(ctx context.Context, details []domain.RawDetail, workers int) (Result, error) {
	if workers < 1 {
		workers = 1
	}
	jobs := make([]domain.CanonicalJob, len(details))
	errs := make([]error, len(details))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range details {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			jobs[i], errs[i] = n.Normalize(details[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var res Result
	pos := map[string]int{}
	for i, job := range jobs {
		if errs[i] != nil {
			id := details[i].ID
			if id == "" {
				id = job.ID
			}
			res.Failures = append(res.Failures, domain.Failure{
				ID:       id,
				Stage:    domain.StageNormalize,
				Kind:     domain.KindOf(errs[i]),
				Reason:   errs[i].Error(),
				Attempts: 1,
			})
			continue
		}
		if p, ok := pos[job.ID]; ok {
			res.Jobs[p] = job
			continue
		}
		pos[job.ID] = len(res.Jobs)
		res.Jobs = append(res.Jobs, job)
	}
	if res.Jobs == nil {
		res.Jobs = []domain.CanonicalJob{}
	}
	return res, nil
}
