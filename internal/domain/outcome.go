package domain

import "time"

// CollectStatus is the terminal state of the listing collector.
type CollectStatus string

const (
	CollectCompleted CollectStatus = "completed"
	CollectStalled   CollectStatus = "stalled"
)

type Stage string

const (
	StageCollect   Stage = "collect"
	StageEnrich    Stage = "enrich"
	StageNormalize Stage = "normalize"
)

type FailureKind string

const (
	KindTransport FailureKind = "transport"
	KindMalformed FailureKind = "malformed"
	KindNotFound  FailureKind = "not_found"
	KindCancelled FailureKind = "cancelled"
)

// Failure records one id that did not make it through a stage.
type Failure struct {
	ID       string      `json:"id"`
	Stage    Stage       `json:"stage"`
	Kind     FailureKind `json:"kind"`
	Reason   string      `json:"reason"`
	Attempts int         `json:"attempts"`
}

// Counts are the exact per-stage tallies of a run.
type Counts struct {
	StubsCollected    int `json:"stubs_collected"`
	PagesFetched      int `json:"pages_fetched"`
	StubsMissingID    int `json:"stubs_missing_id"`
	DuplicateIDs      int `json:"duplicate_ids"`
	DetailsFetched    int `json:"details_fetched"`
	DetailsReused     int `json:"details_reused"`
	DetailsFailed     int `json:"details_failed"`
	RecordsNormalized int `json:"records_normalized"`
	NormalizeFailed   int `json:"normalize_failed"`
	EmptyTitle        int `json:"empty_title"`
	EmptyDescription  int `json:"empty_description"`
}

// RunOutcome is the result of one pipeline run. It is not modified after the
// driver returns it.
type RunOutcome struct {
	RunID         string         `json:"run_id"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	CollectStatus CollectStatus  `json:"collect_status"`
	Resumed       []Stage        `json:"resumed,omitempty"`
	Cancelled     bool           `json:"cancelled"`
	Counts        Counts         `json:"counts"`
	Failures      []Failure      `json:"failures"`
	Jobs          []CanonicalJob `json:"-"`
}

// FailedIDs returns the failing ids in recorded order.
func (o RunOutcome) FailedIDs() []string {
	ids := make([]string, 0, len(o.Failures))
	for _, f := range o.Failures {
		ids = append(ids, f.ID)
	}
	return ids
}
