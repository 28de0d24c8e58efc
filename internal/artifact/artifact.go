package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/gofrs/flock"

	"jobharvest-engine/internal/domain"
)

const (
	ListingsFile = "listings.json"
	DetailsFile  = "details.json"
	JobsFile     = "jobs.json"
	OutcomeFile  = "outcome.json"
	ManifestFile = "manifest.json"
	lockFile     = ".harvest.lock"
)

// Manifest records which stages of the last run have their artifact on disk.
type Manifest struct {
	RunID         string               `json:"run_id"`
	UpdatedAt     time.Time            `json:"updated_at"`
	Completed     []domain.Stage       `json:"completed"`
	CollectStatus domain.CollectStatus `json:"collect_status"`
}

func (m Manifest) Done(s domain.Stage) bool {
	return slices.Contains(m.Completed, s)
}

func (m *Manifest) MarkDone(s domain.Stage) {
	if !m.Done(s) {
		m.Completed = append(m.Completed, s)
	}
	m.UpdatedAt = time.Now().UTC()
}

// Dir is the directory holding one pipeline's artifacts. Every file is
// replaced atomically, so a reader never sees a partially written snapshot.
type Dir struct {
	path string
	lock *flock.Flock
}

func Open(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, domain.Wrap(domain.ErrFatalConfig, "artifact", "open", path, err)
	}
	return &Dir{path: path, lock: flock.New(filepath.Join(path, lockFile))}, nil
}

func (d *Dir) Path() string { return d.path }

// Lock takes the run lock. A second run against the same directory gets a
// fatal configuration error instead of interleaving writes.
func (d *Dir) Lock() error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return domain.Wrap(domain.ErrFatalConfig, "artifact", "lock", d.path, err)
	}
	if !ok {
		return domain.Wrap(domain.ErrFatalConfig, "artifact", "lock", "another run holds "+d.lock.Path(), nil)
	}
	return nil
}

func (d *Dir) Unlock() error {
	return d.lock.Unlock()
}

// Reset removes stage artifacts and the manifest so the next run starts fresh.
func (d *Dir) Reset() error {
	for _, name := range []string{ManifestFile, ListingsFile, DetailsFile, JobsFile} {
		if err := os.Remove(filepath.Join(d.path, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (d *Dir) SaveManifest(m Manifest) error { return d.writeJSON(ManifestFile, m) }

func (d *Dir) LoadManifest() (Manifest, bool, error) {
	var m Manifest
	ok, err := d.readJSON(ManifestFile, &m)
	return m, ok, err
}

func (d *Dir) SaveListings(stubs []domain.ListingStub) error {
	if stubs == nil {
		stubs = []domain.ListingStub{}
	}
	return d.writeJSON(ListingsFile, stubs)
}

func (d *Dir) LoadListings() ([]domain.ListingStub, bool, error) {
	var stubs []domain.ListingStub
	ok, err := d.readJSON(ListingsFile, &stubs)
	return stubs, ok, err
}

// SaveDetails writes the raw payloads, unmodified, as one JSON array.
func (d *Dir) SaveDetails(details []domain.RawDetail) error {
	payloads := make([]json.RawMessage, 0, len(details))
	for _, det := range details {
		payloads = append(payloads, det.Payload)
	}
	return d.writeJSON(DetailsFile, payloads)
}

// LoadDetails reads the detail array back, keying each payload by the id
// it carries.
func (d *Dir) LoadDetails() ([]domain.RawDetail, bool, error) {
	var payloads []json.RawMessage
	ok, err := d.readJSON(DetailsFile, &payloads)
	if !ok || err != nil {
		return nil, ok, err
	}
	out := make([]domain.RawDetail, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, domain.RawDetail{ID: domain.PayloadID(p), Payload: p})
	}
	return out, true, nil
}

func (d *Dir) SaveJobs(jobs []domain.CanonicalJob) error {
	if jobs == nil {
		jobs = []domain.CanonicalJob{}
	}
	return d.writeJSON(JobsFile, jobs)
}

func (d *Dir) LoadJobs() ([]domain.CanonicalJob, bool, error) {
	var jobs []domain.CanonicalJob
	ok, err := d.readJSON(JobsFile, &jobs)
	for i := range jobs {
		jobs[i].Refresh()
	}
	return jobs, ok, err
}

func (d *Dir) SaveOutcome(o domain.RunOutcome) error { return d.writeJSON(OutcomeFile, o) }

func (d *Dir) LoadOutcome() (domain.RunOutcome, bool, error) {
	var o domain.RunOutcome
	ok, err := d.readJSON(OutcomeFile, &o)
	return o, ok, err
}

func (d *Dir) writeJSON(name string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	path := filepath.Join(d.path, name)
	tmp, err := os.CreateTemp(d.path, name+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (d *Dir) readJSON(name string, v any) (bool, error) {
	b, err := os.ReadFile(filepath.Join(d.path, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, domain.Wrap(domain.ErrMalformed, "artifact", "read", name, err)
	}
	return true, nil
}
