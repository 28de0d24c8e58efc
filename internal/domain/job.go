package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ListingStub is one item of the paged listing feed. Raw keeps the feed
// object verbatim so the listing artifact stays auditable.
type ListingStub struct {
	ID       string
	Title    string
	Employer string
	Raw      json.RawMessage
}

// MarshalJSON writes the raw feed object with id/title/employer set on top.
func (s ListingStub) MarshalJSON() ([]byte, error) {
	obj := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(s.Raw)) > 0 {
		if err := json.Unmarshal(s.Raw, &obj); err != nil {
			obj = map[string]json.RawMessage{}
		}
	}
	for k, v := range map[string]string{"id": s.ID, "title": s.Title, "employer": s.Employer} {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		obj[k] = b
	}
	return json.Marshal(obj)
}

func (s *ListingStub) UnmarshalJSON(b []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	s.ID = rawString(obj["id"])
	s.Title = rawString(obj["title"])
	s.Employer = rawString(obj["employer"])
	s.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// RawDetail is the unmodified detail payload for one listing id.
type RawDetail struct {
	ID      string
	Payload json.RawMessage
}

// payloadIDKeys are the payload fields that carry the listing id, in order.
var payloadIDKeys = []string{"job_id", "id"}

// PayloadID extracts the listing id from a detail payload.
func PayloadID(payload json.RawMessage) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return ""
	}
	for _, k := range payloadIDKeys {
		if id := rawString(obj[k]); id != "" {
			return id
		}
	}
	return ""
}

// rawString reads a JSON string or number as text. Anything else is "".
func rawString(b json.RawMessage) string {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

// CanonicalJob is the normalized record handed to downstream search.
// No field is ever null: strings default to "" and lists to [].
type CanonicalJob struct {
	ID              string   `json:"id"`
	VisualID        string   `json:"visual_id"`
	Title           string   `json:"title"`
	Company         string   `json:"company"`
	Location        string   `json:"location"`
	JobType         string   `json:"job_type"`
	SalaryInfo      string   `json:"salary_info"`
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	Description     string   `json:"description"`
	Requirements    string   `json:"requirements"`
	ContactEmail    string   `json:"contact_email"`
	RemoteType      string   `json:"remote_type"`
	ExperienceLevel string   `json:"experience_level"`
	EducationLevel  string   `json:"education_level"`
	Majors          []string `json:"majors"`
	Languages       []string `json:"languages"`
	Vacancies       string   `json:"vacancies"`
	HoursPerWeek    string   `json:"hours_per_week"`
	SearchableText  string   `json:"searchable_text"`
}

// ComputeSearchableText joins the searchable fields with single spaces,
// omitting empty parts.
func (j CanonicalJob) ComputeSearchableText() string {
	parts := []string{
		j.Title,
		j.Company,
		j.Location,
		j.JobType,
		j.Description,
		j.Requirements,
		strings.Join(j.Majors, " "),
		j.ExperienceLevel,
		j.EducationLevel,
		strings.Join(j.Languages, " "),
		j.RemoteType,
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// Refresh fills nil lists and recomputes SearchableText. Call it after
// changing any field that feeds the searchable text.
func (j *CanonicalJob) Refresh() {
	if j.Majors == nil {
		j.Majors = []string{}
	}
	if j.Languages == nil {
		j.Languages = []string{}
	}
	j.SearchableText = j.ComputeSearchableText()
}
