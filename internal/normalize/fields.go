package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"jobharvest-engine/internal/scrape/util"
)

// Source keys per canonical field, in lookup order.
var (
	keysVisualID     = []string{"visual_id"}
	keysTitle        = []string{"job_title", "title"}
	keysCompany      = []string{"employer_name", "employer", "company"}
	keysLocation     = []string{"location", "job_location"}
	keysJobType      = []string{"job_type"}
	keysSalaryFrom   = []string{"compensation_from"}
	keysSalaryTo     = []string{"compensation_to"}
	keysSalaryFreq   = []string{"compensation_frequency"}
	keysStartDate    = []string{"job_start_date", "start_date"}
	keysEndDate      = []string{"expiration_date", "end_date"}
	keysDescription  = []string{"job_desc", "description"}
	keysRequirements = []string{"qualifications", "requirements"}
	keysEmail        = []string{"contact_email", "email"}
	keysRemote       = []string{"remote_type", "remote"}
	keysEducation    = []string{"degree_level", "education_level"}
	keysMajors       = []string{"major", "majors"}
	keysVacancies    = []string{"num_openings", "vacancies"}
)

// labelKeys are the keys a labeled object may carry its display text under.
var labelKeys = []string{"_label", "label", "name", "value"}

// scalar renders a JSON scalar as text. Objects yield their label.
func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return util.CleanText(x)
	case json.Number:
		return x.String()
	case float64:
		return fmt.Sprint(x)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case map[string]any:
		for _, k := range labelKeys {
			if s := scalar(x[k]); s != "" {
				return s
			}
		}
		return ""
	case []any:
		return strings.Join(labels(x), ", ")
	default:
		return ""
	}
}

// labels flattens a value into its non-empty display labels, in order.
func labels(v any) []string {
	out := []string{}
	switch x := v.(type) {
	case nil:
	case []any:
		for _, it := range x {
			out = append(out, labels(it)...)
		}
	default:
		if s := scalar(x); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// pick returns the first value under keys that renders to something.
func pick(m map[string]any, keys []string) any {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if len(labels(v)) > 0 {
			return v
		}
	}
	return nil
}

func pickText(m map[string]any, keys []string) string {
	return scalar(pick(m, keys))
}

func pickLabels(m map[string]any, keys []string) []string {
	return labels(pick(m, keys))
}
