package normalize

import "strings"

// FormatSalary renders a compensation range. Missing bounds switch to the
// "Desde"/"Hasta" forms; with neither bound the result is "".
func FormatSalary(from, to, freq string) string {
	from, to, freq = amount(from), amount(to), strings.TrimSpace(freq)

	var s string
	switch {
	case from != "" && to != "":
		s = from + " - " + to
	case from != "":
		s = "Desde " + from
	case to != "":
		s = "Hasta " + to
	default:
		return ""
	}
	if freq != "" {
		s += " " + freq
	}
	return s
}

// amount treats blank and zero amounts as absent.
func amount(s string) string {
	s = strings.TrimSpace(s)
	if strings.Trim(s, "0.,") == "" {
		return ""
	}
	return s
}
