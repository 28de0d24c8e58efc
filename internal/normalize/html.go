package normalize

import (
	"regexp"
	"strings"

	"jobharvest-engine/internal/scrape/util"
)

var (
	reBlockTags = regexp.MustCompile(`(?is)</?(?:p|br|li|ul|ol|div|tr|td|th|table|h[1-6])\b[^>]*>`)
	reTags      = regexp.MustCompile(`(?s)<[^>]*>`)
)

// entities is the fixed set of HTML entities the feed uses. Anything not
// listed is left as written.
var entities = strings.NewReplacer(
	"&middot;", "•",
	"&aacute;", "á",
	"&eacute;", "é",
	"&iacute;", "í",
	"&oacute;", "ó",
	"&uacute;", "ú",
	"&Aacute;", "Á",
	"&Eacute;", "É",
	"&Iacute;", "Í",
	"&Oacute;", "Ó",
	"&Uacute;", "Ú",
	"&ntilde;", "ñ",
	"&Ntilde;", "Ñ",
	"&nbsp;", "\u00a0",
)

// StripHTML removes tag markup, collapses whitespace and resolves the entity
// table. Block-level tags separate words; inline tags vanish. Entities resolve
// after collapsing so &nbsp; survives as U+00A0.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = reBlockTags.ReplaceAllString(s, " ")
	s = reTags.ReplaceAllString(s, "")
	s = util.CleanText(s)
	return entities.Replace(s)
}
