package ctestout

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ctestx/ctestx/model"
)

var indexPrefixRe = regexp.MustCompile(`^\d+: `)

// ExtractDecorations scans a test's accumulated output with the configured
// error-line pattern and returns source-anchored diagnostics. The pattern
// uses the named capture groups "file", "line", "message" and optionally
// "severity".
func ExtractDecorations(re *regexp.Regexp, message string) []model.Decoration {
	if re == nil || message == "" {
		return nil
	}

	fileIdx := re.SubexpIndex("file")
	lineIdx := re.SubexpIndex("line")
	severityIdx := re.SubexpIndex("severity")
	messageIdx := re.SubexpIndex("message")
	if fileIdx < 0 || lineIdx < 0 || messageIdx < 0 {
		return nil
	}

	var decorations []model.Decoration
	for _, raw := range strings.Split(message, "\n") {
		// Accumulated lines carry the runner's index attribution; the error
		// pattern applies to what the test itself printed.
		m := re.FindStringSubmatch(indexPrefixRe.ReplaceAllString(raw, ""))
		if m == nil {
			continue
		}
		line, err := strconv.Atoi(m[lineIdx])
		if err != nil {
			continue
		}
		d := model.Decoration{
			File:    m[fileIdx],
			Line:    line,
			Message: m[messageIdx],
		}
		if severityIdx >= 0 {
			d.Severity = m[severityIdx]
		}
		decorations = append(decorations, d)
	}
	return decorations
}
