package transcript

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"
)

type FormatOptions struct {
	Tier  Tier
	Ended time.Time
}

// Format renders the plain-text transcript: a "key: value" header, a blank
// line, then one "role: text" entry per turn separated by blank lines.
// Protocol turns are never written.
func Format(s *Session, opts FormatOptions) []byte {
	body := s.Body()
	id := s.Identity

	subject := id.SubjectID
	if subject == "" {
		subject = "none"
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "session_key: %s\n", id.Key())
	fmt.Fprintf(&b, "subject_id: %s\n", subject)
	fmt.Fprintf(&b, "provider: %s\n", id.Provider)
	fmt.Fprintf(&b, "model: %s\n", id.Model)
	fmt.Fprintf(&b, "tier: %s\n", opts.Tier)
	fmt.Fprintf(&b, "session_start: %s\n", id.Start.Format(time.RFC3339))
	fmt.Fprintf(&b, "session_end: %s\n", opts.Ended.Format(time.RFC3339))
	fmt.Fprintf(&b, "turns: %d\n", len(body))

	for _, t := range body {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s: %s\n", speaker(t.Role, id, opts.Tier), oneLine(t.Text))
	}
	return b.Bytes()
}

var lineBreaks = regexp.MustCompile(`\s*[\r\n]+\s*`)

// oneLine collapses line breaks so each turn is written as one line.
func oneLine(text string) string {
	return lineBreaks.ReplaceAllString(strings.TrimSpace(text), " ")
}

// speaker labels emergency files with the respondent's id so an operator can
// match them without the header.
func speaker(r Role, id Identity, tier Tier) string {
	if tier != TierEmergency || id.Placeholder() {
		return string(r)
	}
	if r == RoleRespondent {
		return "Respondent " + id.SubjectID
	}
	return "Interviewer"
}
