// Package detector inspects interviewer output for sentinel codes and for
// turns that ask more than one question.
package detector

import (
	"regexp"
	"strings"

	"github.com/MikeSquared-Agency/interviewer/internal/protocol"
)

// questionOpeners are counted as question boundaries in addition to '?'.
var questionOpeners = regexp.MustCompile(`(?i)\b(?:can you describe|what (?:do|did|does)|how (?:do|did|does)|why (?:do|does)|(?:could|would) you)\b`)

var defaultSummaryMarkers = []string{"to conclude", "how well does"}

type Options struct {
	SingleQuestion bool
	SummaryMarkers []string
}

type Detector struct {
	sentinels []protocol.Sentinel
	opts      Options
}

func New(sentinels []protocol.Sentinel, opts Options) *Detector {
	if len(opts.SummaryMarkers) == 0 {
		opts.SummaryMarkers = defaultSummaryMarkers
	}
	return &Detector{sentinels: sentinels, opts: opts}
}

// FromProtocol configures a detector from a protocol definition.
func FromProtocol(d *protocol.Definition) *Detector {
	return New(d.Sentinels, Options{
		SingleQuestion: d.SingleQuestion,
		SummaryMarkers: d.SummaryMarkers,
	})
}

// Scan returns the first configured sentinel contained in text.
func (d *Detector) Scan(text string) (protocol.Sentinel, bool) {
	for _, s := range d.sentinels {
		if strings.Contains(text, s.Code) {
			return s, true
		}
	}
	return protocol.Sentinel{}, false
}

// SafeDisplay returns the prefix of a partial turn that may be shown while
// streaming. A trailing fragment that could be the start of a sentinel is
// held back. ok is false once a full sentinel is present; nothing of the
// turn may be drawn after that.
func (d *Detector) SafeDisplay(text string) (shown string, ok bool) {
	if _, found := d.Scan(text); found {
		return "", false
	}
	hold := 0
	for _, s := range d.sentinels {
		if n := partialSuffix(text, s.Code); n > hold {
			hold = n
		}
	}
	return text[:len(text)-hold], true
}

// partialSuffix is the length of the longest suffix of text that is a proper
// prefix of code.
func partialSuffix(text, code string) int {
	for n := min(len(code)-1, len(text)); n > 0; n-- {
		if strings.HasSuffix(text, code[:n]) {
			return n
		}
	}
	return 0
}

// IsSummary reports whether text is the closing summary-and-rating turn.
func (d *Detector) IsSummary(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range d.opts.SummaryMarkers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// CountQuestions counts question marks plus question-opening phrases.
func CountQuestions(text string) int {
	return strings.Count(text, "?") + len(questionOpeners.FindAllStringIndex(text, -1))
}

// EnforceSingleQuestion cuts a multi-question turn after its first question
// mark. Summary turns and turns without any '?' are returned unchanged.
func (d *Detector) EnforceSingleQuestion(text string) string {
	if !d.opts.SingleQuestion || d.IsSummary(text) || CountQuestions(text) <= 1 {
		return text
	}
	i := strings.Index(text, "?")
	if i < 0 {
		return text
	}
	return text[:i+1]
}

// Result is the verdict on a finished interviewer turn.
type Result struct {
	// Text is what may be stored and displayed. For a sentinel it is the
	// mapped closing message, never the code.
	Text      string
	Sentinel  protocol.Sentinel
	Terminal  bool
	Truncated bool
}

// Apply runs both checks on a completed (or early-stopped) turn.
func (d *Detector) Apply(text string) Result {
	if s, ok := d.Scan(text); ok {
		return Result{Text: s.Message, Sentinel: s, Terminal: true}
	}
	out := d.EnforceSingleQuestion(text)
	return Result{Text: out, Truncated: out != text}
}
