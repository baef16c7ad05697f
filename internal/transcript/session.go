// Package transcript holds the interview's turn log and the tiered file
// store that persists it.
package transcript

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	// RoleProtocol marks the turn that carries the protocol instructions.
	// It is sent to the model but never written to a transcript body.
	RoleProtocol    Role = "protocol"
	RoleInterviewer Role = "interviewer"
	RoleRespondent  Role = "respondent"
)

type Turn struct {
	Role Role
	Text string
	// Seed is set on the synthetic opening message some providers need.
	// It is persisted but not shown to the respondent.
	Seed bool
}

// ReservedSubject is used for local testing and never counts as completed.
const ReservedSubject = "testaccount"

var subjectPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidSubjectID reports whether a correlation token is safe to use as part
// of a filename.
func ValidSubjectID(s string) bool {
	return subjectPattern.MatchString(s)
}

// Identity is fixed for the lifetime of a session and determines the
// transcript's storage key.
type Identity struct {
	SubjectID string
	Provider  string
	Model     string
	Start     time.Time
	// Nonce separates placeholder sessions that start in the same second.
	Nonce string
}

// NewIdentity builds an identity from a raw correlation token. A token that
// is empty or malformed yields a placeholder identity with a random nonce.
func NewIdentity(token, provider, model string, start time.Time) Identity {
	id := Identity{SubjectID: token, Provider: provider, Model: model, Start: start}
	if !ValidSubjectID(token) {
		id.SubjectID = ""
		id.Nonce = uuid.NewString()[:8]
	}
	return id
}

// Placeholder reports whether no usable correlation token was supplied.
func (id Identity) Placeholder() bool { return id.SubjectID == "" }

// Key is the storage name of the session, without extension.
func (id Identity) Key() string {
	label := providerLabel(id.Provider)
	if id.Placeholder() {
		return fmt.Sprintf("%s_NoUID_%s_%s", label, id.Start.Format("2006-01-02_15-04-05"), id.Nonce)
	}
	return label + "_" + id.SubjectID
}

func providerLabel(provider string) string {
	switch provider {
	case "anthropic":
		return "Anthropic"
	case "openai":
		return "OpenAI"
	case "":
		return "Interview"
	default:
		return provider
	}
}

// Session is the per-connection interview state. It is owned by a single
// goroutine and needs no locking.
type Session struct {
	Identity Identity
	Active   bool
	Turns    []Turn
	Ended    time.Time
}

// NewSession starts an active session whose first turn carries the protocol
// instructions.
func NewSession(id Identity, instructions string) *Session {
	return &Session{
		Identity: id,
		Active:   true,
		Turns:    []Turn{{Role: RoleProtocol, Text: instructions}},
	}
}

func (s *Session) Append(role Role, text string) {
	s.Turns = append(s.Turns, Turn{Role: role, Text: text})
}

func (s *Session) AppendSeed(text string) {
	s.Turns = append(s.Turns, Turn{Role: RoleRespondent, Text: text, Seed: true})
}

// Body is the turn list without protocol turns. It is what the provider
// receives as history and what transcripts contain.
func (s *Session) Body() []Turn {
	out := make([]Turn, 0, len(s.Turns))
	for _, t := range s.Turns {
		if t.Role != RoleProtocol {
			out = append(out, t)
		}
	}
	return out
}

// Visible is the part of the conversation rendered to the respondent.
func (s *Session) Visible() []Turn {
	out := make([]Turn, 0, len(s.Turns))
	for _, t := range s.Turns {
		if t.Role != RoleProtocol && !t.Seed {
			out = append(out, t)
		}
	}
	return out
}

// Instructions returns the protocol turn's text.
func (s *Session) Instructions() string {
	for _, t := range s.Turns {
		if t.Role == RoleProtocol {
			return t.Text
		}
	}
	return ""
}
