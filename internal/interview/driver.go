// Package interview runs one respondent's conversation: it streams
// interviewer turns from the provider, applies the completion checks, and
// closes the session through the shutdown sequence.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/interviewer/internal/detector"
	"github.com/MikeSquared-Agency/interviewer/internal/events"
	"github.com/MikeSquared-Agency/interviewer/internal/llm"
	"github.com/MikeSquared-Agency/interviewer/internal/protocol"
	"github.com/MikeSquared-Agency/interviewer/internal/transcript"
)

var (
	// ErrAlreadyCompleted is returned by Start when a Final transcript
	// exists for the respondent.
	ErrAlreadyCompleted = errors.New("interview already completed")
	ErrNotAwaitingInput = errors.New("session is not awaiting input")
)

const (
	QuitMessage      = "You have cancelled the interview."
	CompletedMessage = "Interview already completed."

	firstTurnApology = "Sorry, there was an error connecting to the interview service. Please try again later."
	turnApology      = "Sorry, there was an error. Your response was saved, but we couldn't generate a reply."

	defaultSeed = "Hi"

	// Partial turns are drawn only past this length.
	minDisplayChars = 5
)

type State int

const (
	StateNotStarted State = iota
	StateStreaming
	StateAwaitingInput
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateStreaming:
		return "streaming"
	case StateAwaitingInput:
		return "awaiting-input"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type EventKind string

const (
	// EventPartial carries the displayable prefix of the turn being
	// streamed. Each one replaces the previous.
	EventPartial EventKind = "partial"
	// EventMessage is a finished turn.
	EventMessage EventKind = "message"
	// EventEnd closes the conversation; no input is accepted after it.
	EventEnd EventKind = "end"
)

type Event struct {
	Kind          EventKind
	Role          transcript.Role
	Text          string
	Termination   protocol.Class
	RedirectURL   string
	RedirectDelay time.Duration
}

// Sink receives everything the respondent should see, in order.
type Sink func(Event)

type Options struct {
	Provider      llm.Provider
	Protocol      *protocol.Definition
	Detector      *detector.Detector
	Store         Persister
	Shutdown      *Shutdown
	Events        events.Publisher
	Logger        *slog.Logger
	Model         string
	Location      *time.Location
	RedirectDelay time.Duration
	Now           func() time.Time
}

// Driver is the per-connection session. It is not safe for concurrent use;
// the connection handler calls it from one goroutine.
type Driver struct {
	opts    Options
	entry   Entry
	state   State
	sess    *transcript.Session
	outcome *Outcome
	logger  *slog.Logger
}

func NewDriver(opts Options, entry Entry) *Driver {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Detector == nil {
		opts.Detector = detector.FromProtocol(opts.Protocol)
	}
	if opts.Model == "" {
		opts.Model = opts.Protocol.Model
	}
	return &Driver{opts: opts, entry: entry, logger: opts.Logger}
}

func (d *Driver) State() State { return d.state }

// Session is nil before Start.
func (d *Driver) Session() *transcript.Session { return d.sess }

// Outcome is nil until the shutdown sequence has run.
func (d *Driver) Outcome() *Outcome { return d.outcome }

// Start assigns the session identity and streams the first interviewer
// turn. A respondent who already completed the interview is blocked with
// ErrAlreadyCompleted.
func (d *Driver) Start(ctx context.Context, sink Sink) error {
	if d.state != StateNotStarted {
		return fmt.Errorf("start: session is %s", d.state)
	}

	id := transcript.NewIdentity(d.entry.Token, d.opts.Provider.Name(), d.opts.Model, d.opts.Now().In(d.opts.Location))
	d.sess = transcript.NewSession(id, d.opts.Protocol.Instructions())
	d.logger = d.opts.Logger.With("session", id.Key())

	if d.entry.Token != "" && id.Placeholder() {
		d.logger.Warn("malformed correlation token, using placeholder identity", "token_len", len(d.entry.Token))
	}

	if d.opts.Store.Exists(id) {
		d.sess.Active = false
		d.state = StateTerminated
		d.logger.Info("resume blocked, transcript already on record")
		sink(Event{Kind: EventMessage, Role: transcript.RoleInterviewer, Text: CompletedMessage})
		sink(Event{Kind: EventEnd})
		return ErrAlreadyCompleted
	}

	if d.opts.Provider.RequiresSeed() {
		seed := d.opts.Protocol.SeedMessage
		if seed == "" {
			seed = defaultSeed
		}
		d.sess.AppendSeed(seed)
	}

	if err := d.opts.Events.Publish(events.SubjectSessionStarted, events.SessionEvent{
		SessionKey: id.Key(),
		SubjectID:  id.SubjectID,
		Provider:   id.Provider,
		Model:      id.Model,
		At:         id.Start,
	}); err != nil {
		d.logger.Warn("failed to publish session started", "error", err)
	}
	d.logger.Info("session started", "provider", id.Provider, "model", id.Model, "placeholder", id.Placeholder())

	return d.turn(ctx, sink, true)
}

// Respond records a respondent message and streams the reply. Blank
// messages are ignored.
func (d *Driver) Respond(ctx context.Context, text string, sink Sink) error {
	if d.state != StateAwaitingInput {
		return fmt.Errorf("%w (%s)", ErrNotAwaitingInput, d.state)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	d.sess.Append(transcript.RoleRespondent, text)
	sink(Event{Kind: EventMessage, Role: transcript.RoleRespondent, Text: text})
	return d.turn(ctx, sink, false)
}

// Quit ends the session at the respondent's request. It is a no-op once
// the session has terminated.
func (d *Driver) Quit(ctx context.Context, sink Sink) {
	switch d.state {
	case StateTerminated:
		return
	case StateNotStarted:
		d.state = StateTerminated
		return
	}
	d.terminate(ctx, sink, Termination{Class: protocol.ClassQuit, Message: QuitMessage})
}

func (d *Driver) turn(ctx context.Context, sink Sink, first bool) error {
	d.state = StateStreaming

	var buf strings.Builder
	var shown string
	err := d.opts.Provider.Complete(ctx, d.request(), func(delta string) error {
		buf.WriteString(delta)
		text := buf.String()
		if _, hit := d.opts.Detector.Scan(text); hit {
			return llm.ErrStopStream
		}
		if safe, ok := d.opts.Detector.SafeDisplay(text); ok && len(safe) > minDisplayChars && safe != shown {
			shown = safe
			sink(Event{Kind: EventPartial, Role: transcript.RoleInterviewer, Text: safe})
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Error("provider call failed", "provider", d.opts.Provider.Name(), "first_turn", first, "error", err)
		apology := turnApology
		if first {
			apology = firstTurnApology
		}
		d.finishTurn(sink, apology)
		return nil
	}

	res := d.opts.Detector.Apply(buf.String())
	if res.Terminal {
		d.logger.Info("sentinel detected", "class", res.Sentinel.Class)
		d.terminate(ctx, sink, Termination{Class: res.Sentinel.Class, Message: res.Text})
		return nil
	}
	if res.Truncated {
		d.logger.Debug("multi-question turn truncated", "questions", detector.CountQuestions(buf.String()))
	}
	d.finishTurn(sink, res.Text)
	return nil
}

func (d *Driver) finishTurn(sink Sink, text string) {
	d.sess.Append(transcript.RoleInterviewer, text)
	sink(Event{Kind: EventMessage, Role: transcript.RoleInterviewer, Text: text})
	if _, err := d.opts.Store.Persist(transcript.TierBackup, d.sess); err != nil {
		d.logger.Warn("backup persist failed", "error", err)
	}
	d.state = StateAwaitingInput
}

func (d *Driver) terminate(ctx context.Context, sink Sink, term Termination) {
	sink(Event{Kind: EventMessage, Role: transcript.RoleInterviewer, Text: term.Message})

	out := d.opts.Shutdown.Run(ctx, d.sess, term)
	d.outcome = &out
	d.state = StateTerminated

	end := Event{Kind: EventEnd, Termination: term.Class}
	if u, ok := d.entry.CompletionURL(); ok {
		end.RedirectURL = u
		end.RedirectDelay = d.opts.RedirectDelay
	}
	sink(end)
}

// request builds the provider call from the whole turn history. The
// protocol turn travels as the system prompt, never as a message.
func (d *Driver) request() llm.Request {
	body := d.sess.Body()
	msgs := make([]llm.Message, 0, len(body))
	for _, t := range body {
		role := llm.RoleUser
		if t.Role == transcript.RoleInterviewer {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Text})
	}
	return llm.Request{
		System:      d.sess.Instructions(),
		Messages:    msgs,
		Model:       d.opts.Model,
		MaxTokens:   d.opts.Protocol.MaxOutputTokens,
		Temperature: d.opts.Protocol.Temperature,
	}
}
