package interview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/MikeSquared-Agency/interviewer/internal/events"
	"github.com/MikeSquared-Agency/interviewer/internal/protocol"
	"github.com/MikeSquared-Agency/interviewer/internal/qualtrics"
	"github.com/MikeSquared-Agency/interviewer/internal/transcript"
)

var (
	// ErrPersistenceUnconfirmed means the Final write could not be verified
	// and the Emergency tier was used instead.
	ErrPersistenceUnconfirmed = errors.New("final transcript not confirmed")
	ErrUploadFailed           = errors.New("transcript upload failed")
	ErrNotificationFailed     = errors.New("completion notification failed")
)

const (
	defaultFinalAttempts = 10
	defaultFinalDelay    = 100 * time.Millisecond
	externalCallTimeout  = 30 * time.Second
)

// Persister is the part of transcript.Store the session needs.
type Persister interface {
	Persist(tier transcript.Tier, s *transcript.Session) (string, error)
	Exists(id transcript.Identity) bool
	Confirm(id transcript.Identity) bool
	Open(tier transcript.Tier, path string) (io.ReadCloser, error)
}

type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

type Notifier interface {
	MarkComplete(ctx context.Context, responseID string) error
}

// Termination is why and how a session ends.
type Termination struct {
	Class   protocol.Class
	Message string
}

// Outcome reports what the shutdown sequence achieved. Err joins the
// non-fatal failures; the respondent never sees it.
type Outcome struct {
	Tier     transcript.Tier
	Path     string
	Uploaded bool
	Notified bool
	Err      error
}

type Shutdown struct {
	store    Persister
	uploader Uploader
	notifier Notifier
	events   events.Publisher
	attempts int
	delay    time.Duration
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(time.Duration)
}

type ShutdownOption func(*Shutdown)

func WithUploader(u Uploader) ShutdownOption { return func(s *Shutdown) { s.uploader = u } }

func WithNotifier(n Notifier) ShutdownOption { return func(s *Shutdown) { s.notifier = n } }

func WithEvents(p events.Publisher) ShutdownOption { return func(s *Shutdown) { s.events = p } }

// WithFinalRetries bounds the Final write-and-confirm loop.
func WithFinalRetries(attempts int, delay time.Duration) ShutdownOption {
	return func(s *Shutdown) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if delay >= 0 {
			s.delay = delay
		}
	}
}

func NewShutdown(store Persister, logger *slog.Logger, opts ...ShutdownOption) *Shutdown {
	s := &Shutdown{
		store:    store,
		events:   events.Nop{},
		attempts: defaultFinalAttempts,
		delay:    defaultFinalDelay,
		logger:   logger,
		now:      time.Now,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ends sess and records it. It never fails: every error is logged and
// folded into Outcome.Err. It runs once per session.
func (s *Shutdown) Run(ctx context.Context, sess *transcript.Session, term Termination) Outcome {
	// The respondent may already be gone; the transcript still has to land.
	ctx = context.WithoutCancel(ctx)

	sess.Append(transcript.RoleInterviewer, term.Message)
	sess.Active = false
	sess.Ended = s.now().In(sess.Identity.Start.Location())

	key := sess.Identity.Key()
	logger := s.logger.With("session", key, "termination", term.Class)

	var out Outcome
	var errs []error

	out.Path, out.Tier = s.persistFinal(sess, logger)
	if out.Path == "" {
		errs = append(errs, ErrPersistenceUnconfirmed)
		logger.Error("final transcript not confirmed, writing emergency file", "attempts", s.attempts)

		path, err := s.store.Persist(transcript.TierEmergency, sess)
		if err != nil {
			errs = append(errs, err)
			logger.Error("emergency transcript write failed", "error", err)
		} else {
			out.Path, out.Tier = path, transcript.TierEmergency
			logger.Warn("emergency transcript written", "path", path)
		}
	}

	if out.Path != "" && s.uploader != nil {
		if err := s.upload(ctx, out.Tier, out.Path); err != nil {
			errs = append(errs, err)
			logger.Warn("transcript upload failed", "path", out.Path, "error", err)
		} else {
			out.Uploaded = true
		}
	}

	if s.notifier != nil {
		if err := s.notify(ctx, sess.Identity.SubjectID, logger); err != nil {
			errs = append(errs, err)
		} else {
			out.Notified = true
		}
	}

	ev := events.SessionEvent{
		SessionKey:  key,
		SubjectID:   sess.Identity.SubjectID,
		Provider:    sess.Identity.Provider,
		Model:       sess.Identity.Model,
		Termination: string(term.Class),
		Uploaded:    out.Uploaded,
		Notified:    out.Notified,
		At:          sess.Ended,
	}
	if out.Path != "" {
		ev.Persisted = out.Tier.String()
	}
	if err := s.events.Publish(events.SubjectSessionCompleted, ev); err != nil {
		logger.Warn("failed to publish session completed", "error", err)
	}

	out.Err = errors.Join(errs...)
	logger.Info("session closed", "tier", out.Tier, "path", out.Path, "uploaded", out.Uploaded, "notified", out.Notified)
	return out
}

// persistFinal writes the Final tier and checks it is readable, up to the
// configured number of attempts. It returns an empty path when no attempt
// was confirmed.
func (s *Shutdown) persistFinal(sess *transcript.Session, logger *slog.Logger) (string, transcript.Tier) {
	for attempt := 1; attempt <= s.attempts; attempt++ {
		path, err := s.store.Persist(transcript.TierFinal, sess)
		if err == nil && s.store.Confirm(sess.Identity) {
			return path, transcript.TierFinal
		}
		logger.Debug("final transcript not yet confirmed", "attempt", attempt, "error", err)
		if attempt < s.attempts {
			s.sleep(s.delay)
		}
	}
	return "", transcript.TierFinal
}

func (s *Shutdown) upload(ctx context.Context, tier transcript.Tier, path string) error {
	f, err := s.store.Open(tier, path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, externalCallTimeout)
	defer cancel()
	if _, err := s.uploader.Upload(ctx, filepath.Base(path), f); err != nil {
		return fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	return nil
}

func (s *Shutdown) notify(ctx context.Context, subjectID string, logger *slog.Logger) error {
	if !qualtrics.ValidResponseID(subjectID) {
		logger.Info("skipping completion notification: invalid response id", "subject_id", subjectID)
		return fmt.Errorf("%w: %w", ErrNotificationFailed, qualtrics.ErrInvalidResponseID)
	}

	ctx, cancel := context.WithTimeout(ctx, externalCallTimeout)
	defer cancel()
	if err := s.notifier.MarkComplete(ctx, subjectID); err != nil {
		if errors.Is(err, qualtrics.ErrResponseNotFound) {
			logger.Info("survey response not found yet", "subject_id", subjectID)
		} else {
			logger.Warn("completion notification failed", "subject_id", subjectID, "error", err)
		}
		return fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	}
	return nil
}
