package qualtrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/interviewer/internal/drive"
)

// Source lists transcripts recently written to shared storage.
type Source interface {
	ListRecent(ctx context.Context, since time.Time) ([]drive.File, error)
}

type Marker interface {
	Verify(ctx context.Context, responseID string) error
	MarkComplete(ctx context.Context, responseID string) error
}

type BatchOptions struct {
	Lookback time.Duration
	// Delay is the pause between responses and the base of the retry
	// backoff.
	Delay   time.Duration
	Retries int
	DryRun  bool
}

type Summary struct {
	Files    int
	Skipped  int
	Updated  int
	NotFound int
	Failed   int
	DryRun   bool
}

func (s Summary) String() string {
	return fmt.Sprintf("files=%d skipped=%d updated=%d not_found=%d failed=%d dry_run=%t",
		s.Files, s.Skipped, s.Updated, s.NotFound, s.Failed, s.DryRun)
}

// Batch marks every recently stored interview complete in the survey. It
// runs long after the interviews so the survey platform has caught up.
type Batch struct {
	src    Source
	marker Marker
	opts   BatchOptions
	logger *slog.Logger
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

func NewBatch(src Source, marker Marker, opts BatchOptions, logger *slog.Logger) *Batch {
	return &Batch{
		src:    src,
		marker: marker,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Run returns an error only when the transcript listing fails; per-response
// failures are counted in the summary.
func (b *Batch) Run(ctx context.Context) (Summary, error) {
	sum := Summary{DryRun: b.opts.DryRun}

	files, err := b.src.ListRecent(ctx, b.now().Add(-b.opts.Lookback))
	if err != nil {
		return sum, fmt.Errorf("list transcripts: %w", err)
	}
	sum.Files = len(files)
	b.logger.Info("found transcripts", "count", len(files), "lookback", b.opts.Lookback)

	seen := make(map[string]bool)
	var ids []string
	for _, f := range files {
		id, ok := drive.ResponseIDFromName(f.Name)
		if !ok {
			sum.Skipped++
			b.logger.Debug("no response id in filename", "name", f.Name)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	for i, id := range ids {
		if i > 0 {
			if err := b.sleep(ctx, b.opts.Delay); err != nil {
				return sum, err
			}
		}
		if b.opts.DryRun {
			b.logger.Info("dry run, would update", "response_id", id)
			sum.Updated++
			continue
		}

		switch err := b.update(ctx, id); {
		case err == nil:
			sum.Updated++
		case errors.Is(err, ErrResponseNotFound):
			sum.NotFound++
			b.logger.Warn("response not found in qualtrics", "response_id", id)
		default:
			sum.Failed++
			b.logger.Error("failed to update response", "response_id", id, "error", err)
		}
	}
	return sum, nil
}

// update verifies then marks one response, retrying transport and server
// errors with exponential backoff. Not-found is final.
func (b *Batch) update(ctx context.Context, id string) error {
	var err error
	for attempt := 0; attempt <= b.opts.Retries; attempt++ {
		if attempt > 0 {
			wait := b.opts.Delay << (attempt - 1)
			b.logger.Info("retrying", "response_id", id, "attempt", attempt, "wait", wait)
			if serr := b.sleep(ctx, wait); serr != nil {
				return serr
			}
		}

		err = b.marker.Verify(ctx, id)
		if err == nil {
			err = b.marker.MarkComplete(ctx, id)
		}
		if err == nil || errors.Is(err, ErrResponseNotFound) || errors.Is(err, ErrInvalidResponseID) {
			return err
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
