package transcript

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// ErrEmptyTranscript is returned when a session has no turns to persist.
var ErrEmptyTranscript = errors.New("transcript has no turns")

// Tier is a durability level. Emergency is the last resort.
type Tier int

const (
	TierBackup Tier = iota
	TierFinal
	TierEmergency
)

func (t Tier) String() string {
	switch t {
	case TierBackup:
		return "backup"
	case TierFinal:
		return "final"
	case TierEmergency:
		return "emergency"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

const (
	extension       = ".txt"
	emergencyPrefix = "emergency_transcript_"
)

type Dirs struct {
	Transcripts string
	Backups     string
	Emergency   string
}

// Store writes transcripts for the three tiers. Backup and Final share fs;
// Emergency goes to its own filesystem (normally local disk) so a failing
// primary volume does not take the fallback with it.
type Store struct {
	fs          afero.Fs
	emergencyFs afero.Fs
	dirs        Dirs
	now         func() time.Time
}

func NewStore(fs, emergencyFs afero.Fs, dirs Dirs) *Store {
	if emergencyFs == nil {
		emergencyFs = fs
	}
	return &Store{fs: fs, emergencyFs: emergencyFs, dirs: dirs, now: time.Now}
}

// NewOSStore stores everything on the local filesystem.
func NewOSStore(dirs Dirs) *Store {
	fs := afero.NewOsFs()
	return NewStore(fs, fs, dirs)
}

// Path resolves the file for tier and identity. The same pair always maps
// to the same path, so repeated writes overwrite.
func (s *Store) Path(tier Tier, id Identity) string {
	switch tier {
	case TierBackup:
		return filepath.Join(s.dirs.Backups, id.Key()+extension)
	case TierEmergency:
		return filepath.Join(s.dirs.Emergency, emergencyPrefix+id.Key()+extension)
	default:
		return filepath.Join(s.dirs.Transcripts, id.Key()+extension)
	}
}

func (s *Store) fsFor(tier Tier) afero.Fs {
	if tier == TierEmergency {
		return s.emergencyFs
	}
	return s.fs
}

// Persist writes the full transcript for tier and returns its path.
func (s *Store) Persist(tier Tier, sess *Session) (string, error) {
	if len(sess.Body()) == 0 {
		return "", ErrEmptyTranscript
	}

	ended := sess.Ended
	if ended.IsZero() {
		ended = s.now()
	}
	data := Format(sess, FormatOptions{Tier: tier, Ended: ended.In(sess.Identity.Start.Location())})

	path := s.Path(tier, sess.Identity)
	if err := writeFile(s.fsFor(tier), path, data); err != nil {
		return "", fmt.Errorf("persist %s transcript: %w", tier, err)
	}
	return path, nil
}

// writeFile replaces path via a temp file and rename so readers never see a
// partial transcript.
func writeFile(fs afero.Fs, path string, data []byte) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Exists reports whether a Final transcript is on record for id. It is the
// resume guard: the reserved testing subject never counts as completed.
func (s *Store) Exists(id Identity) bool {
	if id.SubjectID == ReservedSubject {
		return false
	}
	return s.Confirm(id)
}

// Confirm reports whether the Final file for id is present, with no
// reservation rules applied. The shutdown sequence uses it to verify writes.
func (s *Store) Confirm(id Identity) bool {
	ok, err := afero.Exists(s.fs, s.Path(TierFinal, id))
	return err == nil && ok
}

// Open reads back a file written by Persist.
func (s *Store) Open(tier Tier, path string) (io.ReadCloser, error) {
	f, err := s.fsFor(tier).Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s transcript: %w", tier, err)
	}
	return f, nil
}
