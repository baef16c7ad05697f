// Package drive uploads finished transcripts to a shared Google Drive folder
// and lists them back for the batch completion job.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"

	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const transcriptMIME = "text/plain"

var responseIDPattern = regexp.MustCompile(`R_[A-Za-z0-9]+`)

// File is a transcript in the Drive folder.
type File struct {
	ID       string
	Name     string
	Modified time.Time
}

type Client struct {
	svc      *gdrive.Service
	folderID string
	logger   *slog.Logger
}

// NewClient authenticates with a service account, from a key file or from
// the key's JSON content. JSON wins when both are set.
func NewClient(ctx context.Context, folderID, credentialsFile, credentialsJSON string, logger *slog.Logger) (*Client, error) {
	var cred option.ClientOption
	switch {
	case credentialsJSON != "":
		cred = option.WithCredentialsJSON([]byte(credentialsJSON))
	case credentialsFile != "":
		cred = option.WithCredentialsFile(credentialsFile)
	default:
		return nil, errors.New("drive: no service account credentials")
	}
	return newClient(ctx, folderID, logger, cred, option.WithScopes(gdrive.DriveFileScope))
}

func newClient(ctx context.Context, folderID string, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	svc, err := gdrive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return &Client{svc: svc, folderID: folderID, logger: logger}, nil
}

// Upload creates name in the folder with the content of r and returns the
// new file id. It makes exactly one attempt.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	meta := &gdrive.File{
		Name:     name,
		Parents:  []string{c.folderID},
		MimeType: transcriptMIME,
	}
	f, err := c.svc.Files.Create(meta).
		Media(r, googleapi.ContentType(transcriptMIME)).
		SupportsAllDrives(true).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("drive upload %s: %w", name, err)
	}
	c.logger.Info("uploaded transcript", "name", name, "file_id", f.Id)
	return f.Id, nil
}

// ListRecent returns the folder's files modified after since.
func (c *Client) ListRecent(ctx context.Context, since time.Time) ([]File, error) {
	q := fmt.Sprintf("'%s' in parents and modifiedTime > '%s' and trashed=false",
		c.folderID, since.UTC().Format(time.RFC3339))

	var files []File
	err := c.svc.Files.List().
		Q(q).
		PageSize(1000).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Fields("nextPageToken, files(id, name, modifiedTime)").
		Pages(ctx, func(page *gdrive.FileList) error {
			for _, f := range page.Files {
				modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
				files = append(files, File{ID: f.Id, Name: f.Name, Modified: modified})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("drive list: %w", err)
	}
	return files, nil
}

// ResponseIDFromName extracts the survey response id embedded in a
// transcript filename.
func ResponseIDFromName(name string) (string, bool) {
	id := responseIDPattern.FindString(name)
	return id, id != ""
}
