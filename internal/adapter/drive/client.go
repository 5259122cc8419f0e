// Package drive reads input files from a Google Drive folder.
package drive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/couchcryptid/heatspot-etl-service/internal/adapter/source"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Source implements source.Source over the files of one Drive folder. It uses
// an API key, so the folder must be shared publicly.
type Source struct {
	svc      *drivev3.Service
	folderID string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewSource creates a Drive source for folderID. Extra client options are
// appended after the API key.
func NewSource(ctx context.Context, apiKey, folderID string, timeout time.Duration, logger *slog.Logger, opts ...option.ClientOption) (*Source, error) {
	clientOpts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := drivev3.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Source{svc: svc, folderID: folderID, timeout: timeout, logger: logger}, nil
}

// List returns the non-folder files directly under the folder, following pagination.
func (s *Source) List(ctx context.Context) ([]source.Object, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false", s.folderID)
	var objs []source.Object
	pageToken := ""

	for {
		call := s.svc.Files.List().
			Q(query).
			Fields("nextPageToken, files(id, name, size, modifiedTime, mimeType)").
			PageSize(1000).
			OrderBy("name")
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
		resp, err := call.Context(reqCtx).Do()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("list drive folder %s: %w", s.folderID, err)
		}

		for _, f := range resp.Files {
			if f.MimeType == folderMimeType {
				continue
			}
			objs = append(objs, toObject(f, s.logger))
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	s.logger.Debug("drive folder listed", "folder", s.folderID, "files", len(objs))
	return objs, nil
}

// Open downloads the file body. The whole file is read before returning so the
// per-request timeout covers the transfer.
func (s *Source) Open(ctx context.Context, obj source.Object) (io.ReadCloser, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.svc.Files.Get(obj.ID).Context(reqCtx).Download()
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", obj.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", obj.Name, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func toObject(f *drivev3.File, logger *slog.Logger) source.Object {
	obj := source.Object{ID: f.Id, Name: f.Name, Size: f.Size}
	if f.ModifiedTime != "" {
		t, err := time.Parse(time.RFC3339, f.ModifiedTime)
		if err != nil {
			logger.Warn("unparsable drive modifiedTime", "file", f.Name, "value", f.ModifiedTime)
		} else {
			obj.ModifiedAt = t
		}
	}
	return obj
}
