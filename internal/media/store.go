// Package media stores uploaded chat attachments and classifies them.
package media

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"skillswap/backend/internal/apperr"
	"skillswap/backend/internal/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KindFromMIME maps a detected content type to a message media kind.
func KindFromMIME(mime string) models.MediaKind {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.MediaImage
	case strings.HasPrefix(mime, "video/"):
		return models.MediaVideo
	case strings.HasPrefix(mime, "audio/"):
		return models.MediaAudio
	default:
		return models.MediaDocument
	}
}

// DiskStore writes uploads under Dir and serves them from BaseURL.
type DiskStore struct {
	Dir      string
	BaseURL  string
	MaxBytes int64
	Log      *zap.Logger
}

func NewDiskStore(dir, baseURL string, maxBytes int64, log *zap.Logger) *DiskStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &DiskStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/"), MaxBytes: maxBytes, Log: log}
}

// Upload stores r and returns the reference to put on a message. The content
// type is sniffed from the bytes; the client-supplied name is ignored.
func (s *DiskStore) Upload(ctx context.Context, r io.Reader) (*models.MediaRef, error) {
	const op = "media.Upload"
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.ErrUpload, op, err)
	}
	tmp, err := os.CreateTemp(s.Dir, ".upload-*")
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpload, op, err)
	}
	keep := false
	defer func() {
		_ = tmp.Close()
		if !keep {
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(r, s.MaxBytes+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpload, op, err)
	}
	if n == 0 {
		return nil, apperr.New(apperr.ErrInvalidInput, op, "file is empty")
	}
	if n > s.MaxBytes {
		return nil, apperr.New(apperr.ErrInvalidInput, op, "file exceeds %d bytes", s.MaxBytes)
	}
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.ErrUpload, op, err)
	}

	mt, err := mimetype.DetectFile(tmp.Name())
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpload, op, err)
	}

	id := uuid.NewString()
	name := id + mt.Extension()
	if err := tmp.Close(); err != nil {
		return nil, apperr.Wrap(apperr.ErrUpload, op, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.Dir, name)); err != nil {
		return nil, apperr.Wrap(apperr.ErrUpload, op, err)
	}
	keep = true

	ref := &models.MediaRef{URL: s.BaseURL + "/" + name, Kind: KindFromMIME(mt.String()), ExternalID: id}
	s.Log.Info("media stored", zap.String("external_id", id), zap.String("mime", mt.String()), zap.Int64("bytes", n))
	return ref, nil
}
