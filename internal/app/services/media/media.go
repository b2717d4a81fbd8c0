// Package media stores uploaded master photos under the media root.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	// MaxUploadSize bounds accepted uploads.
	MaxUploadSize = 10 << 20
	maxSide       = 1024
	jpegQuality   = 82
)

var (
	ErrEmptyFile    = errors.New("Empty file")
	ErrFileTooLarge = errors.New("File is too large")
	ErrNotImage     = errors.New("File must be an image")
	ErrInvalidImage = errors.New("Invalid image")
)

// SavedImage describes a stored file.
type SavedImage struct {
	RelativePath string
	ContentType  string
	Size         int
}

// Store writes images below Root and builds their public URLs.
type Store struct {
	Root      string
	URLPrefix string
	BaseURL   string
}

// New returns a Store. baseURL may be empty, in which case URLs are relative.
func New(root, urlPrefix, baseURL string) *Store {
	return &Store{
		Root:      root,
		URLPrefix: urlPrefix,
		BaseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
}

// EnsureDirs creates the directories uploads are written to.
func (s *Store) EnsureDirs() error {
	return os.MkdirAll(filepath.Join(s.Root, "masters"), 0o755)
}

// CompressAndSave validates raw as an image, downsizes it to fit 1024px,
// re-encodes it as JPEG and writes it to masters/{masterID}.jpg.
func (s *Store) CompressAndSave(masterID int64, contentType string, raw []byte) (SavedImage, error) {
	if len(raw) == 0 {
		return SavedImage{}, ErrEmptyFile
	}
	if len(raw) > MaxUploadSize {
		return SavedImage{}, ErrFileTooLarge
	}
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return SavedImage{}, ErrNotImage
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return SavedImage{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	b := img.Bounds()
	if b.Dx() > maxSide || b.Dy() > maxSide {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return SavedImage{}, fmt.Errorf("encode jpeg: %w", err)
	}

	rel := path.Join("masters", fmt.Sprintf("%d.jpg", masterID))
	if err := atomicWrite(filepath.Join(s.Root, filepath.FromSlash(rel)), buf.Bytes()); err != nil {
		return SavedImage{}, err
	}
	return SavedImage{RelativePath: rel, ContentType: "image/jpeg", Size: buf.Len()}, nil
}

// Delete removes a stored file. Missing files are ignored.
func (s *Store) Delete(relativePath string) error {
	clean, err := s.resolve(relativePath)
	if err != nil {
		return err
	}
	if err := os.Remove(clean); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// PublicURL returns the URL a client fetches relativePath from.
func (s *Store) PublicURL(relativePath string) string {
	url := strings.TrimRight(s.URLPrefix, "/") + "/" + strings.TrimLeft(relativePath, "/")
	if s.BaseURL != "" {
		return s.BaseURL + url
	}
	return url
}

func (s *Store) resolve(relativePath string) (string, error) {
	rel := path.Clean("/" + strings.TrimLeft(relativePath, "/"))
	if rel == "/" {
		return "", fmt.Errorf("empty media path")
	}
	return filepath.Join(s.Root, filepath.FromSlash(rel)), nil
}

func atomicWrite(dst string, data []byte) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create media dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
