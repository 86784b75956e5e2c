package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/logger"
)

const uploadField = "file"

// upload is a staged request file. Remove deletes it.
type upload struct {
	Path     string
	Filename string
}

func (u *upload) Remove() {
	if err := os.Remove(u.Path); err != nil && !os.IsNotExist(err) {
		GetLogger().Warn("failed to remove staged upload",
			logger.String("path", u.Path),
			logger.Error(err))
	}
}

// safeExt keeps the client's extension so media.KindOf can route the file,
// but never lets the client name anything else on disk.
func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// stageUpload copies the multipart file into the upload dir under a random name.
func (c *Controller) stageUpload(ctx echo.Context) (*upload, error) {
	fh, err := ctx.FormFile(uploadField)
	if err != nil {
		return nil, errors.New(fmt.Errorf("missing %q upload: %w", uploadField, err)).
			Component("api").
			Category(errors.CategoryInput).
			Build()
	}

	src, err := fh.Open()
	if err != nil {
		return nil, errors.New(err).Component("api").Category(errors.CategoryInput).Build()
	}
	defer src.Close()

	dir := c.uploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.New(err).
			Component("api").
			Category(errors.CategoryFileIO).
			FileContext(dir, 0).
			Build()
	}

	path := filepath.Join(dir, uuid.NewString()+safeExt(fh.Filename))
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, errors.New(err).
			Component("api").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, errors.New(err).
			Component("api").
			Category(errors.CategoryFileIO).
			FileContext(path, n).
			Build()
	}

	return &upload{Path: path, Filename: filepath.Base(fh.Filename)}, nil
}

// readUpload reads the multipart file into memory.
func readUpload(ctx echo.Context) ([]byte, error) {
	fh, err := ctx.FormFile(uploadField)
	if err != nil {
		return nil, errors.New(fmt.Errorf("missing %q upload: %w", uploadField, err)).
			Component("api").
			Category(errors.CategoryInput).
			Build()
	}
	src, err := fh.Open()
	if err != nil {
		return nil, errors.New(err).Component("api").Category(errors.CategoryInput).Build()
	}
	defer src.Close()
	return io.ReadAll(src)
}

func uploadStatus(err error) int {
	if errors.IsCategory(err, errors.CategoryFileIO) {
		return http.StatusInternalServerError
	}
	return statusFor(err)
}
