package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"qubeless/internal/errs"
	"qubeless/internal/ports"
)

// prepareWorkspace yields the source tree for one job. A payload with a
// workspacePath is used in place; a sourceObjectKey is downloaded from
// object storage and extracted into a per-job directory. Either way the
// analyzer run directories live under WorkDir/{jobID} and cleanup
// removes that whole tree; an in-place workspacePath is the caller's
// and stays.
func (s *Service) prepareWorkspace(ctx context.Context, job ports.Job) (workspaceDir string, cleanup func(), err error) {
	payload := job.Payload

	jobDir := filepath.Join(s.defaults.WorkDir, job.JobID)
	cleanup = func() { _ = os.RemoveAll(jobDir) }

	if payload.WorkspacePath != "" {
		return payload.WorkspacePath, cleanup, nil
	}
	if payload.SourceObjectKey == "" {
		return "", nil, errors.New("job payload carries neither workspacePath nor sourceObjectKey")
	}
	if s.storage == nil {
		return "", nil, errors.New("object storage is required for sourceObjectKey payloads")
	}

	data, err := s.storage.GetObject(ctx, payload.SourceObjectKey)
	if err != nil {
		return "", nil, errs.Wrap(err, "download source archive")
	}

	dir := filepath.Join(jobDir, "src")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, errs.Wrap(err, "create workspace directory")
	}

	if err := extractZip(data, dir); err != nil {
		cleanup()
		return "", nil, errs.Wrap(err, "extract source archive")
	}
	return dir, cleanup, nil
}

func extractZip(data []byte, destDir string) error {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return errs.Wrap(err, "open zip archive")
	}

	for _, file := range reader.File {
		target := filepath.Join(destDir, filepath.Clean(file.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("zip entry %q escapes the workspace", file.Name)
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errs.Wrapf(err, "create directory %q", file.Name)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return errs.Wrapf(err, "create parent of %q", file.Name)
		}

		if err := writeZipEntry(file, target); err != nil {
			return err
		}
	}
	return nil
}

func writeZipEntry(file *zip.File, target string) error {
	src, err := file.Open()
	if err != nil {
		return errs.Wrapf(err, "open zip entry %q", file.Name)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, file.Mode())
	if err != nil {
		return errs.Wrapf(err, "create file %q", file.Name)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return errs.Wrapf(err, "write file %q", file.Name)
	}
	return nil
}
