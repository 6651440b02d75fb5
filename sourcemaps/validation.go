package sourcemaps

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/kloudfuse/go-uploadutils/internal"
	"github.com/kloudfuse/go-uploadutils/upload"
)

// Validator rejects sourcemaps that cannot be processed by the backend.
type Validator struct {
	fs internal.OsProxy
}

// NewValidator ...
func NewValidator(osProxy internal.OsProxy) *Validator {
	if osProxy == nil {
		osProxy = internal.RealOS{}
	}
	return &Validator{fs: osProxy}
}

// Validate returns an *upload.InvalidPayloadError for missing or empty files
// and missing release fields. File system errors other than a missing file
// are returned as they are.
func (v *Validator) Validate(job upload.Job) error {
	sm, ok := job.(*Sourcemap)
	if !ok {
		return fmt.Errorf("unexpected job type %T", job)
	}

	if sm.release.Service == "" {
		return upload.NewInvalidPayloadError("Missing service for sourcemap (%s)", sm.SourcemapPath)
	}
	if sm.release.Version == "" {
		return upload.NewInvalidPayloadError("Missing release version for sourcemap (%s)", sm.SourcemapPath)
	}

	exists, empty, err := v.checkFile(sm.SourcemapPath)
	if err != nil {
		return err
	}
	if !exists {
		return upload.NewInvalidPayloadError("Missing sourcemap file %s", sm.SourcemapPath)
	}
	if empty {
		return upload.NewInvalidPayloadError("Skipping empty sourcemap (%s)", sm.SourcemapPath)
	}

	exists, empty, err = v.checkFile(sm.MinifiedFilePath)
	if err != nil {
		return err
	}
	if !exists {
		return upload.NewInvalidPayloadError("Missing corresponding JS file for sourcemap (%s)", sm.MinifiedFilePath)
	}
	if empty {
		return upload.NewInvalidPayloadError("Skipping sourcemap (%s) due to %s being empty", sm.SourcemapPath, sm.MinifiedFilePath)
	}

	return nil
}

func (v *Validator) checkFile(pth string) (exists bool, empty bool, err error) {
	info, err := v.fs.Stat(pth)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, false, nil
		}
		return false, false, err
	}
	return true, info.Size() == 0, nil
}
