package transcoder

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrAlreadyInProgress is returned by TryAcquire when another process or
// goroutine already holds the lock for the same source file.
var ErrAlreadyInProgress = errors.New("transcode already in progress for this source")

// SourceLock coalesces concurrent transcode attempts for the same source
// file onto a single ffmpeg run using an exclusive-create lock file
// alongside the target cache entry.
type SourceLock struct {
	path string
	file *os.File
}

// NewSourceLock returns a lock guarding outputPath + ".lock". Two processes
// racing to transcode the same source contend on the same lock path because
// outputPath is derived deterministically from the source path.
func NewSourceLock(outputPath string) *SourceLock {
	return &SourceLock{path: outputPath + ".lock"}
}

// TryAcquire non-blockingly claims the lock, failing with
// ErrAlreadyInProgress if another holder is active. Release always removes
// the file on the normal path; a lock file surviving a hard crash of the
// holder must be cleared manually before that source can be retried.
func (l *SourceLock) TryAcquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return ErrAlreadyInProgress
		}
		return fmt.Errorf("failed to acquire transcode lock: %w", err)
	}

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		f.Close()
		os.Remove(l.path)
		return fmt.Errorf("failed to write transcode lock: %w", err)
	}

	l.file = f
	return nil
}

// Release closes and removes the lock file. Safe to call even if
// TryAcquire failed.
func (l *SourceLock) Release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
