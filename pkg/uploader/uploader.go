package uploader

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// UploadFunc ships one rotated log file. The transport is the caller's
// business; the uploader only schedules.
type UploadFunc func(path string) error

// Uploader ships rotated logs on its own goroutine. Plug events nudge it to
// retry anything that previously failed; Stop joins it at shutdown.
type Uploader struct {
	upload  UploadFunc
	pending chan string
	plugs   chan bool
	quit    chan struct{}
	done    chan struct{}
}

// New returns an uploader that is not yet running. A nil fn disables
// uploading; enqueued files are then dropped with a warning.
func New(fn UploadFunc) *Uploader {
	return &Uploader{
		upload:  fn,
		pending: make(chan string, 8),
		plugs:   make(chan bool, 4),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the upload loop.
func (u *Uploader) Start() {
	go u.run()
}

// Enqueue schedules one file for upload. It never blocks; when the queue is
// full the file stays on disk for a later run.
func (u *Uploader) Enqueue(path string) {
	select {
	case u.pending <- path:
	default:
		log.Printf("upload queue full, leaving %s on disk", path)
	}
}

// Plug signals a charger state change. It never blocks.
func (u *Uploader) Plug(plugged bool) {
	select {
	case u.plugs <- plugged:
	default:
	}
}

// Stop ends the loop and waits for it. Pending uploads are attempted once
// before returning.
func (u *Uploader) Stop() {
	close(u.quit)
	<-u.done
}

func (u *Uploader) run() {
	defer close(u.done)
	var retry []string
	for {
		select {
		case path := <-u.pending:
			if !u.tryUpload(path) {
				retry = append(retry, path)
			}
		case plugged := <-u.plugs:
			if plugged {
				retry = u.flush(retry)
			}
		case <-u.quit:
			for {
				select {
				case path := <-u.pending:
					retry = append(retry, path)
				default:
					u.flush(retry)
					return
				}
			}
		}
	}
}

func (u *Uploader) flush(paths []string) []string {
	var left []string
	for _, path := range paths {
		if !u.tryUpload(path) {
			left = append(left, path)
		}
	}
	return left
}

func (u *Uploader) tryUpload(path string) bool {
	if u.upload == nil {
		log.Printf("no upload transport configured, dropping %s", path)
		return true
	}
	if err := u.upload(path); err != nil {
		log.Printf("uploading %s: %v", path, err)
		return false
	}
	return true
}

// SpoolTo returns an UploadFunc that moves files into dir, the default
// transport when none is configured.
func SpoolTo(dir string) UploadFunc {
	return func(path string) error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		dest := filepath.Join(dir, filepath.Base(path))
		if err := os.Rename(path, dest); err == nil {
			return nil
		}
		// Rename fails across filesystems; fall back to copy and remove.
		if err := copyFile(path, dest); err != nil {
			return err
		}
		return os.Remove(path)
	}
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
