package powerlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/klauspost/compress/flate"
)

// Dictionary seeds the deflate compressor. Strings that appear more often in
// the log sit towards the end; it is not critical that every logged token
// appears here.
const Dictionary = "onoffidleoff-hookringinglowairplane-modebatteryedgeGPRS3Gunknown" +
	"in-serviceemergency-onlyout-of-servicepower-offdisconnectedconnecting" +
	"associateconnectedsuspendedphone-callservicenetworkbegin.0123456789" +
	"GPSAudioWifi3GLCDCPU-power "

// EndOfIteration terminates every iteration block.
const EndOfIteration = "------ END OF ITERATION ------"

// Writer is the append-only event stream. One mutex guards writes and
// flushes, held only for the duration of the call. Writes past a transient
// I/O failure are logged as warnings and dropped; persistence degrades,
// sampling never stops.
type Writer struct {
	mu   sync.Mutex
	file io.WriteCloser
	comp *flate.Writer
	buf  *bufio.Writer
}

// Open creates or truncates the log file at path. With compress set, the
// stream runs through a dictionary-seeded deflate layer.
func Open(path string, compress bool) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}
	w, err := NewWriter(f, compress)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// NewWriter wraps an open stream. The caller hands over ownership; Close
// closes it.
func NewWriter(out io.WriteCloser, compress bool) (*Writer, error) {
	w := &Writer{file: out}
	if compress {
		comp, err := flate.NewWriterDict(out, flate.DefaultCompression, []byte(Dictionary))
		if err != nil {
			return nil, fmt.Errorf("initializing compressor: %w", err)
		}
		w.comp = comp
		w.buf = bufio.NewWriter(comp)
	} else {
		w.buf = bufio.NewWriter(out)
	}
	return w, nil
}

// WriteLines appends the lines as one block, so a flush never lands in the
// middle of an iteration.
func (w *Writer) WriteLines(lines []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, line := range lines {
		if _, err := w.buf.WriteString(line); err != nil {
			log.Printf("failed to write to power log: %v", err)
			return
		}
		if err := w.buf.WriteByte('\n'); err != nil {
			log.Printf("failed to write to power log: %v", err)
			return
		}
	}
}

// Flush pushes buffered lines down to the file, through the compressor when
// one is configured.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		log.Printf("failed to flush power log: %v", err)
		return
	}
	if w.comp != nil {
		if err := w.comp.Flush(); err != nil {
			log.Printf("failed to flush power log compressor: %v", err)
		}
	}
}

// Close flushes and closes the stream.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var err error
	err = errors.Join(err, w.buf.Flush())
	if w.comp != nil {
		err = errors.Join(err, w.comp.Close())
	}
	return errors.Join(err, w.file.Close())
}
