package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hub-protocol/hub-go/pkg/log"
)

// Framing constants.
const (
	// DefaultMaxLineLength is the default maximum line length (64 KB).
	DefaultMaxLineLength = 64 * 1024

	// lineTerminator ends every line sent to the hub.
	lineTerminator = "\n"
)

// Framing errors.
var (
	// ErrLineTooLong indicates a line exceeds the maximum length.
	ErrLineTooLong = errors.New("line too long")

	// ErrLineBreak indicates an outgoing line contains a line terminator.
	ErrLineBreak = errors.New("line contains a line break")
)

// LineWriter writes newline-terminated lines to an underlying writer.
type LineWriter struct {
	w             io.Writer
	maxLineLength int
	mu            sync.Mutex

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewLineWriter creates a line writer. maxLen <= 0 means DefaultMaxLineLength.
func NewLineWriter(w io.Writer, maxLen int) *LineWriter {
	if maxLen <= 0 {
		maxLen = DefaultMaxLineLength
	}
	return &LineWriter{w: w, maxLineLength: maxLen}
}

// SetLogger configures logging for this writer.
// Pass nil to disable logging.
func (lw *LineWriter) SetLogger(logger log.Logger, connID string) {
	lw.logger = logger
	lw.connID = connID
}

// WriteLine writes line followed by the terminator in a single write.
// Thread-safe: can be called from multiple goroutines.
func (lw *LineWriter) WriteLine(line string) error {
	if strings.ContainsAny(line, "\r\n") {
		return ErrLineBreak
	}
	if len(line) > lw.maxLineLength {
		return fmt.Errorf("%w: %d > %d", ErrLineTooLong, len(line), lw.maxLineLength)
	}

	lw.mu.Lock()
	defer lw.mu.Unlock()

	if _, err := io.WriteString(lw.w, line+lineTerminator); err != nil {
		return fmt.Errorf("failed to write line: %w", err)
	}

	if lw.logger != nil {
		lw.logger.Log(makeLineEvent(line, log.DirectionOut, log.CategoryCommand, lw.connID))
	}
	return nil
}

// LineReader reads lines from an underlying reader. Both "\n" and "\r\n"
// terminators are accepted.
type LineReader struct {
	scanner *bufio.Scanner

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewLineReader creates a line reader. maxLen <= 0 means DefaultMaxLineLength.
func NewLineReader(r io.Reader, maxLen int) *LineReader {
	if maxLen <= 0 {
		maxLen = DefaultMaxLineLength
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(maxLen, 4096)), maxLen)
	return &LineReader{scanner: scanner}
}

// SetLogger configures logging for this reader.
// Pass nil to disable logging.
func (lr *LineReader) SetLogger(logger log.Logger, connID string) {
	lr.logger = logger
	lr.connID = connID
}

// ReadLine returns the next line without its terminator. It returns io.EOF
// when the stream ends cleanly.
func (lr *LineReader) ReadLine() (string, error) {
	if !lr.scanner.Scan() {
		err := lr.scanner.Err()
		switch {
		case err == nil:
			return "", io.EOF
		case errors.Is(err, bufio.ErrTooLong):
			return "", fmt.Errorf("%w: %w", ErrLineTooLong, err)
		default:
			return "", err
		}
	}
	line := strings.TrimSuffix(lr.scanner.Text(), "\r")

	if lr.logger != nil {
		lr.logger.Log(makeLineEvent(line, log.DirectionIn, log.CategoryReply, lr.connID))
	}
	return line, nil
}

func makeLineEvent(line string, direction log.Direction, category log.Category, connID string) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     category,
		Line:         log.NewLineEvent(line),
	}
}

// LineFramer combines a LineReader and a LineWriter over one stream.
type LineFramer struct {
	*LineReader
	*LineWriter
}

// NewLineFramer creates a framer for rw.
func NewLineFramer(rw io.ReadWriter, maxLen int) *LineFramer {
	return &LineFramer{
		LineReader: NewLineReader(rw, maxLen),
		LineWriter: NewLineWriter(rw, maxLen),
	}
}

// SetLogger configures logging for both directions.
func (f *LineFramer) SetLogger(logger log.Logger, connID string) {
	f.LineReader.SetLogger(logger, connID)
	f.LineWriter.SetLogger(logger, connID)
}
