// Package console provides the blocking keyboard and text output the
// interactive demo is driven by.
package console

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// Console is the operator terminal.
type Console interface {
	io.Writer
	// Getch blocks for one key press without echo.
	Getch() (byte, error)
	// Kbhit reports whether a key press is waiting.
	Kbhit() bool
	// ScanInt reads a decimal number terminated by Enter, echoing input.
	ScanInt() (int64, error)
}

// Terminal is a Console on the process terminal. When stdin is a TTY it
// is switched to raw mode so single key presses are delivered at once.
type Terminal struct {
	out   io.Writer
	keys  chan byte
	errc  chan error
	state *term.State
	fd    int

	mu      sync.Mutex
	pending []byte
}

// Open starts reading keys from in. out receives all demo output; in raw
// mode newlines are translated to CRLF.
func Open(in *os.File, out io.Writer) (*Terminal, error) {
	t := &Terminal{
		out:  out,
		keys: make(chan byte, 64),
		errc: make(chan error, 1),
		fd:   int(in.Fd()),
	}
	if term.IsTerminal(t.fd) {
		state, err := term.MakeRaw(t.fd)
		if err != nil {
			return nil, fmt.Errorf("failed to switch terminal to raw mode: %w", err)
		}
		t.state = state
		t.out = &crlfWriter{w: out}
	}
	go t.read(in)
	return t, nil
}

func (t *Terminal) read(in io.Reader) {
	r := bufio.NewReader(in)
	for {
		b, err := r.ReadByte()
		if err != nil {
			t.errc <- err
			close(t.keys)
			return
		}
		// Ctrl-C in raw mode
		if b == 0x03 {
			t.errc <- ErrInterrupted
			close(t.keys)
			return
		}
		t.keys <- b
	}
}

var (
	// ErrInterrupted is returned when the operator presses Ctrl-C.
	ErrInterrupted = errors.New("interrupted")
	// ErrInvalidNumber wraps ScanInt input that does not parse as an int64.
	ErrInvalidNumber = errors.New("invalid number")
)

// Restore returns the terminal to its original mode.
func (t *Terminal) Restore() error {
	if t.state == nil {
		return nil
	}
	return term.Restore(t.fd, t.state)
}

// Write implements io.Writer.
func (t *Terminal) Write(p []byte) (int, error) { return t.out.Write(p) }

// Raw reports whether the terminal was switched to raw mode.
func (t *Terminal) Raw() bool { return t.state != nil }

// Wrap returns w with newlines translated to CRLF while the terminal is in
// raw mode, so log lines written beside the demo output stay aligned.
func (t *Terminal) Wrap(w io.Writer) io.Writer {
	if t.state == nil {
		return w
	}
	return &crlfWriter{w: w}
}

func (t *Terminal) next() (byte, error) {
	t.mu.Lock()
	if len(t.pending) > 0 {
		b := t.pending[0]
		t.pending = t.pending[1:]
		t.mu.Unlock()
		return b, nil
	}
	t.mu.Unlock()
	b, ok := <-t.keys
	if !ok {
		select {
		case err := <-t.errc:
			t.errc <- err
			return 0, err
		default:
			return 0, io.EOF
		}
	}
	return b, nil
}

// Getch implements Console.
func (t *Terminal) Getch() (byte, error) { return t.next() }

// Kbhit implements Console.
func (t *Terminal) Kbhit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) > 0 {
		return true
	}
	select {
	case b, ok := <-t.keys:
		if !ok {
			return true
		}
		t.pending = append(t.pending, b)
		return true
	case <-time.After(10 * time.Millisecond):
		return false
	}
}

// ScanInt implements Console.
func (t *Terminal) ScanInt() (int64, error) {
	return scanInt(t.next, t)
}

// scanInt collects digits until Enter, handling backspace, and parses
// them. Echo goes to w.
func scanInt(next func() (byte, error), w io.Writer) (int64, error) {
	var buf []byte
	for {
		b, err := next()
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				break
			}
			return 0, err
		}
		switch {
		case b == '\r' || b == '\n':
			if len(buf) == 0 {
				continue
			}
			fmt.Fprint(w, "\n")
			return parseInt(buf)
		case b == 0x7F || b == 0x08:
			if len(buf) > 0 {
				buf = buf[:len(buf)-1]
				fmt.Fprint(w, "\b \b")
			}
		case (b >= '0' && b <= '9') || (b == '-' && len(buf) == 0):
			buf = append(buf, b)
			fmt.Fprintf(w, "%c", b)
		}
	}
	return parseInt(buf)
}

func parseInt(buf []byte) (int64, error) {
	v, err := strconv.ParseInt(string(buf), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %w", ErrInvalidNumber, buf, err)
	}
	return v, nil
}

type crlfWriter struct {
	w io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Scripted is a Console fed from a fixed key sequence, for tests and
// unattended runs. Output is captured.
type Scripted struct {
	mu    sync.Mutex
	input []byte
	out   bytes.Buffer
	echo  io.Writer
	hold  int
}

// NewScripted returns a console that replays input.
func NewScripted(input string) *Scripted {
	return &Scripted{input: []byte(input)}
}

// Echo copies all output to w as well, for unattended runs.
func (s *Scripted) Echo(w io.Writer) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.echo = w
	return s
}

// Write implements io.Writer.
func (s *Scripted) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.echo != nil {
		if _, err := s.echo.Write(p); err != nil {
			return 0, err
		}
	}
	return s.out.Write(p)
}

func (s *Scripted) next() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.input) == 0 {
		return 0, io.EOF
	}
	b := s.input[0]
	s.input = s.input[1:]
	return b, nil
}

// Getch implements Console.
func (s *Scripted) Getch() (byte, error) { return s.next() }

// Kbhit implements Console. It reports no key for the number of polls set
// by HoldKeys, then always reports one so polling loops terminate.
func (s *Scripted) Kbhit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hold > 0 {
		s.hold--
		return false
	}
	return true
}

// HoldKeys makes the next n Kbhit polls report no key.
func (s *Scripted) HoldKeys(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = n
}

// ScanInt implements Console.
func (s *Scripted) ScanInt() (int64, error) {
	return scanInt(s.next, io.Discard)
}

// Output returns everything written so far.
func (s *Scripted) Output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.String()
}

// Remaining returns the keys not yet consumed.
func (s *Scripted) Remaining() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Clone(string(s.input))
}
