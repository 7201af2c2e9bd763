package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"siemlite/internal/metrics"
	"siemlite/internal/model"
)

type State int32

const (
	StateWaiting State = iota
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

var (
	errTruncated = errors.New("file truncated")
	errReplaced  = errors.New("file replaced")
)

type TailerOptions struct {
	Path string
	// StartAtEnd seeks to the end of a file that already exists when Run
	// starts, so only lines appended afterwards are delivered. A file that
	// appears later is read from offset 0.
	StartAtEnd bool
	// ReopenAtStart reads a file reopened after loss or rotation from
	// offset 0 instead of its end.
	ReopenAtStart bool
	PollInterval  time.Duration
	RetryInterval time.Duration
	Clock         clock.Clock
	Logger        *slog.Logger
	Metrics       *metrics.Collectors
}

// Tailer follows one file and delivers every complete appended line.
type Tailer struct {
	opts  TailerOptions
	clock clock.Clock
	state atomic.Int32
}

func NewTailer(opts TailerOptions) *Tailer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 5 * time.Second
	}
	c := opts.Clock
	if c == nil {
		c = clock.New()
	}
	return &Tailer{opts: opts, clock: c}
}

func (t *Tailer) Path() string {
	return t.opts.Path
}

func (t *Tailer) State() State {
	return State(t.state.Load())
}

func (t *Tailer) setState(s State, reason string) {
	prev := State(t.state.Swap(int32(s)))
	if prev == s || t.opts.Logger == nil {
		return
	}
	attrs := []any{"path", t.opts.Path, "from", prev.String(), "to", s.String()}
	if reason != "" {
		attrs = append(attrs, "reason", reason)
	}
	t.opts.Logger.Info("tailer state changed", attrs...)
}

// Run tails until ctx is done and returns ctx.Err(). Open, read and rotation
// problems are logged and retried.
func (t *Tailer) Run(ctx context.Context, out chan<- model.LogLine) error {
	_, statErr := os.Stat(t.opts.Path)
	existed := statErr == nil
	reopened := false
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f, info, offset, err := t.open(t.seekEnd(existed, reopened))
		if err != nil {
			if t.opts.Logger != nil {
				t.opts.Logger.Warn("tail open failed", "path", t.opts.Path, "retry_in", t.opts.RetryInterval, "err", err)
			}
			if !BackoffSleep(ctx, t.clock, t.opts.RetryInterval) {
				return ctx.Err()
			}
			continue
		}
		reopened = true
		t.opts.Metrics.TailerOpened(t.opts.Path)
		t.setState(StateStreaming, "")

		err = t.stream(ctx, f, info, offset, out)
		_ = f.Close()
		if ctx.Err() != nil {
			t.setState(StateWaiting, "stopped")
			return ctx.Err()
		}
		t.setState(StateWaiting, err.Error())
		if t.opts.Logger != nil && !errors.Is(err, errTruncated) && !errors.Is(err, errReplaced) {
			t.opts.Logger.Warn("tail read failed", "path", t.opts.Path, "err", err)
		}
	}
}

// seekEnd reports whether the next open starts at the end of the file.
func (t *Tailer) seekEnd(existed, reopened bool) bool {
	if !t.opts.StartAtEnd {
		return false
	}
	if reopened {
		return !t.opts.ReopenAtStart
	}
	return existed
}

func (t *Tailer) open(seekEnd bool) (*os.File, os.FileInfo, int64, error) {
	f, err := os.Open(t.opts.Path)
	if err != nil {
		return nil, nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, 0, fmt.Errorf("stat %s: %w", t.opts.Path, err)
	}
	var offset int64
	if seekEnd {
		pos, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			_ = f.Close()
			return nil, nil, 0, fmt.Errorf("seek %s: %w", t.opts.Path, err)
		}
		offset = pos
	}
	return f, info, offset, nil
}

// stream reads f until an error, truncation, or replacement of the path.
func (t *Tailer) stream(ctx context.Context, f *os.File, info os.FileInfo, offset int64, out chan<- model.LogLine) error {
	reader := bufio.NewReader(f)
	var partial strings.Builder
	for {
		chunk, err := reader.ReadString('\n')
		offset += int64(len(chunk))
		if err == nil {
			text := chunk
			if partial.Len() > 0 {
				partial.WriteString(chunk)
				text = partial.String()
				partial.Reset()
			}
			if !t.deliver(ctx, out, text) {
				return ctx.Err()
			}
			continue
		}
		if err != io.EOF {
			return fmt.Errorf("read %s: %w", t.opts.Path, err)
		}
		partial.WriteString(chunk)

		if !BackoffSleep(ctx, t.clock, t.opts.PollInterval) {
			return ctx.Err()
		}
		cur, err := os.Stat(t.opts.Path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", t.opts.Path, err)
		}
		if !os.SameFile(info, cur) {
			return errReplaced
		}
		if cur.Size() < offset {
			return errTruncated
		}
	}
}

func (t *Tailer) deliver(ctx context.Context, out chan<- model.LogLine, raw string) bool {
	text := strings.TrimSpace(raw)
	if text == "" {
		return true
	}
	return Send(ctx, out, model.LogLine{Text: text, Time: t.clock.Now(), Path: t.opts.Path})
}
