package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"spcguard/internal/config"
	"spcguard/internal/model"
)

const tailPollInterval = 200 * time.Millisecond

func StartFileTail(ctx context.Context, cfg *config.Manager, out chan<- model.Measurement, logger *slog.Logger) {
	current := cfg.Get().Ingest.FileTail
	if !current.Enabled {
		if logger != nil {
			logger.Info("file tail ingest disabled")
		}
		return
	}
	for _, path := range current.Files {
		if logger != nil {
			logger.Info("file tail ingest enabled", "path", path, "start_at_end", current.StartAtEnd)
		}
		t := newTailer(path, cfg, out, logger)
		go t.run(ctx, current.StartAtEnd)
	}
}

// tailer follows one instrument log. A line is handled only once its
// newline arrives. When the file is replaced or truncated it is reopened
// from the start with a fresh parser, since a new file may carry a new CSV
// header.
type tailer struct {
	path   string
	cfg    *config.Manager
	out    chan<- model.Measurement
	logger *slog.Logger
	poll   time.Duration

	file    *os.File
	info    os.FileInfo
	offset  int64
	partial []byte
	parser  *Parser
	stats   lineStats
}

func newTailer(path string, cfg *config.Manager, out chan<- model.Measurement, logger *slog.Logger) *tailer {
	return &tailer{path: path, cfg: cfg, out: out, logger: logger, poll: tailPollInterval}
}

func (t *tailer) run(ctx context.Context, startAtEnd bool) {
	defer t.close()
	for {
		if t.file == nil {
			if err := t.open(startAtEnd); err != nil {
				if t.logger != nil {
					t.logger.Warn("tail open failed", "path", t.path, "err", err)
				}
				if !BackoffSleep(ctx, 500*time.Millisecond) {
					return
				}
				continue
			}
			startAtEnd = false
		}
		if err := t.drain(ctx); err != nil {
			if t.logger != nil {
				t.logger.Warn("tail read error", "path", t.path, "err", err)
			}
			t.close()
			continue
		}
		if !BackoffSleep(ctx, t.poll) {
			return
		}
		t.checkRotation(ctx)
	}
}

func (t *tailer) open(atEnd bool) error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	t.file, t.info = f, info
	t.offset = 0
	t.partial = t.partial[:0]
	t.parser = NewParser()
	if atEnd {
		pos, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			t.close()
			return err
		}
		t.offset = pos
	}
	return nil
}

func (t *tailer) close() {
	if t.file == nil {
		return
	}
	_ = t.file.Close()
	t.file = nil
	if t.logger != nil {
		t.logger.Debug("tail file closed", "path", t.path,
			"accepted", t.stats.accepted, "excluded", t.stats.excluded, "rejected", t.stats.rejected)
	}
}

// drain reads everything currently available and handles complete lines.
func (t *tailer) drain(ctx context.Context) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := t.file.Read(buf)
		if n > 0 {
			t.offset += int64(n)
			t.consume(ctx, buf[:n])
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (t *tailer) consume(ctx context.Context, chunk []byte) {
	t.partial = append(t.partial, chunk...)
	cfg := t.cfg.Get()
	for {
		i := bytes.IndexByte(t.partial, '\n')
		if i < 0 {
			break
		}
		line := string(t.partial[:i])
		t.partial = t.partial[i+1:]
		handleLine(ctx, line, t.parser, cfg, "file", t.out, &t.stats, t.logger)
	}
	if len(t.partial) > maxStreamLine {
		if t.logger != nil {
			t.logger.Warn("tail line too long, discarding", "path", t.path, "bytes", len(t.partial))
		}
		t.partial = t.partial[:0]
	}
	if len(t.partial) == 0 {
		t.partial = nil
	}
}

func (t *tailer) checkRotation(ctx context.Context) {
	info, err := os.Stat(t.path)
	if err != nil {
		return
	}
	switch {
	case !os.SameFile(info, t.info):
		_ = t.drain(ctx)
		if t.logger != nil {
			t.logger.Info("tail file rotated", "path", t.path)
		}
		t.close()
	case info.Size() < t.offset:
		if t.logger != nil {
			t.logger.Info("tail file truncated", "path", t.path)
		}
		t.close()
	}
}
