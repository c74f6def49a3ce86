package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"
)

const pollInterval = 250 * time.Millisecond

// TailOptions controls a Tail call. A negative Offset means "the last Limit
// lines"; otherwise reading starts at Offset. Match, when set, keeps only
// lines containing it.
type TailOptions struct {
	Offset int64
	Limit  int
	Match  string
	Follow bool
	Wait   time.Duration
}

// TailResult carries the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from the log at path. A missing file yields no lines.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return TailResult{}, nil
	case err != nil:
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	case info.IsDir():
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	start := opts.Offset
	keep := opts.Limit
	if start < 0 {
		start = 0
	} else {
		keep = 0
	}
	// A file truncated or rotated under us restarts from the top.
	if start > info.Size() {
		start = 0
	}

	lines, offset, err := scan(path, start, opts.Match, keep)
	if err != nil {
		return TailResult{Offset: opts.Offset}, err
	}
	if opts.Offset < 0 && opts.Limit <= 0 {
		lines = nil
	}
	result := TailResult{Lines: lines, Offset: offset}
	if len(lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return result, nil
	}
	return poll(ctx, path, offset, opts.Match, opts.Wait)
}

// scan reads complete lines from start. When keep > 0 only the last keep
// matching lines are returned. A trailing line without a newline is left for
// the next call.
func scan(path string, start int64, match string, keep int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, start, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(start, io.SeekStart); err != nil {
		return nil, start, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	offset := start
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, start, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if match != "" && !strings.Contains(line, match) {
			continue
		}
		lines = append(lines, line)
		if keep > 0 && len(lines) > 2*keep {
			lines = append(lines[:0], lines[len(lines)-keep:]...)
		}
	}
	if keep > 0 && len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}
	return lines, offset, nil
}

func poll(ctx context.Context, path string, offset int64, match string, wait time.Duration) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return TailResult{Offset: offset}, ctx.Err()
		case <-ticker.C:
		}
		lines, next, err := scan(path, offset, match, 0)
		if err != nil {
			return TailResult{Offset: offset}, err
		}
		offset = next
		if len(lines) > 0 || time.Now().After(deadline) {
			return TailResult{Lines: lines, Offset: offset}, nil
		}
	}
}
