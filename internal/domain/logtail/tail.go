package logtail

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/opsdeck/appman/internal/shared/apperr"
)

// chunkSize is how much is read per backward step. Large enough that a
// typical tail needs one or two reads, small enough to stay bounded.
const chunkSize = 64 * 1024

// Tail returns the last maxLines lines of the file that survive the filter,
// in original order, most recent last.
//
// Plain files are read backward in bounded chunks from EOF, never loaded
// whole. Rotated files compressed with gzip (path ending in .gz) stream
// forward through a line ring of maxLines instead, since gzip cannot seek;
// memory stays bounded by the ring either way.
//
// A missing file fails with ErrLogNotFound. An existing empty file returns
// an empty slice without error.
func Tail(path string, maxLines int, filter Filter) ([]string, error) {
	if maxLines <= 0 {
		return []string{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", apperr.ErrLogNotFound, path)
		}
		return nil, fmt.Errorf("failed to open log %s: %w", path, err)
	}
	defer f.Close()

	if strings.HasSuffix(path, ".gz") {
		return tailGzip(f, maxLines, filter)
	}
	return tailPlain(f, maxLines, filter)
}

// tailPlain scans backward from EOF collecting filtered lines until it has
// maxLines or reaches the start of the file.
func tailPlain(f *os.File, maxLines int, filter Filter) ([]string, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat log: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return []string{}, nil
	}

	// lines accumulates in reverse order
	lines := make([]string, 0, maxLines)
	var carry []byte // partial line spilling over a chunk boundary
	offset := size

	for offset > 0 && len(lines) < maxLines {
		readSize := int64(chunkSize)
		if offset < readSize {
			readSize = offset
		}
		offset -= readSize

		chunk := make([]byte, readSize)
		if _, err := f.ReadAt(chunk, offset); err != nil {
			return nil, fmt.Errorf("failed to read log: %w", err)
		}

		buf := append(chunk, carry...)
		parts := bytes.Split(buf, []byte("\n"))

		// parts[0] may continue a line from the previous (earlier) chunk
		carry = parts[0]
		start := 1
		if offset == 0 {
			start = 0
		}

		for i := len(parts) - 1; i >= start && len(lines) < maxLines; i-- {
			line := string(parts[i])
			// Skip the empty fragment after a trailing newline at EOF
			if line == "" && offset+readSize == size && i == len(parts)-1 {
				continue
			}
			if filter.keep(line) {
				lines = append(lines, line)
			}
		}
	}

	// Restore original order
	out := make([]string, len(lines))
	for i, line := range lines {
		out[len(lines)-1-i] = line
	}
	return out, nil
}

// tailGzip streams a compressed log forward, keeping the last maxLines
// surviving lines in a ring.
func tailGzip(f *os.File, maxLines int, filter Filter) ([]string, error) {
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip log: %w", err)
	}
	defer zr.Close()

	ring := make([]string, 0, maxLines)
	next := 0
	wrapped := false

	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 0, chunkSize), chunkSize)
	for scanner.Scan() {
		line := scanner.Text()
		if !filter.keep(line) {
			continue
		}
		if len(ring) < maxLines {
			ring = append(ring, line)
			next = len(ring) % maxLines
		} else {
			ring[next] = line
			next = (next + 1) % maxLines
			wrapped = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read gzip log: %w", err)
	}

	if !wrapped || len(ring) < maxLines {
		return ring, nil
	}
	out := make([]string, 0, maxLines)
	out = append(out, ring[next:]...)
	out = append(out, ring[:next]...)
	return out, nil
}
