package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// FileSource implements LineSource for a single data file.
type FileSource struct {
	path   string
	file   *os.File
	reader *bufio.Reader
	size   int64

	start int
	stop  int // -1 means unbounded
	index int
}

// Open opens a data file and positions it at the start of rng.
// A nil range selects every line. Ranges with negative offsets cost one
// extra pass over the file to count its lines.
func Open(path string, rng *Range) (*FileSource, error) {
	f, err := os.Open(path) // #nosec G304 -- user-provided paths are expected
	if err != nil {
		return nil, fmt.Errorf("opening data file %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	s := &FileSource{
		path: path,
		file: f,
		size: info.Size(),
	}

	total := -1
	if rng.NeedsTotal() {
		total, err = countLines(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("counting lines in %s: %w", path, err)
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("rewinding %s: %w", path, err)
		}
	}
	s.start, s.stop = rng.Resolve(total)
	s.reader = bufio.NewReaderSize(f, 64*1024)
	return s, nil
}

// Path returns the path the source was opened with.
func (s *FileSource) Path() string {
	return s.path
}

// Size returns the size of the file in bytes at open time.
func (s *FileSource) Size() int64 {
	return s.size
}

// Next returns the next line inside the range.
// Returns io.EOF when the range or the file is exhausted.
func (s *FileSource) Next(ctx context.Context) (*Line, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if s.reader == nil {
			return nil, io.EOF
		}
		if s.stop >= 0 && s.index >= s.stop {
			return nil, io.EOF
		}

		text, err := s.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("reading %s: %w", s.path, err)
		}
		if text == "" && err != nil {
			return nil, io.EOF
		}

		s.index++
		if s.index <= s.start {
			continue
		}
		return &Line{Text: text, Num: s.index}, nil
	}
}

// Close releases the underlying file.
func (s *FileSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.reader = nil
	return err
}

// countLines counts lines the way Next yields them: a trailing fragment
// without a newline is a line, an empty tail is not.
func countLines(r io.Reader) (int, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	n := 0
	for {
		text, err := br.ReadString('\n')
		if text != "" {
			n++
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
	}
}
