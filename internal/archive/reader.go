package archive

import (
	"archive/zip"
	"bufio"
	"bytes"
	"compress/flate"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/jdholdren/webtrack/internal/webtrack"
)

const (
	// Lines longer than this are malformed rows; the rest of the line is skipped.
	maxLineSize = 1 << 20
	// How much of an over-long line is kept for the error list.
	maxReportedLine = 2048
)

// Header names that are skipped when they show up as the first row.
var headerNames = map[string]struct{}{
	"url":      {},
	"urls":     {},
	"full_url": {},
	"link":     {},
	"links":    {},
}

// Row is a single line of the csv file.
type Row struct {
	Line int    // 1-based line number within the csv file
	URL  string // First field of the row, or the raw line when it couldn't be parsed
	Err  error  // Set to [webtrack.ErrMalformedRow] for lines that aren't valid csv
}

// Reader streams the rows of the one csv file inside an archive.
//
// The rows are counted when the reader is opened, so [Reader.Total] is known before the first
// call to [Reader.Next].
type Reader struct {
	zr    *zip.ReadCloser
	entry *zip.File
	total int

	rc    io.ReadCloser
	lines *lineReader
	row   Row
	err   error
}

// Open opens an archive previously written by [Store.Save].
func (s *Store) Open(name string) (*Reader, error) {
	return OpenFile(s.Path(name))
}

// OpenFile opens the archive at the path, finds its csv file and counts the rows in it.
func OpenFile(filePath string) (*Reader, error) {
	zr, err := zip.OpenReader(filePath)
	if errors.Is(err, zip.ErrInsecurePath) && zr != nil {
		// Entries are never extracted to disk
		err = nil
	}
	if err != nil {
		if errors.Is(err, zip.ErrFormat) || errors.Is(err, zip.ErrAlgorithm) || errors.Is(err, zip.ErrChecksum) {
			return nil, fmt.Errorf("%w: %s", webtrack.ErrCorruptArchive, err)
		}
		return nil, fmt.Errorf("%w: %s", webtrack.ErrArchiveUnreadable, err)
	}

	entry, err := findCSV(zr.File)
	if err != nil {
		zr.Close()
		return nil, err
	}

	total, err := countRows(entry)
	if err != nil {
		zr.Close()
		return nil, err
	}

	return &Reader{zr: zr, entry: entry, total: total}, nil
}

// Exactly one csv file is allowed, ignoring directories and the metadata macOS adds.
func findCSV(files []*zip.File) (*zip.File, error) {
	var found []*zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), ".") {
			continue
		}
		if strings.EqualFold(path.Ext(name), ".csv") {
			found = append(found, f)
		}
	}

	if len(found) != 1 {
		return nil, fmt.Errorf("%w: found %d", webtrack.ErrNoCSVFile, len(found))
	}

	return found[0], nil
}

func countRows(entry *zip.File) (int, error) {
	rc, err := entry.Open()
	if err != nil {
		return 0, readError(err)
	}
	defer rc.Close()

	var (
		lines = newLineReader(rc)
		count int
	)
	for {
		_, ok := lines.next()
		if !ok {
			break
		}
		count++
	}
	if err := lines.err; err != nil {
		return 0, readError(err)
	}

	return count, nil
}

// Decompression and checksum failures mean a broken archive, anything else is plain I/O.
func readError(err error) error {
	var corrupt flate.CorruptInputError
	if errors.Is(err, zip.ErrFormat) ||
		errors.Is(err, zip.ErrAlgorithm) ||
		errors.Is(err, zip.ErrChecksum) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &corrupt) {
		return fmt.Errorf("%w: %s", webtrack.ErrCorruptArchive, err)
	}

	return fmt.Errorf("%w: %s", webtrack.ErrArchiveUnreadable, err)
}

// Total is the number of rows in the csv file, malformed ones included.
func (r *Reader) Total() int {
	return r.total
}

// Name is the name of the csv file inside the archive.
func (r *Reader) Name() string {
	return r.entry.Name
}

// Next advances to the next row, returning false at the end of the file or on a read error.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	if r.lines == nil {
		rc, err := r.entry.Open()
		if err != nil {
			r.err = readError(err)
			return false
		}
		r.rc = rc
		r.lines = newLineReader(rc)
	}

	row, ok := r.lines.next()
	if !ok {
		if err := r.lines.err; err != nil {
			r.err = readError(err)
		}
		return false
	}

	r.row = row
	return true
}

// Row returns the row most recently read by [Reader.Next].
func (r *Reader) Row() Row {
	return r.row
}

// Err returns the read error that stopped iteration, if any.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) Close() error {
	if r.rc != nil {
		r.rc.Close()
	}

	return r.zr.Close()
}

// Turns lines into rows: one url per line, blank lines and a leading header skipped.
type lineReader struct {
	br        *bufio.Reader
	line      int
	seenFirst bool
	err       error
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{br: bufio.NewReaderSize(r, 64*1024)}
}

// Reads the next line without its line ending. At most maxLineSize bytes are kept, and
// truncated reports whether anything past that was thrown away.
func (lr *lineReader) readLine() (line []byte, truncated bool, ok bool) {
	for {
		chunk, err := lr.br.ReadSlice('\n')
		n := len(chunk)
		if err == nil {
			n-- // line ending
		}
		if room := maxLineSize - len(line); n > room {
			truncated = true
			chunk = chunk[:max(room, 0)]
		}
		line = append(line, chunk...)

		switch {
		case err == nil:
			return trimLineEnding(line), truncated, true
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(line) == 0 && !truncated {
				return nil, false, false
			}
			return trimLineEnding(line), truncated, true
		default:
			lr.err = err
			return nil, false, false
		}
	}
}

func trimLineEnding(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}

func (lr *lineReader) next() (Row, bool) {
	for {
		raw, truncated, ok := lr.readLine()
		if !ok {
			return Row{}, false
		}
		lr.line++

		text := string(raw)
		if lr.line == 1 {
			text = strings.TrimPrefix(text, "\uFEFF")
		}
		text = strings.TrimSpace(text)
		if text == "" && !truncated {
			continue
		}

		first := !lr.seenFirst
		lr.seenFirst = true

		if truncated {
			if len(text) > maxReportedLine {
				text = text[:maxReportedLine]
			}
			return Row{
				Line: lr.line,
				URL:  text,
				Err:  fmt.Errorf("%w: line longer than %d bytes", webtrack.ErrMalformedRow, maxLineSize),
			}, true
		}

		url, err := firstField(text)
		if err != nil {
			return Row{Line: lr.line, URL: text, Err: fmt.Errorf("%w: %s", webtrack.ErrMalformedRow, err)}, true
		}
		if first {
			if _, ok := headerNames[strings.ToLower(url)]; ok {
				continue
			}
		}

		return Row{Line: lr.line, URL: url}, true
	}
}

var errEmptyField = errors.New("first field is empty")

func firstField(line string) (string, error) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.FieldsPerRecord = -1
	record, err := cr.Read()
	if err != nil {
		return "", err
	}

	field := strings.TrimSpace(record[0])
	if field == "" {
		return "", errEmptyField
	}

	return field, nil
}
