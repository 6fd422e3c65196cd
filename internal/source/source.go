package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/roach88/regeindary/internal/record"
)

// Format is an input file format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatTSV   Format = "tsv"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
)

// ErrUnsupportedFormat is returned for file extensions no reader handles.
var ErrUnsupportedFormat = errors.New("unsupported source format")

// maxLineSize bounds a single JSON Lines record.
const maxLineSize = 16 << 20

// File is a fully read source file.
type File struct {
	Path   string
	Format Format

	// Encoding names the character set the input was decoded from.
	Encoding string

	// Headers are the CSV header row, or for JSON the keys seen across all
	// records in first-seen order (sorted within each record).
	Headers []string

	Records []record.RawRecord

	seen map[string]struct{}
}

// FormatOf returns the format implied by the path's extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".tsv", ".tab":
		return FormatTSV, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

// ReadFile reads every record of the file at path.
func ReadFile(path string) (*File, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	out, err := Read(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out.Path = path
	return out, nil
}

// Read reads every record from r in the given format.
func Read(r io.Reader, format Format) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	data, encoding, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	var out *File
	switch format {
	case FormatCSV:
		out, err = readDelimited(data, ',')
	case FormatTSV:
		out, err = readDelimited(data, '\t')
	case FormatJSON:
		out, err = readJSON(data)
	case FormatJSONL:
		out, err = readJSONL(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	out.Format = format
	out.Encoding = encoding
	return out, nil
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decodeText returns data as UTF-8 without a byte-order mark.
func decodeText(data []byte) ([]byte, string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return data[len(bomUTF8):], "utf-8", nil
	case bytes.HasPrefix(data, bomUTF16LE):
		out, err := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder().Bytes(data)
		if err != nil {
			return nil, "", fmt.Errorf("decode utf-16: %w", err)
		}
		return out, "utf-16le", nil
	case bytes.HasPrefix(data, bomUTF16BE):
		out, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(data)
		if err != nil {
			return nil, "", fmt.Errorf("decode utf-16: %w", err)
		}
		return out, "utf-16be", nil
	case utf8.Valid(data):
		return data, "utf-8", nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return nil, "", fmt.Errorf("decode windows-1252: %w", err)
	}
	return out, "windows-1252", nil
}

func readDelimited(data []byte, comma rune) (*File, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return &File{Headers: []string{}, Records: []record.RawRecord{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	headers, err := normalizeHeaders(header)
	if err != nil {
		return nil, err
	}

	out := &File{Headers: headers, Records: []record.RawRecord{}}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if len(row) > len(headers) {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("line %d: %d fields, header has %d", line, len(row), len(headers))
		}
		rec := make(record.RawRecord, len(headers))
		for i, h := range headers {
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// normalizeHeaders trims header names and names blank columns by position.
// Duplicate names are rejected: one value would silently shadow the other.
func normalizeHeaders(header []string) ([]string, error) {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		if prev, ok := seen[h]; ok {
			return nil, fmt.Errorf("duplicate column %q (columns %d and %d)", h, prev+1, i+1)
		}
		seen[h] = i
		out[i] = h
	}
	return out, nil
}

func readJSON(data []byte) (*File, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("decode json array: %w", err)
	}
	out := &File{Records: make([]record.RawRecord, 0, len(items))}
	for _, item := range items {
		out.add(item)
	}
	return out, nil
}

func readJSONL(data []byte) (*File, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	out := &File{Records: []record.RawRecord{}}
	for line := 1; sc.Scan(); line++ {
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(text))
		dec.UseNumber()
		var item map[string]any
		if err := dec.Decode(&item); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out.add(item)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan json lines: %w", err)
	}
	return out, nil
}

func (f *File) add(item map[string]any) {
	keys := make([]string, 0, len(item))
	for k := range item {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	if f.seen == nil {
		f.seen = make(map[string]struct{})
	}
	for _, k := range keys {
		if _, ok := f.seen[k]; !ok {
			f.seen[k] = struct{}{}
			f.Headers = append(f.Headers, k)
		}
	}
	f.Records = append(f.Records, record.RawRecord(item))
}
