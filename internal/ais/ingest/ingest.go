// Package ingest parses AIS position records from CSV/TSV files, optionally
// zstd-compressed, into typed model.AisPoint values. It supports both a
// materializing mode (load everything, sort once) and a streaming mode
// (bounded memory, sorted only within each chunk) per the loader contract.
package ingest

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/aegisais/detector/internal/ais/model"
	"github.com/aegisais/detector/internal/fsutil"
	"github.com/aegisais/detector/internal/monitoring"
)

// DefaultChunkSize is the default streaming batch size.
const DefaultChunkSize = 10000

// StreamingThresholdBytes is the default materialize-vs-stream cutoff (50MB).
const StreamingThresholdBytes = 50 * 1024 * 1024

var requiredColumns = []string{"mmsi", "timestamp", "lat", "lon"}

var columnAliases = map[string]string{
	"latitude":       "lat",
	"y":              "lat",
	"longitude":      "lon",
	"lng":            "lon",
	"long":           "lon",
	"x":              "lon",
	"base_date_time": "timestamp",
	"datetime":       "timestamp",
	"date_time":      "timestamp",
	"time":           "timestamp",
	"date":           "timestamp",
}

// ShouldStream reports whether a file of sizeBytes should be loaded in
// streaming mode rather than materialized, given thresholdMB from config.
func ShouldStream(sizeBytes int64, thresholdMB float64) bool {
	return float64(sizeBytes) > thresholdMB*1024*1024
}

// detectDelimiter infers the field delimiter from a (possibly .zst-suffixed)
// file extension: .csv -> comma, .dat -> tab. The materializing loader
// (newCSVReader) falls back from tab to comma, then to a single space, if
// the header doesn't parse; the streaming reader uses the preferred
// delimiter only, with no fallback.
func detectDelimiter(path string) rune {
	base := path
	if strings.HasSuffix(base, ".zst") {
		base = strings.TrimSuffix(base, ".zst")
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".dat":
		return '\t'
	default:
		return ','
	}
}

// openDecompressed opens path through fsys, transparently zstd-decompressing
// when it ends in .zst. fsys is an indirection point for testing without
// real disk I/O (fsutil.MemoryFileSystem), and fsutil.OSFileSystem in
// production.
func openDecompressed(fsys fsutil.FileSystem, path string) (io.ReadCloser, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(strings.ToLower(path), ".zst") {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open zstd reader: %w", err)
	}
	return &zstdReadCloser{dec: dec, f: f}, nil
}

type zstdReadCloser struct {
	dec *zstd.Decoder
	f   fs.File
}

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }
func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.f.Close()
}

// normalizeHeader lowercases, trims, and maps a header row to canonical
// column names, returning a name->index lookup.
func normalizeHeader(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if canonical, ok := columnAliases[name]; ok {
			if _, exists := idx[canonical]; !exists {
				name = canonical
			}
		}
		idx[name] = i
	}
	return idx
}

func missingRequiredColumns(idx map[string]int) []string {
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// newCSVReader builds a csv.Reader over data with delim, falling back through
// tab -> comma -> single space when delim is tab and the header fails to
// read or has fewer than two fields. It returns the reader positioned after
// the header, together with the header record.
func newCSVReader(data []byte, delim rune) (*csv.Reader, []string, error) {
	try := func(d rune) (*csv.Reader, []string, error) {
		cr := csv.NewReader(strings.NewReader(string(data)))
		cr.Comma = d
		cr.FieldsPerRecord = -1
		header, err := cr.Read()
		if err != nil {
			return nil, nil, err
		}
		if len(header) < 2 {
			return nil, nil, fmt.Errorf("header has fewer than 2 fields with delimiter %q", d)
		}
		return cr, header, nil
	}

	delims := []rune{delim}
	if delim == '\t' {
		delims = append(delims, ',', ' ')
	}

	var lastErr error
	for _, d := range delims {
		cr, header, err := try(d)
		if err == nil {
			return cr, header, nil
		}
		lastErr = err
	}
	return nil, nil, fmt.Errorf("could not parse CSV header with any delimiter: %w", lastErr)
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if epoch, err := strconv.ParseFloat(raw, 64); err == nil {
		sec := math.Trunc(epoch)
		nsec := (epoch - sec) * 1e9
		return time.Unix(int64(sec), int64(nsec)).UTC(), nil
	}
	for _, layout := range []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", raw)
}

func safeFloat(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseRow converts one CSV record into an AisPoint using the column
// index map. ok is false when a required field is missing or invalid;
// the row should be dropped (counted, not fatal).
func parseRow(record []string, idx map[string]int) (model.AisPoint, bool) {
	get := func(col string) (string, bool) {
		i, ok := idx[col]
		if !ok || i >= len(record) {
			return "", false
		}
		return record[i], true
	}

	mmsiRaw, ok := get("mmsi")
	mmsi := strings.TrimSpace(mmsiRaw)
	if !ok || mmsi == "" {
		return model.AisPoint{}, false
	}

	tsRaw, ok := get("timestamp")
	if !ok {
		return model.AisPoint{}, false
	}
	ts, err := parseTimestamp(tsRaw)
	if err != nil {
		return model.AisPoint{}, false
	}

	latRaw, _ := get("lat")
	lat, ok := safeFloat(latRaw)
	if !ok || lat < -90 || lat > 90 {
		return model.AisPoint{}, false
	}
	lonRaw, _ := get("lon")
	lon, ok := safeFloat(lonRaw)
	if !ok || lon < -180 || lon > 180 {
		return model.AisPoint{}, false
	}

	p := model.AisPoint{MMSI: mmsi, Timestamp: ts, Lat: lat, Lon: lon}

	if sogRaw, ok := get("sog"); ok {
		if sog, ok := safeFloat(sogRaw); ok && sog >= 0 {
			p.SOG = model.Some(sog)
		}
	}
	if cogRaw, ok := get("cog"); ok {
		if cog, ok := safeFloat(cogRaw); ok && cog >= 0 && cog <= 360 {
			p.COG = model.Some(cog)
		}
	}
	if hdgRaw, ok := get("heading"); ok {
		if hdg, ok := safeFloat(hdgRaw); ok && hdg >= 0 && hdg <= 360 {
			p.Heading = model.Some(hdg)
		}
	}

	return p, true
}

// Load materializes every valid point from path, sorted ascending by
// timestamp. Returns an error if the file is missing, unreadable, or the
// header lacks a required column.
func Load(path string) ([]model.AisPoint, error) {
	return LoadFS(fsutil.OSFileSystem{}, path)
}

// LoadFS is Load with an injectable filesystem, for testing without real
// disk I/O.
func LoadFS(fsys fsutil.FileSystem, path string) ([]model.AisPoint, error) {
	r, err := openDecompressed(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cr, header, err := newCSVReader(data, detectDelimiter(path))
	if err != nil {
		return nil, fmt.Errorf("parse header of %s: %w", path, err)
	}
	idx := normalizeHeader(header)
	if missing := missingRequiredColumns(idx); len(missing) > 0 {
		return nil, fmt.Errorf("%s missing required columns: %v", path, missing)
	}

	var points []model.AisPoint
	errCount := 0
	rowNum := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			errCount++
			continue
		}
		rowNum++
		p, ok := parseRow(record, idx)
		if !ok {
			errCount++
			continue
		}
		points = append(points, p)
	}

	if errCount > 0 {
		monitoring.Logf("ingest: skipped %d invalid rows out of %d in %s", errCount, rowNum, path)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no valid AIS points found in %s", path)
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points, nil
}

// StreamReader yields successive chunks of up to chunkSize valid points,
// each internally sorted by timestamp but not globally sorted across
// chunks (files from real feeds are already approximately ordered).
type StreamReader struct {
	closer    io.Closer
	csvReader *csv.Reader
	idx       map[string]int
	chunkSize int
	done      bool
}

// NewStreamReader opens path and prepares to stream chunks of chunkSize
// valid points at a time.
func NewStreamReader(path string, chunkSize int) (*StreamReader, error) {
	return NewStreamReaderFS(fsutil.OSFileSystem{}, path, chunkSize)
}

// NewStreamReaderFS is NewStreamReader with an injectable filesystem, for
// testing without real disk I/O.
func NewStreamReaderFS(fsys fsutil.FileSystem, path string, chunkSize int) (*StreamReader, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	rc, err := openDecompressed(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	br := bufio.NewReaderSize(rc, 1<<20)
	cr := csv.NewReader(br)
	cr.Comma = detectDelimiter(path)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	idx := normalizeHeader(header)
	if missing := missingRequiredColumns(idx); len(missing) > 0 {
		rc.Close()
		return nil, fmt.Errorf("%s missing required columns: %v", path, missing)
	}

	return &StreamReader{closer: rc, csvReader: cr, idx: idx, chunkSize: chunkSize}, nil
}

// Next returns the next chunk of valid points, sorted by timestamp within
// the chunk. It returns io.EOF (with a possibly non-empty final chunk)
// once the file is exhausted.
func (s *StreamReader) Next() ([]model.AisPoint, error) {
	if s.done {
		return nil, io.EOF
	}

	var chunk []model.AisPoint
	errCount := 0
	for len(chunk) < s.chunkSize {
		record, err := s.csvReader.Read()
		if err == io.EOF {
			s.done = true
			break
		}
		if err != nil {
			errCount++
			continue
		}
		p, ok := parseRow(record, s.idx)
		if !ok {
			errCount++
			continue
		}
		chunk = append(chunk, p)
	}

	if errCount > 0 {
		monitoring.Logf("ingest: skipped %d invalid rows in chunk", errCount)
	}

	sort.Slice(chunk, func(i, j int) bool { return chunk[i].Timestamp.Before(chunk[j].Timestamp) })

	if s.done {
		if len(chunk) == 0 {
			return nil, io.EOF
		}
		return chunk, io.EOF
	}
	return chunk, nil
}

// Close releases the underlying file handle and any decompressor.
func (s *StreamReader) Close() error {
	return s.closer.Close()
}
