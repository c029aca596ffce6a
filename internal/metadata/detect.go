package metadata

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"aeval/internal/simulate"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format; use csv, json, jsonl, txt or tmx")
	ErrMalformedContent  = errors.New("malformed file content")
)

// Detection is the result of scanning an uploaded file.
type Detection struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	FileFormat  string   `json:"file_format"`
	Size        string   `json:"size"`
	Records     int      `json:"records"`
	Columns     []string `json:"columns,omitempty"`
	Tags        []string `json:"tags"`
}

// Detect inspects content after the scan latency and proposes metadata for
// a new dataset.
func (g *Generator) Detect(ctx context.Context, filename string, content []byte) (Detection, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	switch format {
	case "csv", "json", "jsonl", "txt", "tmx":
	default:
		return Detection{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}
	if err := simulate.Sleep(ctx, g.ScanLatency); err != nil {
		return Detection{}, err
	}

	d := Detection{
		Name:       nameFromFile(filename),
		FileFormat: format,
		Size:       strings.ReplaceAll(humanize.Bytes(uint64(len(content))), " ", ""),
	}
	var err error
	switch format {
	case "csv":
		d.Columns, d.Records, err = scanCSV(content)
	case "json":
		d.Columns, d.Records, err = scanJSON(content)
	case "jsonl":
		d.Columns, d.Records, err = scanJSONL(content)
	default:
		d.Records = countLines(content)
	}
	if err != nil {
		return Detection{}, fmt.Errorf("%w: scan %s: %w", ErrMalformedContent, filename, err)
	}

	d.Description = fmt.Sprintf("Auto-detected from %s upload.", strings.ToUpper(format))
	if len(d.Columns) > 0 {
		d.Description += " Columns: " + strings.Join(d.Columns, ", ") + "."
	}
	d.Tags = keywordTags(filename + " " + strings.Join(d.Columns, " ") + " " + string(head(content, 4096)))
	if d.Tags == nil {
		d.Tags = []string{}
	}
	if len(d.Tags) > maxTags {
		d.Tags = d.Tags[:maxTags]
	}
	return d, nil
}

func nameFromFile(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return "Untitled Dataset"
	}
	return title.String(base)
}

func scanCSV(content []byte) ([]string, int, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, nil
	}
	cols := make([]string, 0, len(rows[0]))
	for _, c := range rows[0] {
		cols = append(cols, strings.TrimSpace(c))
	}
	return cols, len(rows) - 1, nil
}

func scanJSON(content []byte) ([]string, int, error) {
	var rows []map[string]json.RawMessage
	if err := json.Unmarshal(content, &rows); err != nil {
		var one map[string]json.RawMessage
		if err2 := json.Unmarshal(content, &one); err2 != nil {
			return nil, 0, err
		}
		return keys(one), 1, nil
	}
	if len(rows) == 0 {
		return nil, 0, nil
	}
	return keys(rows[0]), len(rows), nil
}

func scanJSONL(content []byte) ([]string, int, error) {
	var cols []string
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if cols == nil {
			var row map[string]json.RawMessage
			if err := json.Unmarshal(line, &row); err != nil {
				return nil, 0, fmt.Errorf("line %d: %w", n+1, err)
			}
			cols = keys(row)
		}
		n++
	}
	return cols, n, sc.Err()
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func countLines(content []byte) int {
	n := 0
	for _, line := range bytes.Split(content, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			n++
		}
	}
	return n
}

func head(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
