package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// RecordKind tags the closed set of ingestible record shapes. Records are
// selected into exactly one shape; anything else is reported as unrecognized
// rather than silently skipped.
type RecordKind string

const (
	// RecordChunked carries pre-chunked text in "chunks".
	RecordChunked RecordKind = "chunked"
	// RecordText carries raw text in "content_text".
	RecordText RecordKind = "text"
	// RecordHTML carries markup in "content_html".
	RecordHTML RecordKind = "html"
	// RecordUnknown has none of the recognized payload fields.
	RecordUnknown RecordKind = "unknown"
)

// Record is one scraped document as found in crawler output files.
type Record struct {
	URL         string   `json:"url"`
	Category    string   `json:"category,omitempty"`
	Subcategory string   `json:"subcategory,omitempty"`
	SubSlug     string   `json:"sub_category,omitempty"`
	Title       string   `json:"title,omitempty"`
	Breadcrumb  string   `json:"breadcrumb,omitempty"`
	Chunks      []string `json:"chunks,omitempty"`
	ContentText string   `json:"content_text,omitempty"`
	ContentHTML string   `json:"content_html,omitempty"`
}

// Slug returns the subcategory slug, accepting either crawler key.
func (r Record) Slug() string {
	if r.Subcategory != "" {
		return r.Subcategory
	}
	return r.SubSlug
}

// Kind resolves the record's shape. Priority: chunked, text, html.
func (r Record) Kind() RecordKind {
	switch {
	case len(r.Chunks) > 0:
		return RecordChunked
	case r.ContentText != "":
		return RecordText
	case r.ContentHTML != "":
		return RecordHTML
	default:
		return RecordUnknown
	}
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// Texts returns the record's text split into embedding-sized chunks.
// Pre-chunked records pass through untouched; the other shapes get the
// title prefixed and are chunked with the configured window.
func (r Record) Texts(size, overlap int) []string {
	switch r.Kind() {
	case RecordChunked:
		out := make([]string, len(r.Chunks))
		copy(out, r.Chunks)
		return out
	case RecordText:
		return Chunk(r.withTitle(r.ContentText), size, overlap)
	case RecordHTML:
		text := tagPattern.ReplaceAllString(r.ContentHTML, " ")
		text = html.UnescapeString(text)
		text = strings.Join(strings.Fields(text), " ")
		return Chunk(r.withTitle(text), size, overlap)
	default:
		return nil
	}
}

func (r Record) withTitle(body string) string {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return body
	}
	return title + "\n" + body
}

// recordContainer matches top-level wrapper objects emitted by the crawlers.
type recordContainer struct {
	Records []Record `json:"records"`
	Data    []Record `json:"data"`
	Items   []Record `json:"items"`
	Docs    []Record `json:"docs"`
}

func (c recordContainer) records() []Record {
	switch {
	case len(c.Records) > 0:
		return c.Records
	case len(c.Data) > 0:
		return c.Data
	case len(c.Items) > 0:
		return c.Items
	case len(c.Docs) > 0:
		return c.Docs
	default:
		return nil
	}
}

// ReadRecords loads records from a .json or .jsonl file, or from every such
// file inside a directory. Top-level containers (records/data/items/docs),
// bare arrays, and single objects are all accepted.
func ReadRecords(path string) ([]Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", path, err)
		}
		var all []Record
		for _, entry := range entries {
			name := strings.ToLower(entry.Name())
			if entry.IsDir() || (!strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".jsonl")) {
				continue
			}
			recs, err := ReadRecords(filepath.Join(path, entry.Name()))
			if err != nil {
				return nil, err
			}
			all = append(all, recs...)
		}
		return all, nil
	}

	if strings.HasSuffix(strings.ToLower(path), ".jsonl") {
		return readJSONL(path)
	}
	return readJSON(path)
}

func readJSON(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	data = stripBOM(data)
	return decodeAny(data)
}

func readJSONL(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var all []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		recs, err := decodeAny(stripBOM([]byte(line)))
		if err != nil {
			// Bad lines in crawler output are common; skip them.
			continue
		}
		all = append(all, recs...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return all, nil
}

// decodeAny accepts a container object, a bare array, or a single record.
func decodeAny(data []byte) ([]Record, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var recs []Record
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, fmt.Errorf("decode record array: %w", err)
		}
		return recs, nil
	}

	var container recordContainer
	if err := json.Unmarshal(data, &container); err == nil {
		if recs := container.records(); recs != nil {
			return recs, nil
		}
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return []Record{rec}, nil
}

func stripBOM(data []byte) []byte {
	return []byte(strings.TrimPrefix(string(data), "\uFEFF"))
}
