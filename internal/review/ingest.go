package review

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrMissingColumn indicates a required CSV column is absent.
	ErrMissingColumn = errors.New("missing required column")

	// ErrNoRows indicates the input contained no usable review rows.
	ErrNoRows = errors.New("no usable review rows")
)

// Drop reasons reported in IngestReport.Reasons.
const (
	DropEmptyText      = "empty_text"
	DropMissingField   = "missing_field"
	DropInvalidRating  = "invalid_rating"
	DropInvalidThumbs  = "invalid_thumbs_up"
	DropMissingRelease = "missing_release"
)

// IngestReport summarizes an ingestion run. Dropped rows are counted and
// surfaced to the caller rather than failing the run.
type IngestReport struct {
	Total    int
	Accepted int
	Dropped  int
	Reasons  map[string]int
}

func (r *IngestReport) drop(reason string) {
	r.Dropped++
	if r.Reasons == nil {
		r.Reasons = make(map[string]int)
	}
	r.Reasons[reason]++
}

// columnAliases maps the canonical field names to the header spellings seen
// in exported review data.
var columnAliases = map[string][]string{
	"id":      {"review_id", "reviewId", "id"},
	"content": {"content", "text", "review"},
	"score":   {"score", "rating"},
	"thumbs":  {"thumbsUpCount", "thumbs_up", "thumbsUp"},
	"release": {"reviewCreatedVersion", "RC_ver", "release_version", "version"},
	"created": {"at", "timestamp", "created_at"},
}

// requiredColumns must resolve to a header index for ingestion to proceed.
var requiredColumns = []string{"content", "score", "thumbs", "release"}

// IngestCSV reads review rows from r. Malformed rows (missing required
// fields, rating outside 1..5, negative thumbs-up, empty text after
// normalization) are dropped and counted in the report; only structural
// failures (unreadable CSV, missing required columns) abort the run.
func IngestCSV(r io.Reader, logger *zap.Logger) ([]Review, IngestReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, IngestReport{}, fmt.Errorf("reading CSV header: %w", err)
	}

	cols, err := resolveColumns(header)
	if err != nil {
		return nil, IngestReport{}, err
	}

	var (
		report  IngestReport
		reviews []Review
	)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A structurally broken row is a dropped row, not a fatal error.
			report.Total++
			report.drop(DropMissingField)
			continue
		}
		report.Total++

		rev, reason := parseRow(record, cols)
		if reason != "" {
			report.drop(reason)
			continue
		}
		reviews = append(reviews, rev)
		report.Accepted++
	}

	if report.Dropped > 0 {
		logger.Warn("dropped malformed review rows",
			zap.Int("dropped", report.Dropped),
			zap.Int("accepted", report.Accepted),
			zap.Any("reasons", report.Reasons))
	}
	if report.Accepted == 0 {
		return nil, report, fmt.Errorf("%w: %d rows read, all dropped", ErrNoRows, report.Total)
	}

	return reviews, report, nil
}

// resolveColumns maps canonical field names to header indices via aliases.
func resolveColumns(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}

	cols := make(map[string]int)
	for field, aliases := range columnAliases {
		for _, alias := range aliases {
			if i, ok := index[alias]; ok {
				cols[field] = i
				break
			}
		}
	}
	for _, field := range requiredColumns {
		if _, ok := cols[field]; !ok {
			return nil, fmt.Errorf("%w: %s (accepted headers: %v)", ErrMissingColumn, field, columnAliases[field])
		}
	}
	return cols, nil
}

// parseRow converts one CSV record into a Review. Returns a drop reason for
// rows that fail validation.
func parseRow(record []string, cols map[string]int) (Review, string) {
	field := func(name string) (string, bool) {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[i]), true
	}

	text, ok := field("content")
	if !ok {
		return Review{}, DropMissingField
	}
	text = NormalizeText(text)
	if text == "" {
		// Empty text would embed to an arbitrary vector and silently distort
		// clustering; reject it at the boundary instead.
		return Review{}, DropEmptyText
	}

	scoreStr, ok := field("score")
	if !ok || scoreStr == "" {
		return Review{}, DropMissingField
	}
	rating, err := strconv.Atoi(scoreStr)
	if err != nil || rating < 1 || rating > 5 {
		return Review{}, DropInvalidRating
	}

	thumbsStr, ok := field("thumbs")
	if !ok || thumbsStr == "" {
		return Review{}, DropMissingField
	}
	thumbs, err := strconv.Atoi(thumbsStr)
	if err != nil || thumbs < 0 {
		return Review{}, DropInvalidThumbs
	}

	release, ok := field("release")
	if !ok || release == "" {
		return Review{}, DropMissingRelease
	}

	rev := Review{
		Text:     text,
		Rating:   rating,
		ThumbsUp: thumbs,
		Release:  release,
	}

	if id, ok := field("id"); ok && id != "" {
		rev.ID = id
	} else {
		rev.ID = uuid.NewString()
	}
	if created, ok := field("created"); ok && created != "" {
		if ts, err := time.Parse(time.RFC3339, created); err == nil {
			rev.CreatedAt = ts
		}
	}

	return rev, ""
}
