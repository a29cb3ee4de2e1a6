package parser

import (
	"errors"
	"strings"

	"document-qa/internal/models"
)

// Span is a half-open rune range [Start, End) of the segmented text.
type Span struct {
	Start int
	End   int
}

// Segment splits text into chunks of at most maxChars runes, consecutive chunks
// sharing up to overlap runes. Cuts prefer the delimiters in models.Delimiters.
func Segment(text string, maxChars, overlap int) ([]string, error) {
	runes := []rune(text)
	spans, err := segmentRunes(runes, maxChars, overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]string, len(spans))
	for i, s := range spans {
		chunks[i] = string(runes[s.Start:s.End])
	}
	return chunks, nil
}

// SegmentSpans returns the rune offsets Segment would cut text at.
func SegmentSpans(text string, maxChars, overlap int) ([]Span, error) {
	return segmentRunes([]rune(text), maxChars, overlap)
}

// ValidateChunking checks segmentation parameters without touching any text.
func ValidateChunking(maxChars, overlap int) error {
	if maxChars <= 0 {
		return models.InvalidArgument("max chars must be positive, got %d", maxChars)
	}
	if overlap < 0 || overlap >= maxChars {
		return models.InvalidArgument("overlap must be in [0, %d), got %d", maxChars, overlap)
	}
	return nil
}

func segmentRunes(text []rune, maxChars, overlap int) ([]Span, error) {
	if err := ValidateChunking(maxChars, overlap); err != nil {
		return nil, err
	}

	if len(text) <= maxChars {
		return []Span{{Start: 0, End: len(text)}}, nil
	}

	var spans []Span
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end >= len(text) {
			spans = append(spans, Span{Start: start, End: len(text)})
			break
		}

		splitPos := end
		for _, delim := range models.Delimiters {
			if pos := lastIndexRune(text, delim, start, end); pos > start {
				splitPos = pos + 1
				break
			}
		}
		spans = append(spans, Span{Start: start, End: splitPos})

		// overlap is dropped when it would stall the window
		if next := splitPos - overlap; next > start {
			start = next
		} else {
			start = splitPos
		}
	}
	return spans, nil
}

// lastIndexRune finds r in text[from:to], returning -1 when absent.
func lastIndexRune(text []rune, r rune, from, to int) int {
	for i := to - 1; i >= from; i-- {
		if text[i] == r {
			return i
		}
	}
	return -1
}

// BuildChunks segments every page in order and returns chunks without vectors.
func BuildChunks(sourceID string, pages []models.Page, maxChars, overlap int) ([]models.Chunk, error) {
	if len(pages) == 0 {
		return nil, &models.ExtractionError{Source: sourceID, Err: models.ErrNoText}
	}

	var chunks []models.Chunk
	for _, page := range pages {
		pageChunks, err := getChunks(sourceID, page, maxChars, overlap)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, pageChunks...)
	}
	return chunks, nil
}

// get chunks from page content and page number
func getChunks(sourceID string, page models.Page, maxChars, overlap int) ([]models.Chunk, error) {
	runes := []rune(page.Text)
	spans, err := segmentRunes(runes, maxChars, overlap)
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for _, s := range spans {
		text := string(runes[s.Start:s.End])
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			SourceID:   sourceID,
			PageNumber: page.Number,
			ChunkID:    len(chunks) + 1,
			Start:      s.Start,
			End:        s.End,
			Text:       text,
		})
	}
	return chunks, nil
}

// ProcessDocument extracts the pages of filePath and turns them into chunks.
func ProcessDocument(extractor Extractor, filePath, sourceID string, maxChars, overlap int) ([]models.Chunk, error) {
	pages, err := extractor.ExtractPages(filePath)
	if err != nil {
		var extractErr *models.ExtractionError
		if errors.As(err, &extractErr) {
			return nil, err
		}
		return nil, &models.ExtractionError{Source: sourceID, Err: err}
	}
	return BuildChunks(sourceID, pages, maxChars, overlap)
}
