// Package export hands a finished record collection to downstream storage.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/crawler"
)

// ContentType of exported record documents.
const ContentType = "application/json; charset=utf-8"

// ObjectWriter stores a document under path and returns its URI.
type ObjectWriter interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

// Records copies every stored record to w as one JSON array.
func Records(ctx context.Context, reader crawler.RecordReader, w ObjectWriter, path string, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	records, err := reader.Records(ctx)
	if err != nil {
		return "", fmt.Errorf("read records: %w", err)
	}
	if records == nil {
		records = []crawler.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return "", fmt.Errorf("encode records: %w", err)
	}
	uri, err := w.PutObject(ctx, path, ContentType, &buf)
	if err != nil {
		return "", fmt.Errorf("upload records: %w", err)
	}
	logger.Info("records exported", zap.String("uri", uri), zap.Int("records", len(records)))
	return uri, nil
}
