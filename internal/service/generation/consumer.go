package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/google/uuid"

	"github.com/pixmint/genapi/internal/genai"
	"github.com/pixmint/genapi/internal/model"
	"github.com/pixmint/genapi/internal/storage"
)

// OutputRef describes one produced output as seen by the caller:
// either a stored binary (with MIME) or an external reference.
type OutputRef struct {
	URL    string `json:"url"`
	Path   string `json:"path"`
	Bucket string `json:"bucket"`
	MIME   string `json:"mime,omitempty"`
}

// consumeStream drains the backend stream for a task. Each chunk is
// classified once: inline images are uploaded through the storage
// gateway and recorded as output rows, external references are
// recorded verbatim under the external-url bucket, text accumulates.
// The first error aborts consumption; outputs persisted before the
// failure point remain.
func (s *Service) consumeStream(ctx context.Context, taskID uuid.UUID, st genai.Stream) (string, []OutputRef, error) {
	var (
		text    strings.Builder
		outputs []OutputRef
		index   int
	)

	for {
		chunk, err := st.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return text.String(), outputs, fmt.Errorf("consume: stream failed: %w", err)
		}

		switch cls := genai.Classify(chunk); cls.Kind {
		case genai.KindInlineImage:
			ref, err := s.persistInline(ctx, taskID, index, cls)
			if err != nil {
				return text.String(), outputs, err
			}
			outputs = append(outputs, ref)
			index++

		case genai.KindExternalRef:
			ref, err := s.persistExternal(ctx, taskID, index, cls.URL)
			if err != nil {
				return text.String(), outputs, err
			}
			outputs = append(outputs, ref)
			index++

		case genai.KindText:
			text.WriteString(cls.Text)

		default:
			// Unrecognized chunk shapes are skipped, not fatal.
		}
	}

	return text.String(), outputs, nil
}

// persistInline decodes an inline image chunk, uploads it and records
// the output row.
func (s *Service) persistInline(ctx context.Context, taskID uuid.UUID, index int, cls genai.Classification) (OutputRef, error) {
	data, err := base64.StdEncoding.DecodeString(cls.Data)
	if err != nil {
		return OutputRef{}, fmt.Errorf("consume: failed to decode image data: %w", err)
	}

	path := fmt.Sprintf("tasks/%s/%d.%s", taskID, index, extFromMIME(cls.MIME))
	res, err := s.gateway.Upload(ctx, s.opts.Bucket, path, data, cls.MIME, true)
	if err != nil {
		return OutputRef{}, fmt.Errorf("consume: failed to upload output %d: %w", index, err)
	}

	size := int64(len(data))
	width, height := imageDims(data)
	mime := cls.MIME

	out := model.Output{
		TaskID:        taskID,
		Index:         index,
		StorageBucket: s.opts.Bucket,
		StoragePath:   res.Path,
		MIME:          &mime,
		Size:          &size,
		Width:         width,
		Height:        height,
	}
	if _, err := s.tasks.AddOutput(ctx, out); err != nil {
		return OutputRef{}, fmt.Errorf("consume: failed to record output %d: %w", index, err)
	}

	return OutputRef{URL: res.PublicURL, Path: res.Path, Bucket: s.opts.Bucket, MIME: mime}, nil
}

// persistExternal records an externally-hosted result URL as an output
// row without uploading anything.
func (s *Service) persistExternal(ctx context.Context, taskID uuid.UUID, index int, url string) (OutputRef, error) {
	out := model.Output{
		TaskID:        taskID,
		Index:         index,
		StorageBucket: storage.ExternalURLBucket,
		StoragePath:   url,
	}
	if _, err := s.tasks.AddOutput(ctx, out); err != nil {
		return OutputRef{}, fmt.Errorf("consume: failed to record external output %d: %w", index, err)
	}

	return OutputRef{URL: url, Path: url, Bucket: storage.ExternalURLBucket}, nil
}

// extFromMIME maps a MIME type to a file extension, defaulting to png.
func extFromMIME(mime string) string {
	switch mime {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}

// imageDims reads the dimensions from the image header; undecodable
// data simply yields no dimensions.
func imageDims(data []byte) (*int, *int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, nil
	}
	return &cfg.Width, &cfg.Height
}
