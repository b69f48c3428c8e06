// Package ocr turns document images into text with the tesseract engine.
package ocr

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"medlens/internal/common/errors"
	"medlens/internal/common/logger"
	"medlens/internal/models"
)

const maxTSVLine = 1024 * 1024

// Runner executes the engine and returns its stdout. Replaced in tests.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// Tesseract runs one engine process per image. It holds no engine state
// between calls.
type Tesseract struct {
	binary   string
	language string
	run      Runner
	logger   logger.Logger
}

type Option func(*Tesseract)

// WithRunner swaps the process runner.
func WithRunner(r Runner) Option {
	return func(t *Tesseract) { t.run = r }
}

func NewTesseract(binary, language string, log logger.Logger, opts ...Option) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	t := &Tesseract{
		binary:   binary,
		language: language,
		run:      execRunner,
		logger:   log,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Extract recognizes the text of image. Confidence is the mean of the word
// confidences, nil when no word was scored. Engine failures are returned as
// OCR_FAILED without retry.
func (t *Tesseract) Extract(ctx context.Context, image []byte, filename string) (models.OcrResult, error) {
	if len(image) == 0 {
		return models.OcrResult{}, errors.NewInvalidInputError("image is empty")
	}

	tmp, err := os.CreateTemp("", "medlens-ocr-*"+filepath.Ext(filename))
	if err != nil {
		return models.OcrResult{}, errors.NewOCRFailedError(fmt.Errorf("create temp image: %w", err))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		return models.OcrResult{}, errors.NewOCRFailedError(fmt.Errorf("write temp image: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return models.OcrResult{}, errors.NewOCRFailedError(fmt.Errorf("close temp image: %w", err))
	}

	out, err := t.run(ctx, t.binary, tmp.Name(), "stdout", "-l", t.language, "tsv")
	if err != nil {
		return models.OcrResult{}, errors.NewOCRFailedError(err)
	}

	result, err := ParseTSV(out)
	if err != nil {
		return models.OcrResult{}, errors.NewOCRFailedError(err)
	}

	fields := map[string]interface{}{
		"bytes":      len(image),
		"textLength": len(result.Text),
	}
	if result.Confidence != nil {
		fields["confidence"] = *result.Confidence
	}
	t.logger.Debug("OCR complete", fields)

	return result, nil
}

// ParseTSV rebuilds line-broken text from tesseract's tsv output and averages
// the word confidences. Lines longer than maxTSVLine fail the parse.
func ParseTSV(tsv []byte) (models.OcrResult, error) {
	var (
		lines   []string
		current []string
		lineKey string
		block   string
		sum     float64
		scored  int
	)

	flush := func() {
		if len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
			current = current[:0]
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(tsv))
	scanner.Buffer(make([]byte, 0, 64*1024), maxTSVLine)
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		cols := strings.Split(scanner.Text(), "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		word := strings.TrimSpace(strings.Join(cols[11:], "\t"))

		key := cols[1] + "." + cols[2] + "." + cols[3] + "." + cols[4]
		if key != lineKey {
			flush()
			if block != "" && cols[2] != block {
				lines = append(lines, "")
			}
			lineKey = key
			block = cols[2]
		}

		conf, err := strconv.ParseFloat(cols[10], 64)
		if err == nil && conf >= 0 && word != "" {
			sum += conf
			scored++
		}
		if word != "" {
			current = append(current, word)
		}
	}
	if err := scanner.Err(); err != nil {
		return models.OcrResult{}, fmt.Errorf("read tsv output: %w", err)
	}
	flush()

	result := models.OcrResult{Text: strings.Join(lines, "\n")}
	if scored > 0 {
		mean := sum / float64(scored)
		result.Confidence = &mean
	}
	return result, nil
}
