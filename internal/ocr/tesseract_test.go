package ocr

import (
	"bufio"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medlens/internal/common/errors"
	"medlens/internal/common/logger"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t800\t600\t-1\t\n" +
	"4\t1\t1\t1\t1\t0\t10\t10\t300\t20\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t100\t20\t96.5\tDISCHARGE\n" +
	"5\t1\t1\t1\t1\t2\t120\t10\t100\t20\t93.5\tSUMMARY\n" +
	"5\t1\t1\t1\t2\t1\t10\t40\t100\t20\t80\tMetformin\n" +
	"5\t1\t1\t1\t2\t2\t120\t40\t60\t20\t90\t500mg\n" +
	"5\t1\t2\t1\t1\t1\t10\t90\t100\t20\t-1\t \n" +
	"5\t1\t2\t1\t1\t2\t10\t90\t100\t20\t70\tAspirin\n"

func TestParseTSV(t *testing.T) {
	result, err := ParseTSV([]byte(sampleTSV))
	require.NoError(t, err)

	assert.Equal(t, "DISCHARGE SUMMARY\nMetformin 500mg\n\nAspirin", result.Text)
	require.NotNil(t, result.Confidence)
	assert.InDelta(t, 86.0, *result.Confidence, 0.001)
}

func TestParseTSV_NoScoredWords(t *testing.T) {
	tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"1\t1\t0\t0\t0\t0\t0\t0\t800\t600\t-1\t\n"

	result, err := ParseTSV([]byte(tsv))
	require.NoError(t, err)

	assert.Equal(t, "", result.Text)
	assert.Nil(t, result.Confidence)
}

func TestTesseract_Extract(t *testing.T) {
	var gotArgs []string
	runner := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		_, err := os.Stat(args[0])
		require.NoError(t, err, "temp image should exist while the engine runs")
		return []byte(sampleTSV), nil
	}

	engine := NewTesseract("tesseract", "eng", logger.NewTestLogger(t), WithRunner(runner))
	result, err := engine.Extract(context.Background(), []byte("fake-png"), "scan.png")

	require.NoError(t, err)
	assert.Contains(t, result.Text, "Metformin 500mg")
	require.Len(t, gotArgs, 6)
	assert.Equal(t, "tesseract", gotArgs[0])
	assert.Equal(t, []string{"stdout", "-l", "eng", "tsv"}, gotArgs[2:])
	assert.Equal(t, ".png", gotArgs[1][len(gotArgs[1])-4:])

	_, statErr := os.Stat(gotArgs[1])
	assert.True(t, os.IsNotExist(statErr), "temp image should be removed")
}

func TestTesseract_OversizedTSVLine(t *testing.T) {
	tsv := sampleTSV + "5\t1\t3\t1\t1\t1\t10\t90\t100\t20\t70\t" + strings.Repeat("x", maxTSVLine) + "\n"
	runner := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(tsv), nil
	}

	engine := NewTesseract("", "", logger.NewNoOpLogger(), WithRunner(runner))
	_, err := engine.Extract(context.Background(), []byte("img"), "scan.png")

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeOCRFailed))
	assert.ErrorIs(t, err, bufio.ErrTooLong)
}

func TestTesseract_EngineFailure(t *testing.T) {
	runner := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, assert.AnError
	}

	engine := NewTesseract("", "", logger.NewNoOpLogger(), WithRunner(runner))
	_, err := engine.Extract(context.Background(), []byte("img"), "")

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeOCRFailed))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestTesseract_EmptyImage(t *testing.T) {
	engine := NewTesseract("", "", logger.NewNoOpLogger())
	_, err := engine.Extract(context.Background(), nil, "")

	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}
