package errors

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForUser_BasicError(t *testing.T) {
	err := New(ErrCodeFileNotFound, "file 'config.yaml' not found", nil)

	result := FormatForUser(err, false)

	assert.Contains(t, result, "file 'config.yaml' not found")
	assert.Contains(t, result, "[ERR_201_FILE_NOT_FOUND]")
}

func TestFormatForUser_WithSuggestion(t *testing.T) {
	err := New(ErrCodeEmbedderLoadFailed, "embedding server is not running", nil).
		WithSuggestion("start the local embedding server or check its address")

	result := FormatForUser(err, false)

	assert.Contains(t, result, "Suggestion:")
	assert.Contains(t, result, "local embedding server")
}

func TestFormatForUser_NoStackTraceInNormalMode(t *testing.T) {
	err := New(ErrCodeInternal, "unexpected error", nil)

	result := FormatForUser(err, false)

	assert.NotContains(t, result, "Stack trace:")
	assert.NotContains(t, result, "goroutine")
}

func TestFormatForUser_StandardError(t *testing.T) {
	err := errors.New("something went wrong")

	result := FormatForUser(err, false)

	assert.Contains(t, result, "something went wrong")
}

func TestFormatForUser_NilError(t *testing.T) {
	result := FormatForUser(nil, false)

	assert.Empty(t, result)
}

func TestFormatJSON_BasicError(t *testing.T) {
	err := New(ErrCodeFileNotFound, "file not found", nil).
		WithDetail("path", "/foo/bar.txt").
		WithSuggestion("check the file path")

	data, jsonErr := FormatJSON(err)

	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, ErrCodeFileNotFound, result["code"])
	assert.Equal(t, "file not found", result["message"])
	assert.Equal(t, string(CategoryIO), result["category"])
	assert.Equal(t, string(SeverityError), result["severity"])
	assert.Equal(t, "check the file path", result["suggestion"])

	details, ok := result["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/foo/bar.txt", details["path"])
}

func TestFormatJSON_StandardError(t *testing.T) {
	err := errors.New("generic error")

	data, jsonErr := FormatJSON(err)

	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, ErrCodeInternal, result["code"])
	assert.Equal(t, "generic error", result["message"])
}

func TestFormatJSON_NilError(t *testing.T) {
	data, err := FormatJSON(nil)

	assert.NoError(t, err)
	assert.Equal(t, "null", strings.TrimSpace(string(data)))
}

func TestFormatJSON_WithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := New(ErrCodeInternal, "operation failed", cause)

	data, jsonErr := FormatJSON(err)

	require.NoError(t, jsonErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, "underlying error", result["cause"])
}

func TestFormatForCLI_IncludesCodeAndSuggestion(t *testing.T) {
	err := New(ErrCodeIndexVersionMismatch, "index format is out of date", nil).
		WithSuggestion("run rebuild to regenerate the index")

	result := FormatForCLI(err)

	assert.Contains(t, result, "index format is out of date")
	assert.Contains(t, result, "ERR_204_INDEX_VERSION_MISMATCH")
	assert.Contains(t, result, "run rebuild to regenerate the index")
}

func TestFormatForCLI_ShortFormat(t *testing.T) {
	err := New(ErrCodeFileNotFound, "file not found", nil)

	result := FormatForCLI(err)

	lines := strings.Split(strings.TrimSpace(result), "\n")
	assert.LessOrEqual(t, len(lines), 5, "should be concise")
}

func TestFormatForLog_ReturnsSlogAttributes(t *testing.T) {
	err := New(ErrCodeParseFailed, "could not parse source", errors.New("truncated file")).
		WithDetail("source", "notes.md")

	attrs := FormatForLog(err)

	assert.Equal(t, ErrCodeParseFailed, attrs["error_code"])
	assert.Equal(t, "could not parse source", attrs["message"])
	assert.Equal(t, "truncated file", attrs["cause"])
	assert.Equal(t, "notes.md", attrs["detail_source"])
}

func TestFormatForLog_NilError(t *testing.T) {
	assert.Nil(t, FormatForLog(nil))
}

func TestFormatForLog_StandardError(t *testing.T) {
	attrs := FormatForLog(errors.New("plain failure"))

	assert.Equal(t, "plain failure", attrs["error"])
}
