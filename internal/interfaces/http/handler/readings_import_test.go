package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	billingapp "github.com/waterbill/backend/internal/application/billing"
	"github.com/waterbill/backend/internal/infrastructure/storage"
	"github.com/waterbill/backend/internal/interfaces/http/dto"
)

type archiveFunc func(ctx context.Context, data []byte) (string, error)

func (f archiveFunc) ArchiveImport(ctx context.Context, data []byte) (string, error) {
	return f(ctx, data)
}

type mockImporter struct {
	mock.Mock
}

func (m *mockImporter) BulkImport(ctx context.Context, reqs []billingapp.RecordReadingRequest) *billingapp.BulkImportResult {
	return m.Called(ctx, reqs).Get(0).(*billingapp.BulkImportResult)
}

const importMeter = "6f1c1f0e-3c39-4c55-9a43-0d4a5e0f8a11"

func postCSV(t *testing.T, h *ReadingImportHandler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	engine := newEngine(h)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestReadingImportHandler_RawBody(t *testing.T) {
	importer := new(mockImporter)
	importer.On("BulkImport", mock.Anything, mock.MatchedBy(func(reqs []billingapp.RecordReadingRequest) bool {
		return len(reqs) == 1 && reqs[0].MeterID == uuid.MustParse(importMeter) && reqs[0].CurrentReading == 115
	})).Return(&billingapp.BulkImportResult{Succeeded: 1, Errors: []string{}})

	csv := "meter_id,current_reading\n" + importMeter + ",115\nbad,1\n"
	req := httptest.NewRequest(http.MethodPost, "/ops/readings/import", strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")

	archive := storage.NewMemoryArchive()
	w, body := postCSV(t, NewReadingImportHandler(importer, 0, archive), req)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["succeeded"])
	rejected := data["rejected"].([]any)
	require.Len(t, rejected, 1)
	assert.Equal(t, float64(3), rejected[0].(map[string]any)["line"])
	importer.AssertExpectations(t)

	key, ok := data["archive_key"].(string)
	require.True(t, ok)
	stored, ok := archive.Get(key)
	require.True(t, ok)
	assert.Equal(t, csv, string(stored))
}

func TestReadingImportHandler_Multipart(t *testing.T) {
	importer := new(mockImporter)
	importer.On("BulkImport", mock.Anything, mock.Anything).
		Return(&billingapp.BulkImportResult{Succeeded: 1, Failed: 1, Errors: []string{"Meter x: not assigned"}})

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "readings.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("meter_id,current_reading\n" + importMeter + ",10\n" + importMeter + ",20\n"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/ops/readings/import", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())

	w, body := postCSV(t, NewReadingImportHandler(importer, 0, nil), req)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["failed"])
	assert.Equal(t, []any{"Meter x: not assigned"}, data["errors"])
}

func TestReadingImportHandler_BadFile(t *testing.T) {
	importer := new(mockImporter)
	req := httptest.NewRequest(http.MethodPost, "/ops/readings/import", strings.NewReader("reading\n1\n"))
	req.Header.Set("Content-Type", "text/csv")

	w, body := postCSV(t, NewReadingImportHandler(importer, 0, nil), req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidInput, body["error"].(map[string]any)["code"])
	importer.AssertNotCalled(t, "BulkImport", mock.Anything, mock.Anything)
}

func TestReadingImportHandler_ArchiveFailureDoesNotFailImport(t *testing.T) {
	importer := new(mockImporter)
	importer.On("BulkImport", mock.Anything, mock.Anything).
		Return(&billingapp.BulkImportResult{Succeeded: 1, Errors: []string{}})
	failing := archiveFunc(func(context.Context, []byte) (string, error) {
		return "", errors.New("bucket unreachable")
	})

	req := httptest.NewRequest(http.MethodPost, "/ops/readings/import",
		strings.NewReader("meter_id,current_reading\n"+importMeter+",5\n"))
	req.Header.Set("Content-Type", "text/csv")

	w, body := postCSV(t, NewReadingImportHandler(importer, 0, failing), req)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["succeeded"])
	assert.NotContains(t, data, "archive_key")
}
