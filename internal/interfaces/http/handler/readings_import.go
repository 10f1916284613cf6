package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	billingapp "github.com/waterbill/backend/internal/application/billing"
	csvimport "github.com/waterbill/backend/internal/infrastructure/import"
	"github.com/waterbill/backend/internal/interfaces/http/dto"
)

// MaxImportBytes bounds an uploaded reading file
const MaxImportBytes = 5 << 20

// BulkReadingImporter records a batch of readings
type BulkReadingImporter interface {
	BulkImport(ctx context.Context, reqs []billingapp.RecordReadingRequest) *billingapp.BulkImportResult
}

// ImportArchive keeps a copy of every accepted reading file
type ImportArchive interface {
	ArchiveImport(ctx context.Context, data []byte) (string, error)
}

// ReadingImportHandler accepts CSV files of meter readings
type ReadingImportHandler struct {
	BaseHandler
	importer BulkReadingImporter
	maxRows  int
	archive  ImportArchive
}

// NewReadingImportHandler creates a new ReadingImportHandler.
// archive may be nil, in which case uploaded files are not kept.
func NewReadingImportHandler(importer BulkReadingImporter, maxRows int, archive ImportArchive) *ReadingImportHandler {
	return &ReadingImportHandler{importer: importer, maxRows: maxRows, archive: archive}
}

// ImportResponse reports a reading import. Rejected holds rows that never
// reached the service; Failed counts rows the service refused.
type ImportResponse struct {
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
	Rejected  []csvimport.RowError `json:"rejected"`
	Errors    []string             `json:"errors"`
	// ArchiveKey locates the stored copy of the file, when archiving succeeded
	ArchiveKey string `json:"archive_key,omitempty"`
}

// ImportReadings handles POST /ops/readings/import.
// The file is read from the "file" form field, or from the raw body otherwise.
func (h *ReadingImportHandler) ImportReadings(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxImportBytes)

	var body io.Reader = c.Request.Body
	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, "Missing file field")
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, "Cannot open uploaded file")
			return
		}
		defer file.Close()
		body = file
	}

	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeBadRequest, "Import file is too large")
			return
		}
		h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, "Cannot read import file")
		return
	}

	rows, rejected, err := csvimport.ParseReadings(bytes.NewReader(data), h.maxRows)
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, err.Error())
		return
	}

	reqs := make([]billingapp.RecordReadingRequest, len(rows))
	for i, row := range rows {
		reqs[i] = billingapp.RecordReadingRequest{
			MeterID:        row.MeterID,
			CurrentReading: row.CurrentReading,
			ReadingDate:    row.ReadingDate,
			ImageURL:       row.ImageURL,
			Notes:          row.Notes,
		}
	}

	resp := ImportResponse{Rejected: rejected, Errors: []string{}}
	if h.archive != nil {
		// A lost archive copy does not fail the import; the request log carries the error.
		key, err := h.archive.ArchiveImport(c.Request.Context(), data)
		if err != nil {
			_ = c.Error(fmt.Errorf("archive reading file: %w", err))
		} else {
			resp.ArchiveKey = key
		}
	}
	if resp.Rejected == nil {
		resp.Rejected = []csvimport.RowError{}
	}
	if len(reqs) > 0 {
		result := h.importer.BulkImport(c.Request.Context(), reqs)
		resp.Succeeded = result.Succeeded
		resp.Failed = result.Failed
		resp.Errors = result.Errors
	}
	h.Success(c, resp)
}

// RegisterRoutes implements router.RouteRegistrar
func (h *ReadingImportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/ops/readings/import", h.ImportReadings)
}
