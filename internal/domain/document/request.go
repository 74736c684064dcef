package document

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RenderRequest is a single unit of work for the render pipeline
type RenderRequest struct {
	JobID     uuid.UUID        `json:"jobId"`
	Template  DocumentTemplate `json:"template"`
	CreatedAt time.Time        `json:"createdAt"`
}

// NewRenderRequest builds a request, generating the job id when absent
func NewRenderRequest(tpl DocumentTemplate) *RenderRequest {
	return &RenderRequest{
		JobID:     uuid.New(),
		Template:  tpl,
		CreatedAt: time.Now().UTC(),
	}
}

// RenderResult is the write-once outcome of a successful render
type RenderResult struct {
	JobID        uuid.UUID     `json:"jobId"`
	DocumentType string        `json:"documentType"`
	PDFBytes     []byte        `json:"-"`
	ElapsedTime  time.Duration `json:"elapsedTime"`
}

// OutputFileName is the canonical output naming convention:
// <documentType>_<id-without-dashes>.pdf
func OutputFileName(documentType, id string) string {
	hex := strings.ReplaceAll(id, "-", "")
	return documentType + "_" + hex + ".pdf"
}
