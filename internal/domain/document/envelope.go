package document

import "time"

// RequestEnvelope is the correlated request consumed in queue mode. The
// broker partitions by correlation id, so there is at most one in-flight
// render per correlation id.
type RequestEnvelope struct {
	CorrelationID   string           `json:"correlationId"`
	DeviceID        string           `json:"deviceId"`
	SessionID       string           `json:"sessionId,omitempty"`
	Template        DocumentTemplate `json:"template"`
	ReturnPdfInline *bool            `json:"returnPdfInline,omitempty"`
	RequestedAt     time.Time        `json:"requestedAt"`
}

// Inline defaults to true when the field is absent
func (e *RequestEnvelope) Inline() bool {
	if e.ReturnPdfInline == nil {
		return true
	}
	return *e.ReturnPdfInline
}

// ResponseEnvelope is the reply published for every consumed request. On
// success exactly one of PdfBase64/PdfPath is populated; on failure neither
// is, and ErrorMessage carries a human-readable description.
type ResponseEnvelope struct {
	CorrelationID string    `json:"correlationId"`
	DeviceID      string    `json:"deviceId"`
	SessionID     string    `json:"sessionId,omitempty"`
	DocumentType  string    `json:"documentType"`
	Success       bool      `json:"success"`
	PdfBase64     *string   `json:"pdfBase64,omitempty"`
	PdfPath       *string   `json:"pdfPath,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	ElapsedMillis int64     `json:"elapsedTime"`
	CompletedAt   time.Time `json:"completedAt"`
}

// NewResponseEnvelope echoes the request's identity fields
func NewResponseEnvelope(req *RequestEnvelope) *ResponseEnvelope {
	return &ResponseEnvelope{
		CorrelationID: req.CorrelationID,
		DeviceID:      req.DeviceID,
		SessionID:     req.SessionID,
		DocumentType:  req.Template.DocumentType,
	}
}
