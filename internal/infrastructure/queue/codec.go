package queue

import (
	"encoding/json"

	"github.com/docrender/backend/internal/domain/document"
)

// DecodeRequest parses a request envelope off the wire. A missing
// correlation id makes the message undeliverable, so it is rejected here
// rather than rendered anonymously.
func DecodeRequest(data []byte) (*document.RequestEnvelope, error) {
	var env document.RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, document.NewError(document.ErrKindIOTemplate,
			"malformed request envelope", err)
	}
	if env.CorrelationID == "" {
		return nil, document.NewError(document.ErrKindIOTemplate,
			"request envelope has no correlationId", nil)
	}
	return &env, nil
}

// EncodeResponse serialises a reply envelope
func EncodeResponse(env *document.ResponseEnvelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, document.NewError(document.ErrKindIOOutput,
			"failed to encode response envelope", err)
	}
	return data, nil
}
