package broadcast

import (
	"bytes"
	"encoding/json"

	"github.com/pscheid92/routerws/internal/domain"
)

var emptyPayloads = [][]byte{
	[]byte("null"),
	[]byte("{}"),
	[]byte("[]"),
	[]byte(`""`),
}

// ValidatePayload rejects absent, empty and malformed payloads.
func ValidatePayload(payload json.RawMessage) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return domain.ErrEmptyPayload
	}
	if !json.Valid(trimmed) {
		return domain.ErrInvalidPayload
	}

	compact := new(bytes.Buffer)
	if err := json.Compact(compact, trimmed); err != nil {
		return domain.ErrInvalidPayload
	}
	for _, empty := range emptyPayloads {
		if bytes.Equal(compact.Bytes(), empty) {
			return domain.ErrEmptyPayload
		}
	}
	return nil
}
