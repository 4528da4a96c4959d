package broadcast

import (
	"encoding/json"
	"testing"

	"github.com/pscheid92/routerws/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"object", `{"msg":"hi"}`, nil},
		{"array", `[1,2]`, nil},
		{"number", `42`, nil},
		{"string", `"text"`, nil},
		{"false", `false`, nil},
		{"absent", ``, domain.ErrEmptyPayload},
		{"whitespace", "\n\t ", domain.ErrEmptyPayload},
		{"null", `null`, domain.ErrEmptyPayload},
		{"empty object", `{ }`, domain.ErrEmptyPayload},
		{"empty array", `[]`, domain.ErrEmptyPayload},
		{"empty string", `""`, domain.ErrEmptyPayload},
		{"truncated", `{"msg":`, domain.ErrInvalidPayload},
		{"plain text", `hello`, domain.ErrInvalidPayload},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(json.RawMessage(tt.payload))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
