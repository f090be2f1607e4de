package errorx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want int
	}{
		{"rejection", NewRejection(), ValidationRejection, http.StatusBadRequest},
		{"decode", NewDecodeFailure(errors.New("bad header")), DecodeFailure, http.StatusBadRequest},
		{"unavailable", NewModelUnavailable("model not loaded"), ModelUnavailable, http.StatusServiceUnavailable},
		{"inference", NewInferenceFailure(errors.New("shape mismatch")), InferenceFailure, http.StatusInternalServerError},
		{"deadline", context.DeadlineExceeded, Timeout, http.StatusGatewayTimeout},
		{"wrapped", fmt.Errorf("item 2: %w", NewDecodeFailure(nil)), DecodeFailure, http.StatusBadRequest},
		{"plain", errors.New("boom"), Undefined_Err, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, CodeOf(tt.err))
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestFromContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, InferenceFailure, CodeOf(FromContext(ctx.Err())))
	assert.Equal(t, Timeout, CodeOf(FromContext(context.DeadlineExceeded)))
	assert.True(t, errors.Is(FromContext(context.DeadlineExceeded), context.DeadlineExceeded))
}

func TestRejectionHidesCause(t *testing.T) {
	err := NewRejection()
	assert.True(t, IsRejection(err))
	assert.Equal(t, RejectionMessage, err.Error())
	assert.False(t, IsRejection(NewModelUnavailable("x")))
}
