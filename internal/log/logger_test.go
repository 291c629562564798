// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Configure is once-per-process, so all logger assertions share one buffer.
var logBuf bytes.Buffer

func TestLogger(t *testing.T) {
	Configure(Config{Level: "debug", Output: &logBuf, Service: "wagate-test"})
	// A second Configure must not replace the writer.
	Configure(Config{Output: bytes.NewBuffer(nil), Service: "other"})

	t.Run("component field", func(t *testing.T) {
		logBuf.Reset()
		l := WithComponent("lifecycle")
		l.Info().Msg("hello")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(logBuf.Bytes(), &entry))
		assert.Equal(t, "wagate-test", entry["service"])
		assert.Equal(t, "lifecycle", entry["component"])
		assert.Equal(t, "hello", entry["message"])
	})

	t.Run("context enrichment", func(t *testing.T) {
		logBuf.Reset()
		ctx := ContextWithRequestID(context.Background(), "req-9")
		ctx = ContextWithUserID(ctx, "51999888777")
		l := WithComponentFromContext(ctx, "api")
		l.Info().Msg("enriched")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(logBuf.Bytes(), &entry))
		assert.Equal(t, "req-9", entry["request_id"])
		assert.Equal(t, "51999888777", entry["user_id"])
	})
}

func TestContextCorrelation(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithUserID(ctx, "51999888777")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "51999888777", UserIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
	assert.Empty(t, UserIDFromContext(nil)) //nolint:staticcheck // nil ctx tolerated
}
