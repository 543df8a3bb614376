package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxoffice/pkg/requestcontext"
)

func TestLogAudit(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := requestcontext.WithRequestID(context.Background(), "req-9")

	LogAudit(ctx, logger, slog.LevelWarn, EventBlacklistDenied, "client", "ip:198.51.100.0")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, EventBlacklistDenied, line["msg"])
	assert.Equal(t, EventBlacklistDenied, line["event"])
	assert.Equal(t, "audit", line["log_type"])
	assert.Equal(t, "req-9", line["request_id"])
	assert.Equal(t, "ip:198.51.100.0", line["client"])
}

func TestLogAudit_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		LogAudit(context.Background(), nil, slog.LevelInfo, EventWhitelistBypass)
	})
}
