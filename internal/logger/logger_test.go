package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "debug", Format: "json", Output: &buf, ServiceName: "petmatch-test"})

	l.WithField(FieldAnimalID, "abc").Info("registered")

	line := decodeLine(t, &buf)
	assert.Equal(t, "registered", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "petmatch-test", line["service"])
	assert.Equal(t, "abc", line[FieldAnimalID])
	assert.Contains(t, line, "timestamp")
}

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Level: "info", Output: &buf})

	ctx := base.WithContext(context.Background())
	ctx = SetRequestID(ctx, "req-1")
	ctx = SetOperation(ctx, "search")

	CtxInfo(ctx, "searching %d records", 3)

	line := decodeLine(t, &buf)
	assert.Equal(t, "req-1", line[FieldRequestID])
	assert.Equal(t, "search", line[FieldOperation])
	assert.Equal(t, "searching 3 records", line["message"])
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "search", GetFields(ctx)[FieldOperation])
}

func TestEntryMetricFields(t *testing.T) {
	var buf bytes.Buffer
	ctx := New(Options{Level: "info", Output: &buf}).WithContext(context.Background())

	With(Fields{FieldSearchStatus: "lost"}).WithCount(4).WithDuration(1500 * time.Millisecond).WithStatus("ok").Info(ctx, "done")

	line := decodeLine(t, &buf)
	assert.EqualValues(t, 4, line[FieldCount])
	assert.EqualValues(t, 1500, line[FieldDurationMs])
	assert.Equal(t, "ok", line[FieldStatus])
	assert.Equal(t, "lost", line[FieldSearchStatus])
}

func TestEntryWithDoesNotMutate(t *testing.T) {
	base := With(Fields{"a": 1})
	derived := base.With(Fields{"b": 2})

	assert.Len(t, base.fields, 1)
	assert.Len(t, derived.fields, 2)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Output: &buf})

	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.NotZero(t, buf.Len())
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_MAX_SIZE", "not-a-number")
	t.Setenv("LOG_COMPRESS", "false")

	o := OptionsFromEnv()
	assert.Equal(t, "debug", o.Level)
	assert.Equal(t, 100, o.MaxSizeMB)
	assert.False(t, o.Compress)
	assert.Equal(t, "petmatch", o.ServiceName)
}
