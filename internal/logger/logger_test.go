package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"
)

func TestSlogLoggerWritesModuleAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelDebug, time.UTC).Module("migration").Module("certificates")

	log.With(String("kind", "certificates")).Info("record migrated", Int64("destination_id", 42))

	out := buf.String()
	assert.Contains(t, out, "module=migration.certificates")
	assert.Contains(t, out, "kind=certificates")
	assert.Contains(t, out, "destination_id=42")
	assert.Contains(t, out, `msg="record migrated"`)
}

func TestSlogLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelWarn, time.UTC)

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestTraceLevelRenderedAsTrace(t *testing.T) {
	var buf bytes.Buffer
	NewSlogLogger(&buf, LogLevelTrace, time.UTC).Trace("sql query")
	assert.Contains(t, buf.String(), "level=TRACE")
}

func TestWithContextAddsTraceID(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo, time.UTC)
	ctx := WithTraceID(context.Background(), "run-123")

	log.WithContext(ctx).Info("started")
	log.WithContext(context.Background()).Info("no trace")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "trace_id=run-123")
	assert.NotContains(t, lines[1], "trace_id")
}

func TestSensitiveFieldsRedacted(t *testing.T) {
	var buf bytes.Buffer
	NewSlogLogger(&buf, LogLevelInfo, time.UTC).Info("connecting",
		String("source_dsn", "root:hunter2@tcp(db:3306)/legacy"),
		String("driver", "mysql"))

	assert.NotContains(t, buf.String(), "hunter2")
	assert.Contains(t, buf.String(), "driver=mysql")
}

func TestRedactSensitiveData(t *testing.T) {
	got := RedactSensitiveData("dial root:hunter2@tcp(db:3306)/legacy")
	assert.Equal(t, "dial root:[REDACTED]@tcp(db:3306)/legacy", got)

	got = RedactSensitiveData("INSERT INTO users (password) VALUES ('$2a$10$abcdefghijklmnopqrstuuM7zC2hYx5hN1tq1cP5r8vYlZkQ5uY2W')")
	assert.NotContains(t, got, "$2a$10$")
}

func TestCentralLoggerFileOutput(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	cfg := &LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: true, Level: "info", Writer: &console},
		FileOutput:   &FileOutput{Enabled: true, Path: filepath.Join(dir, "run.log"), Level: "debug"},
		ModuleOutputs: map[string]ModuleOutput{
			"sql": {Enabled: true, FilePath: filepath.Join(dir, "sql.log"), Level: "trace"},
		},
	}

	cl, err := NewCentralLogger(cfg)
	require.NoError(t, err)

	cl.Module("runner").Debug("debug only in file", Int("workers", 4))
	cl.Module("runner").Info("both outputs")
	cl.Module("sql").Trace("select 1")
	require.NoError(t, cl.Close())

	main, err := os.ReadFile(filepath.Join(dir, "run.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(main)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "runner", first["module"])
	assert.EqualValues(t, 4, first["workers"])

	sqlLog, err := os.ReadFile(filepath.Join(dir, "sql.log"))
	require.NoError(t, err)
	assert.Contains(t, string(sqlLog), "select 1")

	assert.Contains(t, console.String(), "both outputs")
	assert.NotContains(t, console.String(), "debug only in file")
	assert.NotContains(t, console.String(), "select 1")
}

func TestCentralLoggerRejectsBadTimezone(t *testing.T) {
	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)
}

func TestGormAdapterSilentMode(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewGormLoggerAdapter(NewSlogLogger(&buf, LogLevelTrace, time.UTC), 0)

	silent := adapter.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)
	assert.Empty(t, buf.String())

	adapter.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) { return "SELECT 2", 1 }, nil)
	assert.Contains(t, buf.String(), "SELECT 2")
}

func TestGormAdapterSlowQuery(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewGormLoggerAdapter(NewSlogLogger(&buf, LogLevelWarn, time.UTC), 10*time.Millisecond)

	adapter.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) { return "SELECT * FROM certificates", 0 }, nil)
	assert.Contains(t, buf.String(), "slow query")
}

func TestBufferedFileWriterFlushesOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	w, err := NewBufferedFileWriter(path, WithBufferSize(64*1024), WithFlushInterval(0))
	require.NoError(t, err)
	assert.Equal(t, path, w.FilePath())

	_, err = w.Write([]byte("first line\n"))
	require.NoError(t, err)

	// nothing reaches the file before a flush with a large buffer and no flusher
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, w.Close())
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first line\n", string(data))
}
