package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docrender/backend/internal/domain/document"
)

func writeTemplateFile(t *testing.T, dir, name, documentType string) {
	t.Helper()
	body := `{
		"documentType": "` + documentType + `",
		"template": {"html": "<p>{{variables.name}}</p>"},
		"variables": {"name": "Alice"}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestFileDispatcher_Batch(t *testing.T) {
	templatesDir := t.TempDir()
	outDir := t.TempDir()
	writeTemplateFile(t, templatesDir, "first.json", "a")
	writeTemplateFile(t, templatesDir, "second.json", "b")

	pipeline := &fakePipeline{result: &document.RenderResult{PDFBytes: []byte("%PDF")}}
	metrics := NewMetrics()
	d := NewFileDispatcher(pipeline, metrics, FileDispatcherOptions{
		TemplatesPath:        templatesDir,
		OutputPath:           outDir,
		MaxConcurrentRenders: 2,
	}, nil)

	require.NoError(t, d.Run(context.Background()))

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assertBatchName(t, names, "a_")
	assertBatchName(t, names, "b_")

	assert.Equal(t, int64(2), metrics.Success())
	assert.Equal(t, int64(0), metrics.Failure())
}

// assertBatchName checks for exactly one <prefix><32 hex>.pdf entry
func assertBatchName(t *testing.T, names []string, prefix string) {
	t.Helper()
	found := 0
	for _, n := range names {
		if !strings.HasPrefix(n, prefix) || !strings.HasSuffix(n, ".pdf") {
			continue
		}
		hex := strings.TrimSuffix(strings.TrimPrefix(n, prefix), ".pdf")
		assert.Len(t, hex, 32)
		assert.NotContains(t, hex, "-")
		found++
	}
	assert.Equal(t, 1, found, "expected one %s<hex>.pdf", prefix)
}

func TestFileDispatcher_ScansRecursively(t *testing.T) {
	templatesDir := t.TempDir()
	nested := filepath.Join(templatesDir, "2026", "08")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	writeTemplateFile(t, nested, "deep.json", "invoice")

	pipeline := &fakePipeline{result: &document.RenderResult{PDFBytes: []byte("%PDF")}}
	metrics := NewMetrics()
	d := NewFileDispatcher(pipeline, metrics, FileDispatcherOptions{
		TemplatesPath: templatesDir,
		OutputPath:    t.TempDir(),
	}, nil)

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, int64(1), metrics.Success())
}

func TestFileDispatcher_BadFileDoesNotHaltBatch(t *testing.T) {
	templatesDir := t.TempDir()
	writeTemplateFile(t, templatesDir, "good.json", "a")
	require.NoError(t, os.WriteFile(
		filepath.Join(templatesDir, "bad.json"), []byte("{broken"), 0o644))
	// non-json files are ignored outright
	require.NoError(t, os.WriteFile(
		filepath.Join(templatesDir, "notes.txt"), []byte("ignore me"), 0o644))

	pipeline := &fakePipeline{result: &document.RenderResult{PDFBytes: []byte("%PDF")}}
	metrics := NewMetrics()
	d := NewFileDispatcher(pipeline, metrics, FileDispatcherOptions{
		TemplatesPath: templatesDir,
		OutputPath:    t.TempDir(),
	}, nil)

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, int64(1), metrics.Success())
	assert.Equal(t, int64(1), metrics.Failure())
	assert.Equal(t, 1, pipeline.calls)
}

func TestFileDispatcher_CreatesMissingTemplatesDir(t *testing.T) {
	base := t.TempDir()
	templatesDir := filepath.Join(base, "templates")

	d := NewFileDispatcher(&fakePipeline{result: &document.RenderResult{}}, NewMetrics(),
		FileDispatcherOptions{
			TemplatesPath: templatesDir,
			OutputPath:    filepath.Join(base, "out"),
		}, nil)

	require.NoError(t, d.Run(context.Background()))

	info, err := os.Stat(templatesDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordSuccess("a")
	m.RecordSuccess("a")
	m.RecordFailure("b")
	m.RecordFailure("")

	assert.Equal(t, int64(4), m.Total())
	assert.Equal(t, int64(2), m.Success())
	assert.Equal(t, int64(2), m.Failure())
	assert.Equal(t, map[string]int64{"a": 2, "b": 1, "unknown": 1}, m.ByType())
}
