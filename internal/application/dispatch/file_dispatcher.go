package dispatch

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/docrender/backend/internal/domain/document"
)

// FileDispatcherOptions configures the file-mode batch
type FileDispatcherOptions struct {
	// TemplatesPath is scanned recursively for *.json template files
	TemplatesPath string
	// OutputPath receives the generated PDFs
	OutputPath string
	// MaxConcurrentRenders bounds concurrent pipeline executions
	MaxConcurrentRenders int
}

// FileDispatcher renders every template file found under the templates
// root. A bad file is logged and counted, never halts the batch.
type FileDispatcher struct {
	pipeline RenderPipeline
	metrics  *Metrics
	logger   *zap.Logger
	opts     FileDispatcherOptions
}

func NewFileDispatcher(pipeline RenderPipeline, metrics *Metrics, opts FileDispatcherOptions, logger *zap.Logger) *FileDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxConcurrentRenders <= 0 {
		opts.MaxConcurrentRenders = 1
	}
	return &FileDispatcher{
		pipeline: pipeline,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
	}
}

// Run scans, renders and writes the whole batch, then logs the tally.
func (d *FileDispatcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(d.opts.OutputPath, 0o755); err != nil {
		return document.NewError(document.ErrKindIOOutput, "failed to create output directory", err)
	}
	if _, err := os.Stat(d.opts.TemplatesPath); os.IsNotExist(err) {
		d.logger.Warn("templates directory missing, creating it",
			zap.String("path", d.opts.TemplatesPath))
		if err := os.MkdirAll(d.opts.TemplatesPath, 0o755); err != nil {
			return document.NewError(document.ErrKindIOTemplate, "failed to create templates directory", err)
		}
	}

	files, err := d.scan()
	if err != nil {
		return err
	}
	d.logger.Info("file batch started",
		zap.Int("templates", len(files)),
		zap.String("templatesPath", d.opts.TemplatesPath))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.MaxConcurrentRenders)
	for _, path := range files {
		path := path
		g.Go(func() error {
			if gctx.Err() != nil {
				d.metrics.RecordFailure("")
				return nil
			}
			d.renderFile(gctx, path)
			return nil
		})
	}
	_ = g.Wait()

	d.metrics.LogSummary(d.logger)
	return nil
}

func (d *FileDispatcher) scan() ([]string, error) {
	var files []string
	err := filepath.WalkDir(d.opts.TemplatesPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(path), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, document.NewError(document.ErrKindIOTemplate, "failed to scan templates directory", err)
	}
	return files, nil
}

// renderFile is the per-file unit of work; all failures end up in the logs
// and the tally.
func (d *FileDispatcher) renderFile(ctx context.Context, path string) {
	log := d.logger.With(zap.String("file", path))

	tpl, err := d.loadTemplate(path)
	if err != nil {
		log.Error("skipping template file", zap.Error(err))
		d.metrics.RecordFailure("")
		return
	}
	log = log.With(zap.String("documentType", tpl.DocumentType))

	req := document.NewRenderRequest(*tpl)
	result, err := d.pipeline.Execute(ctx, req)
	if err != nil {
		log.Error("render failed",
			zap.String("kind", string(document.KindOf(err))),
			zap.Error(err))
		d.metrics.RecordFailure(tpl.DocumentType)
		return
	}

	name := document.OutputFileName(tpl.DocumentType, req.JobID.String())
	out := filepath.Join(d.opts.OutputPath, name)
	if err := os.WriteFile(out, result.PDFBytes, 0o644); err != nil {
		log.Error("failed to write pdf", zap.Error(err))
		d.metrics.RecordFailure(tpl.DocumentType)
		return
	}

	d.metrics.RecordSuccess(tpl.DocumentType)
	log.Info("rendered", zap.String("output", out),
		zap.Duration("elapsed", result.ElapsedTime))
}

func (d *FileDispatcher) loadTemplate(path string) (*document.DocumentTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, document.NewError(document.ErrKindIOTemplate, "failed to read template file", err)
	}
	var tpl document.DocumentTemplate
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, document.NewError(document.ErrKindIOTemplate, "failed to parse template file", err)
	}
	return &tpl, nil
}
