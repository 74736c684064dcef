// Package render orchestrates a single document render: templating first,
// then PDF generation on a pooled browser.
package render

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/docrender/backend/internal/domain/document"
)

// TemplateEngine turns a document template into final HTML
type TemplateEngine interface {
	Render(ctx context.Context, doc *document.DocumentTemplate) (string, error)
}

// PDFRenderer prints HTML to PDF bytes
type PDFRenderer interface {
	RenderPDF(ctx context.Context, html string, opts document.PdfOptions) ([]byte, error)
}

// Pipeline chains the template engine and the PDF renderer. It owns no
// state of its own; concurrency bounds live with the callers and the pool.
type Pipeline struct {
	engine   TemplateEngine
	renderer PDFRenderer
	logger   *zap.Logger
}

func NewPipeline(engine TemplateEngine, renderer PDFRenderer, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		engine:   engine,
		renderer: renderer,
		logger:   logger,
	}
}

// Execute renders one request end to end. Errors from either stage are
// returned unchanged so callers can branch on the error kind.
func (p *Pipeline) Execute(ctx context.Context, req *document.RenderRequest) (*document.RenderResult, error) {
	start := time.Now()

	log := p.logger.With(
		zap.String("jobId", req.JobID.String()),
		zap.String("documentType", req.Template.DocumentType),
	)
	log.Debug("render started")

	html, err := p.engine.Render(ctx, &req.Template)
	if err != nil {
		log.Warn("templating failed",
			zap.String("kind", string(document.KindOf(err))),
			zap.Error(err))
		return nil, err
	}

	pdf, err := p.renderer.RenderPDF(ctx, html, req.Template.PDF)
	if err != nil {
		log.Warn("pdf generation failed",
			zap.String("kind", string(document.KindOf(err))),
			zap.Error(err))
		return nil, err
	}

	elapsed := time.Since(start)
	log.Info("render completed",
		zap.Int("pdfBytes", len(pdf)),
		zap.Duration("elapsed", elapsed))

	return &document.RenderResult{
		JobID:        req.JobID,
		DocumentType: req.Template.DocumentType,
		PDFBytes:     pdf,
		ElapsedTime:  elapsed,
	}, nil
}
