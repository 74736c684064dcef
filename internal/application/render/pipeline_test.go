package render

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docrender/backend/internal/domain/document"
)

type stubEngine struct {
	html string
	err  error
	got  *document.DocumentTemplate
}

func (s *stubEngine) Render(_ context.Context, doc *document.DocumentTemplate) (string, error) {
	s.got = doc
	return s.html, s.err
}

type stubRenderer struct {
	pdf     []byte
	err     error
	gotHTML string
	gotOpts document.PdfOptions
}

func (s *stubRenderer) RenderPDF(_ context.Context, html string, opts document.PdfOptions) ([]byte, error) {
	s.gotHTML = html
	s.gotOpts = opts
	return s.pdf, s.err
}

func testRequest() *document.RenderRequest {
	return &document.RenderRequest{
		JobID: uuid.MustParse("0d9bd2eb-7e55-42a6-a6e6-4a33e7a73c2f"),
		Template: document.DocumentTemplate{
			DocumentType: "invoice",
			Template:     document.TemplateContent{HTML: "<p>{{variables.name}}</p>"},
			PDF:          document.PdfOptions{Format: "Letter", Landscape: true},
		},
	}
}

func TestPipeline_Execute(t *testing.T) {
	engine := &stubEngine{html: "<p>Alice</p>"}
	renderer := &stubRenderer{pdf: []byte("%PDF-1.7 fake")}
	p := NewPipeline(engine, renderer, nil)

	req := testRequest()
	result, err := p.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, req.JobID, result.JobID)
	assert.Equal(t, "invoice", result.DocumentType)
	assert.Equal(t, []byte("%PDF-1.7 fake"), result.PDFBytes)
	assert.GreaterOrEqual(t, result.ElapsedTime.Nanoseconds(), int64(0))

	// stages see the template and each other's output
	assert.Same(t, &req.Template, engine.got)
	assert.Equal(t, "<p>Alice</p>", renderer.gotHTML)
	assert.Equal(t, "Letter", renderer.gotOpts.Format)
	assert.True(t, renderer.gotOpts.Landscape)
}

func TestPipeline_EngineErrorShortCircuits(t *testing.T) {
	cause := document.NewError(document.ErrKindTemplateParse, "bad template", nil)
	engine := &stubEngine{err: cause}
	renderer := &stubRenderer{pdf: []byte("unreachable")}
	p := NewPipeline(engine, renderer, nil)

	result, err := p.Execute(context.Background(), testRequest())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, document.ErrKindTemplateParse, document.KindOf(err))
	assert.Empty(t, renderer.gotHTML)
}

func TestPipeline_RendererErrorPropagates(t *testing.T) {
	engine := &stubEngine{html: "<p>x</p>"}
	cause := document.NewError(document.ErrKindPoolTimeout, "no capacity", nil)
	renderer := &stubRenderer{err: cause}
	p := NewPipeline(engine, renderer, nil)

	result, err := p.Execute(context.Background(), testRequest())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, document.ErrKindPoolTimeout, document.KindOf(err))
}
