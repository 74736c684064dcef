package template

import (
	"context"
	"strings"
	"time"

	"github.com/docrender/backend/internal/domain/document"
	"github.com/mailgun/raymond/v2"
	"go.uber.org/zap"
)

// Engine expands Handlebars templates into complete HTML documents. A fresh
// template instance is compiled per render, so per-request partials never
// leak across renders; built-in helpers are process-wide and immutable.
type Engine struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates a templating engine
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	registerBuiltinHelpers()
	return &Engine{
		logger: logger,
		now:    time.Now,
	}
}

// Render evaluates the document's HTML template, evaluates and inlines its
// CSS companion, and returns the final HTML document.
func (e *Engine) Render(ctx context.Context, doc *document.DocumentTemplate) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", document.NewError(document.ErrKindCancelled, "render cancelled before templating", err)
	}
	if doc == nil {
		return "", document.NewError(document.ErrKindTemplateParse, "document template is nil", nil)
	}

	tpl, err := raymond.Parse(doc.Template.HTML)
	if err != nil {
		return "", document.NewError(document.ErrKindTemplateParse, "failed to compile template", err)
	}
	for name, body := range doc.Template.Partials {
		tpl.RegisterPartial(name, body)
	}

	tctx := e.buildContext(doc)

	html, err := tpl.Exec(tctx)
	if err != nil {
		return "", document.NewError(document.ErrKindTemplateEval, "failed to evaluate template", err)
	}

	if doc.Template.CSS != "" {
		css, err := e.renderCSS(doc.Template.CSS, tctx)
		if err != nil {
			return "", err
		}
		html = injectStyle(html, css)
	}

	return html, nil
}

// buildContext assembles the data every template sees: the branding bag,
// the normalised variable bag, and render metadata.
func (e *Engine) buildContext(doc *document.DocumentTemplate) map[string]any {
	branding := map[string]any{
		"companyName":     doc.Branding.CompanyName,
		"logoUrl":         doc.Branding.LogoURL,
		"primaryColour":   doc.Branding.PrimaryColour,
		"secondaryColour": doc.Branding.SecondaryColour,
		"headingFont":     doc.Branding.HeadingFont,
		"bodyFont":        doc.Branding.BodyFont,
		"custom":          doc.Branding.Custom,
	}

	sources := []string{doc.Template.HTML, doc.Template.CSS}
	for _, body := range doc.Template.Partials {
		sources = append(sources, body)
	}

	return map[string]any{
		"branding":  branding,
		"variables": variablesContext(doc.Variables, pathTokens(sources...)),
		"meta": map[string]any{
			"documentType": doc.DocumentType,
			"version":      doc.Version,
			"generatedAt":  e.now().UTC().Format(time.RFC3339),
		},
	}
}

// renderCSS evaluates the CSS companion against the same context. The
// parser treats }}} as a closing delimiter, and CSS routinely ends rules
// with adjacent braces, so every }}} is rewritten to "}} }" first. This
// rewrite belongs to the CSS path only; HTML is never touched.
func (e *Engine) renderCSS(css string, tctx map[string]any) (string, error) {
	src := strings.ReplaceAll(css, "}}}", "}} }")

	tpl, err := raymond.Parse(src)
	if err != nil {
		return "", document.NewError(document.ErrKindTemplateParse, "failed to compile css", err)
	}
	out, err := tpl.Exec(tctx)
	if err != nil {
		return "", document.NewError(document.ErrKindTemplateEval, "failed to evaluate css", err)
	}
	return out, nil
}

// injectStyle inserts the style block before </head> when present,
// otherwise prepends it to the document.
func injectStyle(html, css string) string {
	if css == "" {
		return html
	}
	style := "<style>" + css + "</style>"
	if idx := headCloseIndex(html); idx >= 0 {
		return html[:idx] + style + html[idx:]
	}
	return style + html
}

// headCloseIndex finds the first case-insensitive </head>. Lowering the
// whole document would shift byte offsets when a character's lowercase
// form has a different length (e.g. U+0130), so the scan folds only the
// candidate window.
func headCloseIndex(html string) int {
	const tag = "</head>"
	for i := 0; i+len(tag) <= len(html); i++ {
		if html[i] == '<' && strings.EqualFold(html[i:i+len(tag)], tag) {
			return i
		}
	}
	return -1
}
