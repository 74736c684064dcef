package browser

import (
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/page"
	"github.com/docrender/backend/internal/domain/document"
)

// emptyHeaderFooter is what Chrome gets for the absent side when only one
// of header/footer is configured
const emptyHeaderFooter = "<span></span>"

// headerFooterMinMarginIn reserves room for a header or footer when the
// caller did not set a margin on that side (10mm).
const headerFooterMinMarginIn = 10.0 / 25.4

// printParams is the fully resolved set of Chrome PDF parameters
type printParams struct {
	paperWidth  float64
	paperHeight float64
	scale       float64
	landscape   bool

	printBackground bool

	displayHeaderFooter bool
	headerTemplate      string
	footerTemplate      string

	marginTop, marginBottom, marginLeft, marginRight             float64
	hasMarginTop, hasMarginBottom, hasMarginLeft, hasMarginRight bool
}

// buildPrintParams translates PdfOptions into Chrome's PDF parameters.
// Explicit width+height override the named format; unset margins fall
// through to browser defaults.
func buildPrintParams(opts document.PdfOptions) *printParams {
	p := &printParams{
		scale:           opts.EffectiveScale(),
		landscape:       opts.Landscape,
		printBackground: opts.EffectivePrintBackground(),
	}

	p.paperWidth, p.paperHeight = opts.FormatDimensions()
	if opts.HasExplicitSize() {
		w, wok := cssLengthInches(opts.Width)
		h, hok := cssLengthInches(opts.Height)
		if wok && hok {
			p.paperWidth, p.paperHeight = w, h
		}
	}

	if m := opts.Margins; m != nil {
		if v, ok := cssLengthInches(m.Top); ok {
			p.marginTop, p.hasMarginTop = v, true
		}
		if v, ok := cssLengthInches(m.Bottom); ok {
			p.marginBottom, p.hasMarginBottom = v, true
		}
		if v, ok := cssLengthInches(m.Left); ok {
			p.marginLeft, p.hasMarginLeft = v, true
		}
		if v, ok := cssLengthInches(m.Right); ok {
			p.marginRight, p.hasMarginRight = v, true
		}
	}

	if opts.DisplayHeaderFooter() {
		p.displayHeaderFooter = true
		p.headerTemplate = opts.HeaderTemplate
		p.footerTemplate = opts.FooterTemplate
		if p.headerTemplate == "" {
			p.headerTemplate = emptyHeaderFooter
		}
		if p.footerTemplate == "" {
			p.footerTemplate = emptyHeaderFooter
		}
		// Reserve room for the configured sides unless the caller set a
		// margin there explicitly.
		if opts.HeaderTemplate != "" && !p.hasMarginTop {
			p.marginTop, p.hasMarginTop = headerFooterMinMarginIn, true
		}
		if opts.FooterTemplate != "" && !p.hasMarginBottom {
			p.marginBottom, p.hasMarginBottom = headerFooterMinMarginIn, true
		}
	}

	return p
}

// apply chains the resolved parameters onto a PrintToPDF command
func (p *printParams) apply(cmd *page.PrintToPDFParams) *page.PrintToPDFParams {
	cmd = cmd.
		WithLandscape(p.landscape).
		WithPrintBackground(p.printBackground).
		WithScale(p.scale).
		WithPaperWidth(p.paperWidth).
		WithPaperHeight(p.paperHeight)

	if p.hasMarginTop {
		cmd = cmd.WithMarginTop(p.marginTop)
	}
	if p.hasMarginBottom {
		cmd = cmd.WithMarginBottom(p.marginBottom)
	}
	if p.hasMarginLeft {
		cmd = cmd.WithMarginLeft(p.marginLeft)
	}
	if p.hasMarginRight {
		cmd = cmd.WithMarginRight(p.marginRight)
	}
	if p.displayHeaderFooter {
		cmd = cmd.
			WithDisplayHeaderFooter(true).
			WithHeaderTemplate(p.headerTemplate).
			WithFooterTemplate(p.footerTemplate)
	}
	return cmd
}

// cssLengthInches parses a CSS length string ("10mm", "1in", "96px") into
// inches. Unitless values are treated as pixels.
func cssLengthInches(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, false
	}

	unit := ""
	num := s
	for _, u := range []string{"in", "cm", "mm", "px", "pt", "pc"} {
		if strings.HasSuffix(s, u) {
			unit = u
			num = strings.TrimSpace(strings.TrimSuffix(s, u))
			break
		}
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil || v < 0 {
		return 0, false
	}

	switch unit {
	case "in":
		return v, true
	case "cm":
		return v / 2.54, true
	case "mm":
		return v / 25.4, true
	case "pt":
		return v / 72, true
	case "pc":
		return v / 6, true
	default: // px or unitless
		return v / 96, true
	}
}
