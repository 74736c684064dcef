package document

import (
	"strings"
)

// DocumentTemplate describes a complete render job: the template text, the
// branding bag, the free-form variable bag and the paper settings.
type DocumentTemplate struct {
	DocumentType string          `json:"documentType"`
	Version      string          `json:"version"`
	Branding     Branding        `json:"branding"`
	Template     TemplateContent `json:"template"`
	Variables    *Map            `json:"variables"`
	PDF          PdfOptions      `json:"pdf"`
}

// Branding carries tenant identity applied to every document
type Branding struct {
	CompanyName     string            `json:"companyName"`
	LogoURL         string            `json:"logoUrl,omitempty"`
	PrimaryColour   string            `json:"primaryColour,omitempty"`
	SecondaryColour string            `json:"secondaryColour,omitempty"`
	HeadingFont     string            `json:"headingFont,omitempty"`
	BodyFont        string            `json:"bodyFont,omitempty"`
	Custom          map[string]string `json:"custom,omitempty"`
}

// TemplateContent holds the Handlebars HTML body, its optional CSS companion
// and named partials. HtmlPath/CssPath are file references resolved by an
// external collaborator; once resolved, the inline fields are authoritative.
type TemplateContent struct {
	HTML     string            `json:"html"`
	CSS      string            `json:"css,omitempty"`
	HTMLPath string            `json:"htmlPath,omitempty"`
	CSSPath  string            `json:"cssPath,omitempty"`
	Partials map[string]string `json:"partials,omitempty"`
}

// Margins are per-side CSS-unit strings; empty means browser default
type Margins struct {
	Top    string `json:"top,omitempty"`
	Bottom string `json:"bottom,omitempty"`
	Left   string `json:"left,omitempty"`
	Right  string `json:"right,omitempty"`
}

// PdfOptions controls the paper geometry of the generated PDF
type PdfOptions struct {
	Format          string   `json:"format,omitempty"`
	Width           string   `json:"width,omitempty"`
	Height          string   `json:"height,omitempty"`
	Landscape       bool     `json:"landscape,omitempty"`
	PrintBackground *bool    `json:"printBackground,omitempty"`
	Scale           float64  `json:"scale,omitempty"`
	Margins         *Margins `json:"margins,omitempty"`
	HeaderTemplate  string   `json:"headerTemplate,omitempty"`
	FooterTemplate  string   `json:"footerTemplate,omitempty"`
}

const (
	DefaultFormat = "A4"
	MinScale      = 0.1
	MaxScale      = 2.0
)

// knownFormats maps the recognised named paper sizes to width/height inches
var knownFormats = map[string][2]float64{
	"A2":      {16.54, 23.39},
	"A3":      {11.69, 16.54},
	"A4":      {8.27, 11.69},
	"LETTER":  {8.5, 11},
	"LEGAL":   {8.5, 14},
	"TABLOID": {11, 17},
}

// NormalizedFormat resolves the named paper size case-insensitively,
// falling back to A4 for anything unrecognised.
func (o PdfOptions) NormalizedFormat() string {
	name := strings.ToUpper(strings.TrimSpace(o.Format))
	if _, ok := knownFormats[name]; ok {
		return name
	}
	return DefaultFormat
}

// FormatDimensions returns the paper size in inches for the resolved format
func (o PdfOptions) FormatDimensions() (width, height float64) {
	d := knownFormats[o.NormalizedFormat()]
	return d[0], d[1]
}

// HasExplicitSize reports whether width and height override the format
func (o PdfOptions) HasExplicitSize() bool {
	return o.Width != "" && o.Height != ""
}

// EffectiveScale clamps scale into [0.1, 2.0], defaulting to 1.0
func (o PdfOptions) EffectiveScale() float64 {
	if o.Scale == 0 {
		return 1.0
	}
	if o.Scale < MinScale {
		return MinScale
	}
	if o.Scale > MaxScale {
		return MaxScale
	}
	return o.Scale
}

// EffectivePrintBackground defaults to true when unset
func (o PdfOptions) EffectivePrintBackground() bool {
	if o.PrintBackground == nil {
		return true
	}
	return *o.PrintBackground
}

// DisplayHeaderFooter is enabled by the presence of either template
func (o PdfOptions) DisplayHeaderFooter() bool {
	return o.HeaderTemplate != "" || o.FooterTemplate != ""
}
