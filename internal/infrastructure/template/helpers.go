package template

import (
	"strings"
	"sync"

	"github.com/mailgun/raymond/v2"
)

var registerHelpersOnce sync.Once

// registerBuiltinHelpers installs the process-wide helper set. Helpers are
// immutable after startup; raymond panics on duplicate registration, so
// this must run exactly once.
func registerBuiltinHelpers() {
	registerHelpersOnce.Do(func() {
		// the stock each iterates Go maps in random order; variable
		// mappings must iterate in insertion order
		raymond.RemoveHelper("each")
		raymond.RegisterHelper("each", orderedEachHelper)

		raymond.RegisterHelper("upper", upperHelper)
		raymond.RegisterHelper("lower", lowerHelper)
		raymond.RegisterHelper("formatDate", formatDateHelper)
		raymond.RegisterHelper("currency", currencyHelper)
		raymond.RegisterHelper("ifEquals", ifEqualsHelper)
		raymond.RegisterHelper("qrCode", qrCodeHelper)
		raymond.RegisterHelper("barCode", barCodeHelper)
	})
}

// arg returns the i-th helper argument as a string, or fallback when the
// argument is absent or nil.
func arg(args []interface{}, i int, fallback string) string {
	if i >= len(args) || args[i] == nil {
		return fallback
	}
	return raymond.Str(args[i])
}

func upperHelper(v interface{}) string {
	return strings.ToUpper(raymond.Str(v))
}

func lowerHelper(v interface{}) string {
	return strings.ToLower(raymond.Str(v))
}

// formatDateHelper parses the value as an RFC 3339 or common date and
// formats it with a .NET-style custom pattern. Unparseable input renders
// as an empty string rather than failing the document.
func formatDateHelper(args ...interface{}) string {
	raw := arg(args, 0, "")
	pattern := arg(args, 1, "d")

	t, ok := parseDate(raw)
	if !ok {
		return ""
	}
	return t.Format(translatePattern(pattern))
}

// currencyHelper parses the value as a decimal and formats it for the given
// culture (default en-GB). Unknown cultures silently fall back to en-GB;
// unparseable amounts render as an empty string.
func currencyHelper(args ...interface{}) string {
	raw := arg(args, 0, "")
	culture := arg(args, 1, "en-GB")
	return formatCurrency(raw, culture)
}

// ifEqualsHelper renders the main block when the two arguments compare
// equal as strings, otherwise the inverse block.
func ifEqualsHelper(a, b interface{}, options *raymond.Options) string {
	if raymond.Str(a) == raymond.Str(b) {
		return options.Fn()
	}
	return options.Inverse()
}

// qrCodeHelper emits an inline SVG QR code. The output is raw SVG and must
// not be HTML-escaped.
func qrCodeHelper(args ...interface{}) raymond.SafeString {
	value := arg(args, 0, "")
	dark := arg(args, 1, "#000000")
	light := arg(args, 2, "transparent")

	svg, err := qrCodeSVG(value, dark, light)
	if err != nil {
		return ""
	}
	return raymond.SafeString(svg)
}

// barCodeHelper emits an inline SVG Code-128 barcode
func barCodeHelper(args ...interface{}) raymond.SafeString {
	value := arg(args, 0, "")
	height := parseIntOr(arg(args, 1, ""), 60)
	showText := strings.EqualFold(arg(args, 2, ""), "true")
	dark := arg(args, 3, "#000000")

	svg, err := barCodeSVG(value, height, showText, dark)
	if err != nil {
		return ""
	}
	return raymond.SafeString(svg)
}
