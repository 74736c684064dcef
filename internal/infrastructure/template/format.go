package template

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// dateLayouts are tried in order when parsing helper input
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	time.RFC1123,
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// shortDateLayout is the expansion of the standalone "d" pattern
const shortDateLayout = "02/01/2006"

// patternTokens maps .NET custom date tokens to Go layout fragments.
// Ordered longest-first so the scanner always takes the longest match.
var patternTokens = []struct {
	token  string
	layout string
}{
	{"yyyy", "2006"},
	{"yy", "06"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"MM", "01"},
	{"M", "1"},
	{"dd", "02"},
	{"d", "2"},
	{"HH", "15"},
	{"H", "15"},
	{"hh", "03"},
	{"h", "3"},
	{"mm", "04"},
	{"m", "4"},
	{"ss", "05"},
	{"s", "5"},
	{"tt", "PM"},
	// fractional seconds bind to their separator in Go layouts, so the
	// translated token always carries the dot; a bare f-run gains one
	{".fff", ".000"},
	{".ff", ".00"},
	{".f", ".0"},
	{"fff", ".000"},
	{"ff", ".00"},
	{"f", ".0"},
}

// translatePattern converts a .NET custom date pattern into a Go time
// layout. The standalone pattern "d" is the short-date form.
func translatePattern(pattern string) string {
	if pattern == "" || pattern == "d" {
		return shortDateLayout
	}

	var b strings.Builder
	for i := 0; i < len(pattern); {
		matched := false
		for _, tok := range patternTokens {
			if strings.HasPrefix(pattern[i:], tok.token) {
				b.WriteString(tok.layout)
				i += len(tok.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(pattern[i])
			i++
		}
	}
	return b.String()
}

// currencySymbols covers the symbols the formatter composes directly;
// anything else falls back to the ISO code.
var currencySymbols = map[string]string{
	"GBP": "£",
	"USD": "$",
	"EUR": "€",
	"JPY": "¥",
	"CNY": "¥",
	"INR": "₹",
	"KRW": "₩",
	"RUB": "₽",
	"TRY": "₺",
	"BRL": "R$",
	"AUD": "$",
	"CAD": "$",
	"NZD": "$",
	"HKD": "$",
	"SGD": "$",
	"MXN": "$",
	"ZAR": "R",
	"PLN": "zł",
	"SEK": "kr",
	"NOK": "kr",
	"DKK": "kr",
}

var fallbackCulture = language.MustParse("en-GB")

// formatCurrency parses raw as a decimal amount and renders it with the
// culture's currency symbol and digit separators. Unknown cultures fall
// back to en-GB; unparseable amounts render empty.
func formatCurrency(raw, culture string) string {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}

	tag, err := language.Parse(culture)
	if err != nil {
		tag = fallbackCulture
	}
	region, _ := tag.Region()
	unit, ok := currency.FromRegion(region)
	if !ok {
		tag = fallbackCulture
		region, _ = tag.Region()
		unit, _ = currency.FromRegion(region)
	}

	symbol, ok := currencySymbols[unit.String()]
	if !ok {
		symbol = unit.String() + " "
	}

	f, _ := d.Float64()
	p := message.NewPrinter(tag)
	amount := p.Sprint(number.Decimal(f,
		number.MinFractionDigits(2),
		number.MaxFractionDigits(2)))

	return symbol + amount
}

func parseIntOr(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
