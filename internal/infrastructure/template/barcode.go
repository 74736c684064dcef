package template

import (
	"fmt"
	"html"
	"image"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/qr"
)

// qrModuleSize is the rendered pixel size of a single QR module
const qrModuleSize = 10

// barModuleWidth is the rendered pixel width of a single Code-128 module
const barModuleWidth = 2

// qrCodeSVG encodes value as a QR code (ECC level M) and serialises the
// module matrix as inline SVG. No quiet zone is added; a light value of
// "transparent" renders the background rect with fill "none".
func qrCodeSVG(value, dark, light string) (string, error) {
	if value == "" {
		return "", fmt.Errorf("qr code value is empty")
	}
	code, err := qr.Encode(value, qr.M, qr.Auto)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}

	bounds := code.Bounds()
	modules := bounds.Dx()
	size := modules * qrModuleSize

	bg := light
	if strings.EqualFold(light, "transparent") {
		bg = "none"
	}

	var b strings.Builder
	fmt.Fprintf(&b,
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" width="%d" height="%d" shape-rendering="crispEdges">`,
		size, size, size, size)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="%s"/>`, size, size, bg)
	fmt.Fprintf(&b, `<g fill="%s">`, dark)

	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < modules; {
			if !isDark(code, bounds, x, y) {
				x++
				continue
			}
			run := 1
			for x+run < modules && isDark(code, bounds, x+run, y) {
				run++
			}
			fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d"/>`,
				x*qrModuleSize, y*qrModuleSize, run*qrModuleSize, qrModuleSize)
			x += run
		}
	}

	b.WriteString(`</g></svg>`)
	return b.String(), nil
}

// barCodeSVG encodes value as Code-128 and serialises it as inline SVG with
// the given bar height. All bars are emitted in the dark colour.
func barCodeSVG(value string, height int, showText bool, dark string) (string, error) {
	if value == "" {
		return "", fmt.Errorf("barcode value is empty")
	}
	code, err := code128.Encode(value)
	if err != nil {
		return "", fmt.Errorf("encode code128: %w", err)
	}

	bounds := code.Bounds()
	modules := bounds.Dx()
	width := modules * barModuleWidth

	const textBlock = 16
	totalHeight := height
	if showText {
		totalHeight += textBlock
	}

	var b strings.Builder
	fmt.Fprintf(&b,
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" width="%d" height="%d" shape-rendering="crispEdges">`,
		width, totalHeight, width, totalHeight)
	fmt.Fprintf(&b, `<g fill="%s">`, dark)

	row := bounds.Min.Y
	for x := 0; x < modules; {
		if !isDark(code, bounds, x, row-bounds.Min.Y) {
			x++
			continue
		}
		run := 1
		for x+run < modules && isDark(code, bounds, x+run, row-bounds.Min.Y) {
			run++
		}
		fmt.Fprintf(&b, `<rect x="%d" y="0" width="%d" height="%d"/>`,
			x*barModuleWidth, run*barModuleWidth, height)
		x += run
	}

	if showText {
		fmt.Fprintf(&b,
			`<text x="%d" y="%d" text-anchor="middle" font-family="monospace" font-size="12">%s</text>`,
			width/2, height+12, html.EscapeString(value))
	}

	b.WriteString(`</g></svg>`)
	return b.String(), nil
}

// isDark samples the module at matrix position (x, y)
func isDark(code barcode.Barcode, bounds image.Rectangle, x, y int) bool {
	r, g, bl, _ := code.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
	return r < 0x8000 && g < 0x8000 && bl < 0x8000
}
