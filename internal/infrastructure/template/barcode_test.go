package template

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRCodeSVG(t *testing.T) {
	svg, err := qrCodeSVG("https://example.com/r/123", "#000000", "transparent")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(svg, "<svg"))
	assert.True(t, strings.HasSuffix(svg, "</svg>"))
	assert.Contains(t, svg, `fill="#000000"`)
	// transparent background renders no visible backdrop
	assert.NotContains(t, svg, `fill="#ffffff"`)
	assert.Contains(t, svg, "viewBox")
}

func TestQRCodeSVG_CustomColours(t *testing.T) {
	svg, err := qrCodeSVG("hello", "#112233", "#f0f0f0")
	require.NoError(t, err)
	assert.Contains(t, svg, `fill="#112233"`)
	assert.Contains(t, svg, `fill="#f0f0f0"`)
}

func TestQRCodeSVG_Deterministic(t *testing.T) {
	a, err := qrCodeSVG("same input", "#000000", "transparent")
	require.NoError(t, err)
	b, err := qrCodeSVG("same input", "#000000", "transparent")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBarCodeSVG(t *testing.T) {
	svg, err := barCodeSVG("ORDER-42", 80, true, "#000000")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(svg, "<svg"))
	assert.Contains(t, svg, "<rect")
	assert.Contains(t, svg, "ORDER-42</text>")
}

func TestBarCodeSVG_NoText(t *testing.T) {
	svg, err := barCodeSVG("ORDER-42", 80, false, "#000000")
	require.NoError(t, err)
	assert.NotContains(t, svg, "<text")
}

func TestBarCodeSVG_Unencodable(t *testing.T) {
	_, err := barCodeSVG("контроль", 80, false, "#000000")
	assert.Error(t, err)
}
