package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"

	"mirage/internal/fileutil"
)

var namedColors = map[string]color.RGBA{
	"black":    {0, 0, 0, 255},
	"white":    {255, 255, 255, 255},
	"gray":     {128, 128, 128, 255},
	"grey":     {128, 128, 128, 255},
	"navy":     {0, 0, 128, 255},
	"midnight": {25, 25, 112, 255},
	"skyblue":  {135, 206, 235, 255},
}

// writeSolidPNG is the last-resort backdrop when convert is unavailable.
func writeSolidPNG(path, colorName string, size int) error {
	if size <= 0 {
		size = 1024
	}
	fill := parseColor(colorName)
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = fill.R
		img.Pix[i+1] = fill.G
		img.Pix[i+2] = fill.B
		img.Pix[i+3] = fill.A
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode placeholder: %w", err)
	}
	return fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644)
}

// parseColor accepts the names above or #rrggbb; anything else is black.
func parseColor(value string) color.RGBA {
	value = strings.ToLower(strings.TrimSpace(value))
	if c, ok := namedColors[value]; ok {
		return c
	}
	hex := strings.TrimPrefix(value, "#")
	if len(hex) == 6 {
		if n, err := strconv.ParseUint(hex, 16, 32); err == nil {
			return color.RGBA{uint8(n >> 16), uint8(n >> 8), uint8(n), 255}
		}
	}
	return namedColors["black"]
}
