package encoder

import (
	"fmt"
	"strings"
)

const (
	// FrameWidth and FrameHeight are the portrait output dimensions.
	FrameWidth  = 1080
	FrameHeight = 1920

	topTextY    = "180"
	bottomTextY = "h-260"
	fontSize    = 72
	borderWidth = 6
)

var drawtextEscaper = strings.NewReplacer(
	`\`, `\\`,
	`:`, `\:`,
	`'`, `\'`,
	"\r\n", " ",
	"\n", " ",
	"\r", " ",
)

// EscapeText makes free text safe inside a quoted drawtext value.
// Backslashes are doubled, colons and single quotes are escaped and line
// breaks collapse to a single space.
func EscapeText(s string) string {
	return drawtextEscaper.Replace(s)
}

// FilterGraph builds the video filter chain: cover-scale to a portrait
// frame, center crop, then the two caption lines.
func FilterGraph(fontPath, top, bottom string) string {
	parts := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", FrameWidth, FrameHeight),
		fmt.Sprintf("crop=%d:%d", FrameWidth, FrameHeight),
		drawtext(fontPath, top, topTextY),
		drawtext(fontPath, bottom, bottomTextY),
	}
	return strings.Join(parts, ",")
}

func drawtext(fontPath, text, y string) string {
	return fmt.Sprintf(
		"drawtext=fontfile=%s:text='%s':x=(w-text_w)/2:y=%s:fontsize=%d:fontcolor=white:borderw=%d:bordercolor=black",
		fontPath, EscapeText(text), y, fontSize, borderWidth,
	)
}
