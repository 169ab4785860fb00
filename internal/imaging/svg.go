package imaging

import (
	"bytes"
	"errors"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/JakeFAU/logohunter/internal/candidate"
)

var errNotSVG = errors.New("root element is not <svg>")

var paintProperty = regexp.MustCompile(`(?i)(?:^|[;{\s])(?:fill|stroke|stop-color|color)\s*:\s*([^;}\s]+)`)

var paintAttributes = []string{"fill", "stroke", "stop-color", "color"}

func inspectSVG(data []byte) (Metadata, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return Metadata{}, err
	}
	root := xmlquery.FindOne(doc, "/*")
	if root == nil || !strings.EqualFold(root.Data, "svg") {
		return Metadata{}, errNotSVG
	}

	meta := Metadata{
		Format: candidate.FormatSVG,
		Vector: true,
		Bytes:  len(data),
	}
	meta.Width, meta.Height = svgDimensions(root)
	meta.Colors = svgColors(doc)
	return meta, nil
}

// svgDimensions prefers absolute width and height attributes and falls back
// to the viewBox.
func svgDimensions(root *xmlquery.Node) (int, int) {
	w, okW := svgLength(root.SelectAttr("width"))
	h, okH := svgLength(root.SelectAttr("height"))
	vw, vh, okBox := viewBox(root.SelectAttr("viewBox"))
	switch {
	case okW && okH:
		return w, h
	case okBox && okW:
		return w, int(float64(w) * vh / vw)
	case okBox && okH:
		return int(float64(h) * vw / vh), h
	case okBox:
		return int(vw + 0.5), int(vh + 0.5)
	}
	return 0, 0
}

func svgLength(raw string) (int, bool) {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "px")
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return int(f + 0.5), true
}

func viewBox(raw string) (float64, float64, bool) {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' })
	if len(fields) != 4 {
		return 0, 0, false
	}
	w, errW := strconv.ParseFloat(fields[2], 64)
	h, errH := strconv.ParseFloat(fields[3], 64)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// svgColors collects paint colors from presentation attributes, inline style
// attributes and <style> blocks.
func svgColors(doc *xmlquery.Node) []string {
	seen := map[string]struct{}{}
	add := func(raw string) {
		if c, ok := normalizeColor(raw); ok {
			seen[c] = struct{}{}
		}
	}
	for _, n := range xmlquery.Find(doc, "//*") {
		for _, attr := range paintAttributes {
			add(n.SelectAttr(attr))
		}
		if style := n.SelectAttr("style"); style != "" {
			for _, m := range paintProperty.FindAllStringSubmatch(style, -1) {
				add(m[1])
			}
		}
		if strings.EqualFold(n.Data, "style") {
			for _, m := range paintProperty.FindAllStringSubmatch(n.InnerText(), -1) {
				add(m[1])
			}
		}
	}
	colors := make([]string, 0, len(seen))
	for c := range seen {
		colors = append(colors, c)
	}
	slices.Sort(colors)
	return colors
}

func normalizeColor(raw string) (string, bool) {
	c := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "!important")))
	switch {
	case c == "", c == "none", c == "transparent", c == "inherit", c == "currentcolor":
		return "", false
	case strings.HasPrefix(c, "url("):
		// Gradient and pattern references contribute through their stops.
		return "", false
	}
	c = strings.ReplaceAll(c, " ", "")
	if len(c) == 4 && c[0] == '#' {
		c = "#" + strings.Repeat(c[1:2], 2) + strings.Repeat(c[2:3], 2) + strings.Repeat(c[3:4], 2)
	}
	switch c {
	case "#ffffff", "white", "rgb(255,255,255)":
		return "white", true
	case "#000000", "black", "rgb(0,0,0)":
		return "black", true
	}
	return c, true
}
