package ocr

import (
	"image"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ModelSpace is the square coordinate space the OCR model reports boxes in,
// whatever the size of the image it was shown.
const ModelSpace = 1000

var (
	groundingRe  = regexp.MustCompile(`<\|ref\|>(\w+)<\|/ref\|><\|det\|>\[\[(\d+),\s*(\d+),\s*(\d+),\s*(\d+)\]\]<\|/det\|>`)
	annotationRe = regexp.MustCompile(`<\|ref\|>\w+<\|/ref\|><\|det\|>\[\[\d+,\s*\d+,\s*\d+,\s*\d+\]\]<\|/det\|>\s*`)
	markerRe     = regexp.MustCompile(`<\|[^>]+\|>`)
)

// Element is one figure the model located on a page, in image pixels.
type Element struct {
	Type  string
	Box   image.Rectangle
	Index int
}

// Scale converts a model-space coordinate to pixels along an axis of size
// px. Integer arithmetic keeps (500, 1000) mapping to exactly (px/2, px).
func Scale(v, px int) int {
	return v * px / ModelSpace
}

// ParseGrounding extracts the image and figure annotations from raw model
// output, rescaled to a w x h image, ordered top to bottom and numbered from 1.
func ParseGrounding(raw string, w, h int) []Element {
	var elems []Element
	for _, m := range groundingRe.FindAllStringSubmatch(raw, -1) {
		kind := m[1]
		if !isFigure(kind) {
			continue
		}
		x1, y1, x2, y2 := atoi(m[2]), atoi(m[3]), atoi(m[4]), atoi(m[5])
		elems = append(elems, Element{
			Type: kind,
			Box: image.Rectangle{
				Min: image.Point{X: Scale(x1, w), Y: Scale(y1, h)},
				Max: image.Point{X: Scale(x2, w), Y: Scale(y2, h)},
			},
		})
	}
	SortAndIndex(elems)
	return elems
}

// SortAndIndex orders elements by their top edge and renumbers them 1..n.
func SortAndIndex(elems []Element) {
	sort.SliceStable(elems, func(i, j int) bool {
		return elems[i].Box.Min.Y < elems[j].Box.Min.Y
	})
	for i := range elems {
		elems[i].Index = i + 1
	}
}

// CleanText removes every grounding annotation and stray <|...|> marker.
func CleanText(raw string) string {
	out := annotationRe.ReplaceAllString(raw, "")
	out = markerRe.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

func isFigure(kind string) bool {
	k := strings.ToLower(kind)
	return k == "image" || k == "figure"
}

// The regexp only admits digit runs here.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
