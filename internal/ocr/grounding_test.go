package ocr

import (
	"fmt"
	"image"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ann(kind string, x1, y1, x2, y2 int) string {
	return fmt.Sprintf("<|ref|>%s<|/ref|><|det|>[[%d, %d, %d, %d]]<|/det|>", kind, x1, y1, x2, y2)
}

func TestParseGrounding_RescalesLinearly(t *testing.T) {
	for _, dim := range [][2]int{{1000, 1000}, {1224, 1584}, {333, 777}, {1001, 1001}, {1190, 1684}} {
		w, h := dim[0], dim[1]

		elems := ParseGrounding(ann("image", 500, 500, 1000, 1000), w, h)
		require.Len(t, elems, 1)
		assert.Equal(t, image.Rect(w/2, h/2, w, h), elems[0].Box, "%dx%d", w, h)
	}
}

func TestParseGrounding_RescaleExactAcrossSizes(t *testing.T) {
	raw := ann("image", 500, 500, 1000, 1000)
	for w := 100; w <= 3000; w++ {
		elems := ParseGrounding(raw, w, w+7)
		require.Len(t, elems, 1)
		if !assert.Equal(t, image.Rect(w/2, (w+7)/2, w, w+7), elems[0].Box, "width %d", w) {
			return
		}
	}
}

func TestParseGrounding_TruncatesScaledCoordinates(t *testing.T) {
	elems := ParseGrounding(ann("figure", 1, 1, 3, 3), 1500, 999)
	require.Len(t, elems, 1)
	assert.Equal(t, image.Point{X: 1, Y: 0}, elems[0].Box.Min)
	assert.Equal(t, image.Point{X: 4, Y: 2}, elems[0].Box.Max)
}

func TestParseGrounding_KeepsOnlyFigures(t *testing.T) {
	raw := ann("text", 0, 0, 10, 10) + "Intro\n" +
		ann("Image", 0, 300, 10, 400) +
		ann("title", 0, 0, 1, 1) +
		ann("FIGURE", 0, 100, 10, 200) +
		ann("table", 0, 50, 10, 60)

	elems := ParseGrounding(raw, ModelSpace, ModelSpace)
	require.Len(t, elems, 2)
	assert.Equal(t, "FIGURE", elems[0].Type)
	assert.Equal(t, "Image", elems[1].Type)
}

func TestSortAndIndex_PermutationAndIndexes(t *testing.T) {
	ys := []int{900, 10, 450, 450, 30, 700, 0}
	elems := make([]Element, len(ys))
	for i, y := range ys {
		elems[i] = Element{Type: "image", Box: image.Rect(i, y, i+5, y+5), Index: 42}
	}
	rand.New(rand.NewSource(7)).Shuffle(len(elems), func(i, j int) { elems[i], elems[j] = elems[j], elems[i] })

	before := map[image.Rectangle]bool{}
	for _, e := range elems {
		before[e.Box] = true
	}

	SortAndIndex(elems)

	require.Len(t, elems, len(ys))
	for i, e := range elems {
		assert.Equal(t, i+1, e.Index)
		assert.True(t, before[e.Box], "sorted set must be a permutation of the input")
		if i > 0 {
			assert.LessOrEqual(t, elems[i-1].Box.Min.Y, e.Box.Min.Y)
		}
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "full annotations and trailing whitespace",
			raw:  ann("title", 1, 2, 3, 4) + "\n# Safety\n" + ann("text", 5, 6, 7, 8) + "  Keep dry.\n",
			want: "# Safety\nKeep dry.",
		},
		{
			name: "stray markers",
			raw:  "<|ref|>orphan<|/ref|> text <|det|>",
			want: "orphan text",
		},
		{
			name: "plain",
			raw:  "  nothing to strip  ",
			want: "nothing to strip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanText(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "<|")
			assert.NotContains(t, got, "|>")
		})
	}
}
