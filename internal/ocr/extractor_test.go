package ocr

import (
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Homedex/internal/pdfdoc"
	"github.com/markdave123-py/Homedex/internal/pdfdoc/pdfdoctest"
)

type fakeVision struct {
	mu     sync.Mutex
	calls  int
	output func(call int) (string, error)
	seen   []string
}

func (f *fakeVision) Recognize(_ context.Context, instruction string, img []byte) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.seen = append(f.seen, instruction)
	f.mu.Unlock()
	if f.output == nil {
		return "page text", nil
	}
	return f.output(call)
}

func TestExtractPage_CropsFiguresAndRemovesRender(t *testing.T) {
	dir := t.TempDir()
	doc := &pdfdoctest.Memory{Pages: []string{"a", "b"}, Width: 100, Height: 100}
	vision := &fakeVision{output: func(int) (string, error) {
		return "# Title\n" +
			ann("image", 500, 500, 1000, 1000) + "\n" +
			ann("text", 0, 0, 100, 100) + "Body\n" +
			ann("figure", 0, 0, 250, 250), nil
	}}

	res, err := NewExtractor(vision).ExtractPage(context.Background(), doc, 1, dir)
	require.NoError(t, err)

	assert.Equal(t, 1, res.PageNum)
	assert.Equal(t, []string{"page_002_image_1.png", "page_002_image_2.png"}, res.ImageFiles)
	assert.Equal(t, "# Title\nBody", res.Text)
	assert.Equal(t, []string{Instruction}, vision.seen)

	// figure at the top comes first: 0..250 of a 200px render is 0..50
	f, err := os.Open(filepath.Join(dir, "page_002_image_1.png"))
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())

	_, err = os.Stat(filepath.Join(dir, "page_002_temp.png"))
	assert.True(t, os.IsNotExist(err), "temp render must be removed")
}

func TestExtractPage_SkipsEmptyCrop(t *testing.T) {
	dir := t.TempDir()
	doc := &pdfdoctest.Memory{Pages: []string{"a"}}
	vision := &fakeVision{output: func(int) (string, error) {
		return ann("image", 10, 10, 10, 900) + ann("image", 0, 0, 500, 500), nil
	}}

	res, err := NewExtractor(vision).ExtractPage(context.Background(), doc, 0, dir)
	require.NoError(t, err)
	// the zero-width box sorts second
	assert.Equal(t, []string{"page_001_image_1.png"}, res.ImageFiles)
}

func TestExtractPage_ModelErrorRemovesRender(t *testing.T) {
	dir := t.TempDir()
	doc := &pdfdoctest.Memory{Pages: []string{"a"}}
	vision := &fakeVision{output: func(int) (string, error) { return "", errors.New("model down") }}

	_, err := NewExtractor(vision).ExtractPage(context.Background(), doc, 0, dir)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExtractRange_Bounds(t *testing.T) {
	doc := &pdfdoctest.Memory{Pages: make([]string, 6)}

	tests := []struct {
		name  string
		opts  RangeOptions
		pages []int
	}{
		{name: "negative end means last", opts: RangeOptions{Start: 3, End: -1}, pages: []int{3, 4, 5}},
		{name: "end clipped", opts: RangeOptions{Start: 4, End: 40}, pages: []int{4, 5}},
		{name: "start past end of document", opts: RangeOptions{Start: 6, End: -1}},
		{name: "sub range", opts: RangeOptions{Start: 1, End: 2}, pages: []int{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(&fakeVision{}, WithOpener(pdfdoctest.Opener(doc)))
			res := e.ExtractRange(context.Background(), "m.pdf", t.TempDir(), tt.opts)

			var got []int
			for _, r := range res {
				got = append(got, r.PageNum)
			}
			assert.Equal(t, tt.pages, got)
		})
	}
}

func TestExtractRange_CancelStopsBeforeNextPage(t *testing.T) {
	doc := &pdfdoctest.Memory{Pages: make([]string, 5)}
	vision := &fakeVision{}

	checks := 0
	cancelled := func() bool {
		checks++
		return checks > 2
	}

	e := NewExtractor(vision, WithOpener(pdfdoctest.Opener(doc)))
	res := e.ExtractRange(context.Background(), "m.pdf", t.TempDir(), RangeOptions{End: -1, Cancelled: cancelled})

	assert.Len(t, res, 2)
	assert.Equal(t, 2, vision.calls)
}

func TestExtractRange_SkipsFailedPagesAndReportsProgress(t *testing.T) {
	doc := &pdfdoctest.Memory{Pages: make([]string, 4)}
	vision := &fakeVision{output: func(call int) (string, error) {
		if call == 2 {
			return "", errors.New("timeout")
		}
		return "ok", nil
	}}

	var progress [][2]int
	e := NewExtractor(vision, WithOpener(pdfdoctest.Opener(doc)))
	res := e.ExtractRange(context.Background(), "m.pdf", t.TempDir(), RangeOptions{
		End: -1,
		Progress: func(done, total int) {
			progress = append(progress, [2]int{done, total})
			panic("callback bug")
		},
	})

	require.Len(t, res, 3)
	assert.Equal(t, []int{0, 2, 3}, []int{res[0].PageNum, res[1].PageNum, res[2].PageNum})
	assert.Equal(t, [][2]int{{1, 4}, {3, 4}, {4, 4}}, progress)
}

func TestExtractRange_OpenFailureIsEmpty(t *testing.T) {
	e := NewExtractor(&fakeVision{}, WithOpener(func(string) (pdfdoc.Document, error) {
		return nil, errors.New("not a pdf")
	}))
	assert.Empty(t, e.ExtractRange(context.Background(), "m.pdf", t.TempDir(), RangeOptions{End: -1}))
}

func TestWithRateLimit(t *testing.T) {
	assert.Nil(t, NewExtractor(&fakeVision{}, WithRateLimit(0)).limiter)
	assert.NotNil(t, NewExtractor(&fakeVision{}, WithRateLimit(2)).limiter)
}
