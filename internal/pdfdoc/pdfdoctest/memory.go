// Package pdfdoctest provides an in-memory pdfdoc.Document for tests.
package pdfdoctest

import (
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/markdave123-py/Homedex/internal/pdfdoc"
)

// Memory is an in-memory pdfdoc.Document.
// Pages render as blank images of Width x Height at BaseDPI, scaled by dpi.
type Memory struct {
	Pages  []string
	Width  int
	Height int

	mu     sync.Mutex
	closed bool
}

var ErrPageRange = errors.New("page out of range")

func (m *Memory) PageCount() int { return len(m.Pages) }

func (m *Memory) PageText(page int) (string, error) {
	if page < 0 || page >= len(m.Pages) {
		return "", ErrPageRange
	}
	return m.Pages[page], nil
}

func (m *Memory) RenderPage(page int, dpi float64) (*image.RGBA, error) {
	if page < 0 || page >= len(m.Pages) {
		return nil, ErrPageRange
	}
	w, h := m.Width, m.Height
	if w == 0 {
		w = 100
	}
	if h == 0 {
		h = 100
	}
	scale := dpi / pdfdoc.BaseDPI
	img := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.RGBA{A: 0xff})
	return img, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Opener returns a pdfdoc.Opener that always yields doc.
func Opener(doc *Memory) pdfdoc.Opener {
	return func(string) (pdfdoc.Document, error) { return doc, nil }
}
