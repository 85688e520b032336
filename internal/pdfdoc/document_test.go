package pdfdoc_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Homedex/internal/pdfdoc"
	"github.com/markdave123-py/Homedex/internal/pdfdoc/pdfdoctest"
)

func TestLeadingText_LimitsPagesAndChars(t *testing.T) {
	doc := &pdfdoctest.Memory{Pages: []string{"alpha", "beta", "gamma"}}

	text, err := pdfdoc.LeadingText(pdfdoctest.Opener(doc), "x.pdf", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, "alpha\nbeta", text)
	assert.True(t, doc.Closed())

	text, err = pdfdoc.LeadingText(pdfdoctest.Opener(doc), "x.pdf", 5, 3)
	require.NoError(t, err)
	assert.Equal(t, "alp", text)
}

func TestLeadingText_OpenError(t *testing.T) {
	boom := errors.New("boom")
	_, err := pdfdoc.LeadingText(func(string) (pdfdoc.Document, error) { return nil, boom }, "x.pdf", 1, 1)
	assert.ErrorIs(t, err, boom)
}

func TestMemory_RenderScales(t *testing.T) {
	doc := &pdfdoctest.Memory{Pages: []string{"p"}, Width: 200, Height: 100}

	img, err := doc.RenderPage(0, 2*pdfdoc.BaseDPI)
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())

	_, err = doc.RenderPage(3, pdfdoc.BaseDPI)
	assert.ErrorIs(t, err, pdfdoctest.ErrPageRange)
}
