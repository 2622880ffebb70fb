package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBareArray(t *testing.T) {
	t.Parallel()

	data := `[{"img_path": "001.jpg", "img_width": 800, "img_height": 1200,
		"blocks": [{"box": [1, 2, 3, 4], "vertical": true, "font_size": 18.5, "lines": ["こんにちは"]}]}]`

	pages, err := Parse([]byte(data))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "001.jpg", pages[0].ImgPath)
	assert.Equal(t, 800, pages[0].ImgWidth)
	require.Len(t, pages[0].Blocks, 1)
	assert.True(t, pages[0].Blocks[0].Vertical)
	assert.InDelta(t, 18.5, pages[0].Blocks[0].FontSize, 0.01)
	assert.Equal(t, []string{"こんにちは"}, pages[0].Blocks[0].Lines)
}

func TestParseWrappers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{name: "pages key", data: `{"pages": [{"img_path": "001.jpg"}]}`},
		{name: "data key", data: `{"data": [{"img_path": "001.jpg"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pages, err := Parse([]byte(tt.data))
			require.NoError(t, err)
			require.Len(t, pages, 1)
			assert.Equal(t, "001.jpg", pages[0].ImgPath)
		})
	}
}

func TestParseRejectsUnknownShapes(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`{"something": "else"}`))
	require.Error(t, err)

	_, err = Parse([]byte(`not json at all`))
	require.Error(t, err)
}

func TestBlockFontSizeSpellings(t *testing.T) {
	t.Parallel()

	pages, err := Parse([]byte(`[{"img_path": "001.jpg", "blocks": [{"box": [], "fontSize": 21, "lines": []}]}]`))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Len(t, pages[0].Blocks, 1)
	assert.InDelta(t, 21.0, pages[0].Blocks[0].FontSize, 0.01)
}

func TestPageImageName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		imgPath string
		want    string
	}{
		{imgPath: "001.jpg", want: "001.jpg"},
		{imgPath: "volume-1/001.jpg", want: "001.jpg"},
		{imgPath: `pages\001.jpg`, want: "001.jpg"},
	}

	for _, tt := range tests {
		p := &Page{ImgPath: tt.imgPath}
		assert.Equal(t, tt.want, p.ImageName())
	}
}
