package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIdentifyOutput(t *testing.T) {
	format, width, height, err := parseIdentifyOutput([]byte("JPEG 1024 768\n"))
	assert.NoError(t, err)
	assert.Equal(t, "JPEG", format)
	assert.Equal(t, 1024, width)
	assert.Equal(t, 768, height)
}

func TestParseIdentifyOutputEmpty(t *testing.T) {
	_, _, _, err := parseIdentifyOutput(nil)
	assert.Error(t, err)
}

func TestParseIdentifyOutputMalformed(t *testing.T) {
	_, _, _, err := parseIdentifyOutput([]byte("JPEG notanumber 768\n"))
	assert.Error(t, err)
}

func TestResizeGeometryExactBoth(t *testing.T) {
	g, err := resizeGeometry(ResizeOptions{Width: 200, Height: 100})
	assert.NoError(t, err)
	assert.Equal(t, "200x100!", g)
}

func TestResizeGeometryAspectFitWidthOnly(t *testing.T) {
	g, err := resizeGeometry(ResizeOptions{Width: 200})
	assert.NoError(t, err)
	assert.Equal(t, "200x", g)
}

func TestResizeGeometryAspectFitHeightOnly(t *testing.T) {
	g, err := resizeGeometry(ResizeOptions{Height: 100})
	assert.NoError(t, err)
	assert.Equal(t, "x100", g)
}

func TestResizeGeometryRequiresADimension(t *testing.T) {
	_, err := resizeGeometry(ResizeOptions{})
	assert.Error(t, err)
}

func TestChecksumIsStableAndContentAddressed(t *testing.T) {
	a := Checksum([]byte("hello"))
	b := Checksum([]byte("hello"))
	c := Checksum([]byte("world"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestBufferedStreamRepeatedReads(t *testing.T) {
	s := &BufferedStream{data: []byte("abc")}
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []byte("abc"), s.Bytes())
	// reading twice doesn't consume/mutate the buffer
	assert.Equal(t, []byte("abc"), s.Bytes())
}
