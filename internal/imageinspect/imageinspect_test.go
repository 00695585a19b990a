package imageinspect_test

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math/rand/v2"
	"testing"

	"github.com/bytesleuth/sleuth/internal/imageinspect"
	"github.com/bytesleuth/sleuth/internal/model"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
)

func TestRandomLSB(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewPCG(1, 2))
	img := image.NewNRGBA(image.Rect(0, 0, 128, 128))
	for i := range img.Pix {
		img.Pix[i] = uint8(rnd.UintN(256))
		if i%4 == 3 {
			img.Pix[i] = 0xff
		}
	}

	res := detect(t, "noise.png", encodePNG(t, img))
	f := find(t, res, model.KindLSBAnomaly)
	require.Equal(t, model.SeverityHigh, f.Severity())
	require.NotEmpty(t, f.Hint)
	stats, ok := f.Payload.(model.LSBStats)
	require.True(t, ok)
	require.Len(t, stats.Channels, 3)

	v, ok := res.Metadata.Get("lsb_entropy_r")
	require.True(t, ok)
	require.NotEqual(t, "0.0000", v)
}

func TestZeroLSB(t *testing.T) {
	t.Parallel()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := range 32 {
		for x := range 32 {
			img.Set(x, y, color.RGBA{R: 0x10, G: 0x20, B: 0x40, A: 0xff})
		}
	}

	res := detect(t, "flat.png", encodePNG(t, img))
	require.NotContains(t, kinds(res), model.KindLSBAnomaly)
	f := find(t, res, model.KindLSBAnalysis)
	require.Equal(t, model.SeverityInfo, f.Severity())
	require.Equal(t, "0.0000", f.Payload.(model.LSBStats).Entropy)
}

func TestSkippedModes(t *testing.T) {
	t.Parallel()
	palette := image.NewPaletted(image.Rect(0, 0, 8, 8), color.Palette{color.Black, color.White})
	gray := image.NewGray(image.Rect(0, 0, 8, 8))

	var testCases = []struct {
		scenario string
		given    image.Image
		mode     string
	}{
		{scenario: "paletted", given: palette, mode: "P"},
		{scenario: "gray", given: gray, mode: "L"},
	}
	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			res := detect(t, "x.png", encodePNG(t, tc.given))
			f := find(t, res, model.KindLSBSkipped)
			require.Equal(t, model.SeverityInfo, f.Severity())
			require.NotContains(t, kinds(res), model.KindLSBAnalysis)
			mode, _ := res.Metadata.Get("mode")
			require.Equal(t, tc.mode, mode)
		})
	}
}

func TestInvalidImage(t *testing.T) {
	t.Parallel()
	res := detect(t, "x.png", []byte("\x89PNG\r\n\x1a\nthis is truncated"))
	require.Equal(t, []model.Kind{model.KindInvalidImage}, kinds(res))
	require.Equal(t, model.SeverityWarning, res.Findings[0].Severity())
	require.Zero(t, res.Metadata.Len())
}

func TestPNGText(t *testing.T) {
	t.Parallel()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	b := encodePNG(t, img)

	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	_, err := zw.Write([]byte("flag{compressed}"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	b = insertChunk(b, "tEXt", []byte("Comment\x00hidden here"))
	b = insertChunk(b, "zTXt", append([]byte("Secret\x00\x00"), z.Bytes()...))
	b = insertChunk(b, "iTXt", []byte("Author\x00\x00\x00en\x00\x00sleuth"))
	b = insertChunk(b, "pHYs", []byte{0, 0, 0x0b, 0x13, 0, 0, 0x0b, 0x13, 1})

	res := detect(t, "x.png", b)
	f := find(t, res, model.KindImageMetadata)
	require.Equal(t, model.SeverityInfo, f.Severity())
	embedded, ok := f.Payload.(model.Metadata)
	require.True(t, ok)
	// chunks are inserted right after IHDR so the last one comes first
	require.Equal(t, []string{"dpi", "Author", "Secret", "Comment"}, embedded.Keys())

	v, _ := res.Metadata.Get("Secret")
	require.Equal(t, "flag{compressed}", v)
	v, _ = res.Metadata.Get("Comment")
	require.Equal(t, "hidden here", v)
	v, _ = res.Metadata.Get("dpi")
	require.Equal(t, "(72, 72)", v)
	require.Equal(t, []string{"format", "width", "height", "mode"}, res.Metadata.Keys()[:4])
}

func TestNoEmbeddedMetadata(t *testing.T) {
	t.Parallel()
	res := detect(t, "x.png", encodePNG(t, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	require.NotContains(t, kinds(res), model.KindImageMetadata)
	v, _ := res.Metadata.Get("format")
	require.Equal(t, "png", v)
}

func TestJPEGComment(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16)), nil))
	b := buf.Bytes()
	com := []byte{0xff, 0xfe, 0x00, 0x07, 'h', 'e', 'l', 'l', 'o'}
	b = append(append(append([]byte{}, b[:2]...), com...), b[2:]...)

	res := detect(t, "x.jpg", b)
	v, ok := res.Metadata.Get("comment")
	require.True(t, ok)
	require.Equal(t, "hello", v)
	// YCbCr images are analyzed
	require.Contains(t, kinds(res), model.KindLSBAnalysis)
}

func TestGIFComment(t *testing.T) {
	t.Parallel()
	img := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))
	b := buf.Bytes()

	off := 13
	if b[10]&0x80 != 0 {
		off += 3 << (b[10]&0x07 + 1)
	}
	ext := []byte{0x21, 0xfe, 0x05, 'h', 'e', 'l', 'l', 'o', 0x00}
	b = append(append(append([]byte{}, b[:off]...), ext...), b[off:]...)

	res := detect(t, "x.gif", b)
	v, _ := res.Metadata.Get("comment")
	require.Equal(t, "hello", v)
	v, _ = res.Metadata.Get("version")
	require.Equal(t, "GIF89a", v)
	require.Contains(t, kinds(res), model.KindLSBSkipped)
}

func TestExtractPlanes(t *testing.T) {
	t.Parallel()
	img := image.NewRGBA(image.Rect(0, 0, 3, 1))
	img.Set(0, 0, color.RGBA{R: 1, G: 0, B: 1, A: 0xff})
	img.Set(1, 0, color.RGBA{R: 3, G: 5, B: 7, A: 0xff})
	img.Set(2, 0, color.RGBA{R: 2, G: 4, B: 6, A: 0xff})

	planes, ok := imageinspect.ExtractPlanes(img)
	require.True(t, ok)
	// 101 111 000 packed MSB first, the ninth bit stays unaligned
	require.Equal(t, []byte{0xbc, 0x00}, planes.Interleaved)
	require.Equal(t, []byte{0b110}, planes.R)
	require.Equal(t, []byte{0b010}, planes.G)
	require.Equal(t, []byte{0b110}, planes.B)

	_, ok = imageinspect.ExtractPlanes(image.NewCMYK(image.Rect(0, 0, 1, 1)))
	require.False(t, ok)
}

// tiffMake is a big endian TIFF structure with a single Make field.
var tiffMake = []byte("MM\x00\x2a\x00\x00\x00\x08" +
	"\x00\x01" +
	"\x01\x0f\x00\x02\x00\x00\x00\x06\x00\x00\x00\x1a" +
	"\x00\x00\x00\x00" +
	"Canon\x00")

// tiffHuge has a LONG field claiming 0x40000001 values, the byte length of
// which overflows 32 bits.
var tiffHuge = []byte("MM\x00\x2a\x00\x00\x00\x08" +
	"\x00\x01" +
	"\x01\x00\x00\x04\x40\x00\x00\x01\x00\x00\x00\x00" +
	"\x00\x00\x00\x00")

// tiffLoop has a next directory pointer back to itself.
var tiffLoop = []byte("II\x2a\x00\x08\x00\x00\x00" +
	"\x01\x00" +
	"\x00\x01\x03\x00\x01\x00\x00\x00\x10\x00\x00\x00" +
	"\x08\x00\x00\x00")

func TestEXIF(t *testing.T) {
	t.Parallel()
	rgb := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, rgb, nil))

	withPNG := func(tiff []byte) []byte {
		return insertChunk(encodePNG(t, rgb), "eXIf", tiff)
	}
	withJPEG := func(tiff []byte) []byte {
		seg := binary.BigEndian.AppendUint16([]byte{0xff, 0xe1}, uint16(2+6+len(tiff)))
		seg = append(seg, "Exif\x00\x00"...)
		seg = append(seg, tiff...)
		b := append([]byte{}, jpg.Bytes()[:2]...)
		b = append(b, seg...)
		return append(b, jpg.Bytes()[2:]...)
	}

	var testCases = []struct {
		scenario string
		name     string
		given    []byte
		make     string
	}{
		{"png exif", "a.png", withPNG(tiffMake), "Canon"},
		{"jpeg exif", "a.jpg", withJPEG(tiffMake), "Canon"},
		{"png count overflow", "a.png", withPNG(tiffHuge), ""},
		{"jpeg count overflow", "a.jpg", withJPEG(tiffHuge), ""},
		{"directory loop", "a.png", withPNG(tiffLoop), ""},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			res := detect(t, tt.name, tt.given)
			require.NotContains(t, kinds(res), model.KindInvalidImage)
			require.Contains(t, kinds(res), model.KindLSBAnalysis)
			v, ok := res.Metadata.Get("EXIF:Make")
			if tt.make == "" {
				require.False(t, ok)
				return
			}
			require.True(t, ok)
			require.Contains(t, v, tt.make)
		})
	}
}

func detect(t *testing.T, name string, b []byte) model.Result {
	t.Helper()
	res, err := imageinspect.New(7.5).Detect(t.Context(), model.NewBlob(b, name), model.TypeAnalysis{})
	require.NoError(t, err)
	return res
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// insertChunk places a chunk right after IHDR.
func insertChunk(b []byte, typ string, data []byte) []byte {
	const afterIHDR = 8 + 12 + 13
	chunk := binary.BigEndian.AppendUint32(nil, uint32(len(data)))
	chunk = append(chunk, typ...)
	chunk = append(chunk, data...)
	chunk = binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(chunk[4:]))
	ret := append([]byte{}, b[:afterIHDR]...)
	ret = append(ret, chunk...)
	return append(ret, b[afterIHDR:]...)
}

func find(t *testing.T, res model.Result, kind model.Kind) model.Finding {
	t.Helper()
	for _, f := range res.Findings {
		if f.Kind == kind {
			return f
		}
	}
	require.Failf(t, "finding not found", "kind %s in %v", kind, kinds(res))
	return model.Finding{}
}

func kinds(res model.Result) []model.Kind {
	var ret []model.Kind
	for _, f := range res.Findings {
		ret = append(ret, f.Kind)
	}
	return ret
}
