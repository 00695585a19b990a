package imageinspect

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/bytesleuth/sleuth/internal/model"

	"github.com/klauspost/compress/zlib"
)

// maxText caps the inflated size of a single compressed text chunk.
const maxText = 1 << 20

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// pngChunks reads the ancillary chunks which carry metadata. The returned
// exif holds the raw content of an eXIf chunk, if any.
func pngChunks(b []byte, md model.Metadata) (exif []byte) {
	if !bytes.HasPrefix(b, pngSignature) {
		return nil
	}
	for p := b[len(pngSignature):]; len(p) >= 12; {
		n := binary.BigEndian.Uint32(p[0:4])
		typ := string(p[4:8])
		if uint64(n)+12 > uint64(len(p)) {
			return exif
		}
		data := p[8 : 8+n]
		p = p[12+n:]

		switch typ {
		case "tEXt":
			key, val, ok := bytes.Cut(data, []byte{0})
			if ok {
				md.Set(latin1(key), latin1(val))
			}
		case "zTXt":
			key, rest, ok := bytes.Cut(data, []byte{0})
			if !ok || len(rest) < 1 || rest[0] != 0 {
				continue
			}
			if val, err := inflate(rest[1:]); err == nil {
				md.Set(latin1(key), latin1(val))
			}
		case "iTXt":
			itxt(data, md)
		case "pHYs":
			if len(data) == 9 && data[8] == 1 {
				x := binary.BigEndian.Uint32(data[0:4])
				y := binary.BigEndian.Uint32(data[4:8])
				md.Set("dpi", fmt.Sprintf("(%d, %d)", dpi(x), dpi(y)))
			}
		case "gAMA":
			if len(data) == 4 {
				md.Set("gamma", fmt.Sprintf("%g", float64(binary.BigEndian.Uint32(data))/100000))
			}
		case "eXIf":
			exif = data
		case "IEND":
			return exif
		}
	}
	return exif
}

// itxt layout: keyword 0 flag method language 0 translated 0 text
func itxt(data []byte, md model.Metadata) {
	key, rest, ok := bytes.Cut(data, []byte{0})
	if !ok || len(rest) < 2 {
		return
	}
	compressed, method := rest[0], rest[1]
	_, rest, ok = bytes.Cut(rest[2:], []byte{0})
	if !ok {
		return
	}
	_, val, ok := bytes.Cut(rest, []byte{0})
	if !ok {
		return
	}
	if compressed == 1 {
		if method != 0 {
			return
		}
		var err error
		if val, err = inflate(val); err != nil {
			return
		}
	}
	md.Set(latin1(key), strings.ToValidUTF8(string(val), "�"))
}

func inflate(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(io.LimitReader(r, maxText))
}

// dpi converts pixels per meter.
func dpi(ppm uint32) int {
	return int(math.Round(float64(ppm) * 0.0254))
}

func latin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

// jpegSegments reads the JFIF header and comments preceding the scan data.
// The returned exif is the TIFF structure of the first APP1 Exif segment.
func jpegSegments(b []byte, md model.Metadata) (exif []byte) {
	if len(b) < 4 || b[0] != 0xff || b[1] != 0xd8 {
		return nil
	}
	for p := b[2:]; len(p) >= 4; {
		if p[0] != 0xff {
			return exif
		}
		marker := p[1]
		if marker == 0xff {
			p = p[1:]
			continue
		}
		// markers without a length
		if marker == 0x01 || (marker >= 0xd0 && marker <= 0xd7) {
			p = p[2:]
			continue
		}
		if marker == 0xda || marker == 0xd9 {
			return exif
		}
		n := int(binary.BigEndian.Uint16(p[2:4]))
		if n < 2 || n+2 > len(p) {
			return exif
		}
		data := p[4 : 2+n]
		p = p[2+n:]

		switch {
		case marker == 0xfe:
			md.Set("comment", latin1(data))
		case marker == 0xe0 && len(data) >= 12 && bytes.HasPrefix(data, []byte("JFIF\x00")):
			md.Set("jfif_version", fmt.Sprintf("%d.%02d", data[5], data[6]))
			md.Set("jfif_unit", fmt.Sprintf("%d", data[7]))
			md.Set("jfif_density", fmt.Sprintf("(%d, %d)",
				binary.BigEndian.Uint16(data[8:10]), binary.BigEndian.Uint16(data[10:12])))
		case marker == 0xe1 && exif == nil && bytes.HasPrefix(data, []byte("Exif\x00\x00")):
			exif = data[6:]
		case marker == 0xe1 && bytes.HasPrefix(data, []byte("http://ns.adobe.com/xap/1.0/\x00")):
			md.Set("xmp", strings.ToValidUTF8(string(data[29:]), "�"))
		}
	}
	return exif
}

// gifBlocks walks the block structure of a GIF and records its version,
// comment extensions and the NETSCAPE loop count.
func gifBlocks(b []byte, md model.Metadata) {
	if len(b) < 13 || !bytes.HasPrefix(b, []byte("GIF")) {
		return
	}
	md.Set("version", string(b[0:6]))
	p := b[13:]
	if b[10]&0x80 != 0 {
		p = skip(p, 3<<(b[10]&0x07+1))
	}

	var comments [][]byte
	defer func() {
		if len(comments) > 0 {
			md.Set("comment", latin1(bytes.Join(comments, nil)))
		}
	}()
	for len(p) > 0 {
		switch p[0] {
		case 0x21:
			if len(p) < 2 {
				return
			}
			label := p[1]
			var data [][]byte
			data, p = subBlocks(p[2:])
			switch {
			case label == 0xfe:
				comments = append(comments, bytes.Join(data, nil))
			case label == 0xff && len(data) >= 2 && string(data[0]) == "NETSCAPE2.0" && len(data[1]) == 3 && data[1][0] == 1:
				md.Set("loop", fmt.Sprintf("%d", binary.LittleEndian.Uint16(data[1][1:3])))
			}
		case 0x2c:
			if len(p) < 10 {
				return
			}
			packed := p[9]
			p = p[10:]
			if packed&0x80 != 0 {
				p = skip(p, 3<<(packed&0x07+1))
			}
			// LZW minimum code size
			p = skip(p, 1)
			_, p = subBlocks(p)
		default:
			return
		}
	}
}

func subBlocks(p []byte) ([][]byte, []byte) {
	var ret [][]byte
	for len(p) > 0 {
		n := int(p[0])
		if n == 0 {
			return ret, p[1:]
		}
		if n+1 > len(p) {
			return ret, nil
		}
		ret = append(ret, p[1:1+n])
		p = p[1+n:]
	}
	return ret, nil
}

func skip(p []byte, n int) []byte {
	if n > len(p) {
		return nil
	}
	return p[n:]
}
