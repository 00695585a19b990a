package imageinspect

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/bytesleuth/sleuth/internal/model"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// maxIFDs bounds the number of directories followed in one TIFF structure.
const maxIFDs = 64

var errBadTIFF = errors.New("malformed tiff structure")

// thumbnail fields point into the blob and say nothing about its content.
var skipTags = map[exif.FieldName]bool{
	exif.ThumbJPEGInterchangeFormat:       true,
	exif.ThumbJPEGInterchangeFormatLength: true,
}

// tiffTypeSize is the size of one value of a TIFF field type, 0 for unknown types.
var tiffTypeSize = [...]uint64{1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8, 13: 4}

// sub directories loaded by goexif: Exif, GPS and Interoperability
var subIFDTags = map[uint16]bool{0x8769: true, 0x8825: true, 0xa005: true}

type tagWalker map[string]string

func (w tagWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if skipTags[name] {
		return nil
	}
	w[string(name)] = tag.String()
	return nil
}

// exifTags decodes a TIFF structure (a TIFF file, the payload of a JPEG APP1
// Exif segment or of a PNG eXIf chunk) and adds the tags sorted by name. Tags
// decoded before a non critical error are kept. The structure is checked
// first, goexif trusts value counts and would allocate whatever they claim.
func exifTags(b []byte, md model.Metadata) error {
	if err := checkTIFF(b); err != nil {
		return err
	}
	x, err := exif.Decode(bytes.NewReader(b))
	if x == nil {
		return err
	}
	tags := tagWalker{}
	if werr := x.Walk(tags); werr != nil {
		return werr
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		md.Set("EXIF:"+k, tags[k])
	}
	if err != nil && exif.IsCriticalError(err) {
		return err
	}
	return nil
}

// checkTIFF walks every directory reachable from the header, including the
// Exif, GPS and Interoperability sub directories, and verifies that each
// field's values fit into b. Cycles are rejected.
func checkTIFF(b []byte) error {
	if len(b) < 8 {
		return fmt.Errorf("%w: %d bytes", errBadTIFF, len(b))
	}
	var order binary.ByteOrder
	switch string(b[:4]) {
	case "II*\x00":
		order = binary.LittleEndian
	case "MM\x00*":
		order = binary.BigEndian
	default:
		return fmt.Errorf("%w: bad header %x", errBadTIFF, b[:4])
	}

	seen := map[uint32]bool{}
	queue := []uint32{order.Uint32(b[4:8])}
	for len(queue) > 0 {
		off := queue[0]
		queue = queue[1:]
		if off == 0 {
			continue
		}
		if seen[off] {
			return fmt.Errorf("%w: directory at %d is referenced twice", errBadTIFF, off)
		}
		seen[off] = true
		if len(seen) > maxIFDs {
			return fmt.Errorf("%w: more than %d directories", errBadTIFF, maxIFDs)
		}
		next, subs, err := checkIFD(b, order, off)
		if err != nil {
			return err
		}
		queue = append(queue, next)
		queue = append(queue, subs...)
	}
	return nil
}

func checkIFD(b []byte, order binary.ByteOrder, off uint32) (next uint32, subs []uint32, err error) {
	size := uint64(len(b))
	if uint64(off)+2 > size {
		return 0, nil, fmt.Errorf("%w: directory offset %d out of range", errBadTIFF, off)
	}
	n := uint64(order.Uint16(b[off:]))
	start := uint64(off) + 2
	end := start + n*12
	if end > size {
		return 0, nil, fmt.Errorf("%w: directory at %d with %d fields is truncated", errBadTIFF, off, n)
	}
	for e := start; e < end; e += 12 {
		field := b[e : e+12]
		tag := order.Uint16(field[0:2])
		typ := order.Uint16(field[2:4])
		count := uint64(order.Uint32(field[4:8]))

		unit := uint64(1)
		if int(typ) < len(tiffTypeSize) && tiffTypeSize[typ] > 0 {
			unit = tiffTypeSize[typ]
		}
		length := count * unit
		if length > size {
			return 0, nil, fmt.Errorf("%w: field %#04x claims %d values of %d bytes", errBadTIFF, tag, count, unit)
		}
		if length > 4 {
			if at := uint64(order.Uint32(field[8:12])); at+length > size {
				return 0, nil, fmt.Errorf("%w: values of field %#04x at %d out of range", errBadTIFF, tag, at)
			}
		}

		if subIFDTags[tag] {
			switch typ {
			case 3:
				subs = append(subs, uint32(order.Uint16(field[8:10])))
			case 4, 13:
				subs = append(subs, order.Uint32(field[8:12]))
			}
		}
	}
	if end+4 <= size {
		next = order.Uint32(b[end:])
	}
	return next, subs, nil
}
