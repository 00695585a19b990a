package zipinspect

import (
	"encoding/binary"
)

type record struct {
	headerOffset  int64
	commentOffset int64
}

type directory struct {
	commentOffset int64
	records       []record
}

// readDirectory walks the central directory of b to recover what archive/zip
// keeps private: absolute local header offsets and comment positions. It
// expects exactly n records. Data prepended to the archive is accounted for
// the same way archive/zip does it.
func readDirectory(b []byte, n int) (directory, bool) {
	end := findDirEnd(b)
	if end < 0 {
		return directory{}, false
	}
	le := binary.LittleEndian
	size := int64(le.Uint32(b[end+12:]))
	offset := int64(le.Uint32(b[end+16:]))
	dirEnd := int64(end)

	if size == 0xffffffff || offset == 0xffffffff || le.Uint16(b[end+10:]) == 0xffff {
		loc := end - dir64LocatorLen
		if loc < 0 || le.Uint32(b[loc:]) != dir64LocatorSig {
			return directory{}, false
		}
		end64 := int64(le.Uint64(b[loc+8:]))
		if end64 < 0 || end64+56 > int64(len(b)) || le.Uint32(b[end64:]) != dir64EndSig {
			return directory{}, false
		}
		size = int64(le.Uint64(b[end64+40:]))
		offset = int64(le.Uint64(b[end64+48:]))
		dirEnd = end64
	}

	base := dirEnd - size - offset
	if base < 0 {
		base = 0
	}
	// archive/zip prefers a zero base when a directory header is found there
	if base > 0 && validHeader(b, offset) {
		base = 0
	}

	ret := directory{
		commentOffset: int64(end) + dirEndLen,
		records:       make([]record, 0, n),
	}
	p := base + offset
	for range n {
		if p < 0 || p+centralHeaderLen > int64(len(b)) || le.Uint32(b[p:]) != centralHeaderSig {
			return directory{}, false
		}
		nameLen := int64(le.Uint16(b[p+28:]))
		extraLen := int64(le.Uint16(b[p+30:]))
		commentLen := int64(le.Uint16(b[p+32:]))
		next := p + centralHeaderLen + nameLen + extraLen + commentLen
		if next > int64(len(b)) {
			return directory{}, false
		}

		local := int64(le.Uint32(b[p+42:]))
		if local == 0xffffffff {
			extra := b[p+centralHeaderLen+nameLen : p+centralHeaderLen+nameLen+extraLen]
			var ok bool
			local, ok = zip64Offset(extra, le.Uint32(b[p+24:]) == 0xffffffff, le.Uint32(b[p+20:]) == 0xffffffff)
			if !ok {
				return directory{}, false
			}
		}

		rec := record{headerOffset: base + local, commentOffset: -1}
		if rec.headerOffset < 0 || rec.headerOffset >= int64(len(b)) {
			rec.headerOffset = -1
		}
		if commentLen > 0 {
			rec.commentOffset = p + centralHeaderLen + nameLen + extraLen
		}
		ret.records = append(ret.records, rec)
		p = next
	}
	if ret.commentOffset >= int64(len(b)) {
		ret.commentOffset = -1
	}
	return ret, true
}

// validHeader reports whether a complete central directory header starts at p.
func validHeader(b []byte, p int64) bool {
	le := binary.LittleEndian
	if p < 0 || p+centralHeaderLen > int64(len(b)) || le.Uint32(b[p:]) != centralHeaderSig {
		return false
	}
	n := int64(le.Uint16(b[p+28:])) + int64(le.Uint16(b[p+30:])) + int64(le.Uint16(b[p+32:]))
	return p+centralHeaderLen+n <= int64(len(b))
}

// findDirEnd returns the position of the end of central directory record, the
// last one whose comment fits into b.
func findDirEnd(b []byte) int {
	stop := max(len(b)-dirEndLen-maxCommentLen, 0)
	for i := len(b) - dirEndLen; i >= stop; i-- {
		if binary.LittleEndian.Uint32(b[i:]) != dirEndSig {
			continue
		}
		commentLen := int(binary.LittleEndian.Uint16(b[i+20:]))
		if i+dirEndLen+commentLen <= len(b) {
			return i
		}
	}
	return -1
}

// zip64Offset reads the local header offset from a zip64 extended
// information field. The sizes precede it when their 32 bit fields overflow.
func zip64Offset(extra []byte, rawSize, compSize bool) (int64, bool) {
	le := binary.LittleEndian
	for len(extra) >= 4 {
		id := le.Uint16(extra)
		size := int(le.Uint16(extra[2:]))
		extra = extra[4:]
		if size > len(extra) {
			return 0, false
		}
		field := extra[:size]
		extra = extra[size:]
		if id != zip64ExtraID {
			continue
		}
		if rawSize {
			if len(field) < 8 {
				return 0, false
			}
			field = field[8:]
		}
		if compSize {
			if len(field) < 8 {
				return 0, false
			}
			field = field[8:]
		}
		if len(field) < 8 {
			return 0, false
		}
		return int64(le.Uint64(field)), true
	}
	return 0, false
}
