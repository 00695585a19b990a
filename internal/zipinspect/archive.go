package zipinspect

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"

	"github.com/klauspost/compress/flate"
)

const (
	flagEncrypted = 0x1

	localHeaderSig    = 0x04034b50
	centralHeaderSig  = 0x02014b50
	dirEndSig         = 0x06054b50
	dir64LocatorSig   = 0x07064b50
	dir64EndSig       = 0x06064b50
	localHeaderLen    = 30
	centralHeaderLen  = 46
	dirEndLen         = 22
	dir64LocatorLen   = 20
	zip64ExtraID      = 0x0001
	maxCommentLen     = 0xffff
	maxInflatedLength = 1 << 30
)

var ErrInvalid = errors.New("invalid zip archive")

// Entry is what the inspector knows about one central directory record.
type Entry struct {
	Name    string
	Method  uint16
	Flags   uint16
	Extra   []byte
	Comment string

	// StoredCRC is the central directory value, the authoritative one.
	StoredCRC uint32
	// ComputedCRC is valid when Verified is true.
	ComputedCRC uint32
	Verified    bool
	// VerifyErr is set when the payload could not be read back.
	VerifyErr error
	// Unsupported is set when the compression method is unknown.
	Unsupported bool

	// HeaderOffset is the absolute offset of the local header, -1 if unknown.
	HeaderOffset int64
	// CommentOffset is the absolute offset of the entry comment, -1 if unknown.
	CommentOffset int64
	LocalFlags    uint16
	HasLocal      bool
}

func (e Entry) Encrypted() bool {
	return e.Flags&flagEncrypted != 0
}

// Archive is a parsed zip container.
type Archive struct {
	Comment       string
	CommentOffset int64
	Entries       []Entry
}

// Open parses the central directory of b and verifies every entry which is
// not encrypted. A structural failure returns an error wrapping ErrInvalid.
// Encrypted entries stored without compression are checked against their
// plain bytes, everything else encrypted is left unverified.
func Open(ctx context.Context, b []byte) (Archive, error) {
	r, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && r != nil) {
		return Archive{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	r.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})

	dir, dirOK := readDirectory(b, len(r.File))
	if !dirOK {
		slog.DebugContext(ctx, "central directory offsets not available")
	}

	ret := Archive{
		Comment:       r.Comment,
		CommentOffset: -1,
		Entries:       make([]Entry, 0, len(r.File)),
	}
	if dirOK {
		ret.CommentOffset = dir.commentOffset
	}

	for idx, f := range r.File {
		if err := ctx.Err(); err != nil {
			return Archive{}, err
		}
		e := Entry{
			Name:          f.Name,
			Method:        f.Method,
			Flags:         f.Flags,
			Extra:         f.Extra,
			Comment:       f.Comment,
			StoredCRC:     f.CRC32,
			HeaderOffset:  -1,
			CommentOffset: -1,
		}
		if dirOK {
			rec := dir.records[idx]
			e.HeaderOffset = rec.headerOffset
			e.CommentOffset = rec.commentOffset
			e.LocalFlags, e.HasLocal = localFlags(b, rec.headerOffset)
		}
		verify(ctx, f, &e)
		ret.Entries = append(ret.Entries, e)
	}
	return ret, nil
}

func verify(ctx context.Context, f *zip.File, e *Entry) {
	var (
		rc  io.Reader
		err error
	)
	switch {
	case !e.Encrypted():
		var c io.ReadCloser
		c, err = f.Open()
		if err == nil {
			defer func() {
				_ = c.Close()
			}()
		}
		rc = c
	case f.Method == zip.Store:
		rc, err = f.OpenRaw()
	default:
		return
	}
	if err != nil {
		if errors.Is(err, zip.ErrAlgorithm) {
			e.Unsupported = true
			return
		}
		e.VerifyErr = err
		return
	}

	h := crc32.NewIEEE()
	n, err := io.Copy(h, io.LimitReader(rc, maxInflatedLength+1))
	if n > maxInflatedLength {
		slog.DebugContext(ctx, "entry too big to verify", "name", e.Name)
		e.VerifyErr = fmt.Errorf("entry expands to more than %d bytes", maxInflatedLength)
		return
	}
	// the reader reports ErrChecksum itself, but the comparison is ours
	if err != nil && !errors.Is(err, zip.ErrChecksum) {
		e.VerifyErr = err
	}
	e.ComputedCRC = h.Sum32()
	e.Verified = e.VerifyErr == nil
}

func localFlags(b []byte, off int64) (uint16, bool) {
	if off < 0 || off+localHeaderLen > int64(len(b)) {
		return 0, false
	}
	if binary.LittleEndian.Uint32(b[off:]) != localHeaderSig {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b[off+6:]), true
}
