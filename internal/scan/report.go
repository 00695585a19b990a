package scan

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/bytesleuth/sleuth/internal/model"
)

const lineWidth = 16

func digest(b []byte) model.Digest {
	m := md5.Sum(b)
	s := sha256.Sum256(b)
	return model.Digest{
		MD5:    hex.EncodeToString(m[:]),
		SHA256: hex.EncodeToString(s[:]),
	}
}

// preview dumps the first n bytes and, when the blob is longer than 2n, the
// last n bytes as well.
func preview(b []byte, n int) model.Preview {
	p := model.Preview{
		Head: dump(b[:min(n, len(b))], 0),
		Tail: []string{},
	}
	if len(b) > 2*n {
		off := len(b) - n
		p.Tail = dump(b[off:], off)
	}
	return p
}

// dump formats b as "0x%08x: <hex>  |ascii|" lines with absolute offsets.
func dump(b []byte, base int) []string {
	ret := make([]string, 0, (len(b)+lineWidth-1)/lineWidth)
	var sb strings.Builder
	for i := 0; i < len(b); i += lineWidth {
		chunk := b[i:min(i+lineWidth, len(b))]
		sb.Reset()
		fmt.Fprintf(&sb, "0x%08x: ", base+i)
		for j, c := range chunk {
			if j > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "%02x", c)
		}
		// pad hex column to 16*3-1
		sb.WriteString(strings.Repeat(" ", 3*(lineWidth-len(chunk))))
		sb.WriteString("  |")
		for _, c := range chunk {
			if c >= 0x20 && c < 0x7f {
				sb.WriteByte(c)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('|')
		ret = append(ret, sb.String())
	}
	return ret
}

func round4(f float64) float64 {
	return math.Round(f*1e4) / 1e4
}

// readLimited reads r fully, failing with model.ErrTooBig when it holds more
// than limit bytes. Stat sizes can lie for special files.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("more than %d bytes: %w", limit, model.ErrTooBig)
	}
	return b, nil
}
