package printable_test

import (
	"testing"

	"github.com/bytesleuth/sleuth/internal/model"
	"github.com/bytesleuth/sleuth/internal/printable"

	"github.com/stretchr/testify/require"
)

func TestStrings(t *testing.T) {
	t.Parallel()

	data := []byte("abc\x00abcd\x01\x02hello world\xffxyz\x7fTAIL")
	got, truncated := printable.Strings(data, 4, 0)
	require.False(t, truncated)
	require.Equal(t, []model.ExtractedString{
		{Offset: 4, Value: "abcd"},
		{Offset: 10, Value: "hello world"},
		{Offset: 26, Value: "TAIL"},
	}, got)

	got, truncated = printable.Strings(data, 4, 2)
	require.True(t, truncated)
	require.Len(t, got, 2)

	got, truncated = printable.Strings(data, 4, 3)
	require.False(t, truncated)
	require.Len(t, got, 3)

	got, _ = printable.Strings(nil, 4, 0)
	require.Empty(t, got)
}

func TestFlags(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		given string
		then  []string
	}{
		{"flag{abc_123}", []string{"flag{abc_123}"}},
		{"xx CTF{XYZ} yy", []string{"CTF{XYZ}"}},
		{"Key{test}", []string{"Key{test}"}},
		{"notaflag{x}", nil},
		{"my_flag{underscore}", []string{"flag{underscore}"}},
		{"1ctf{x} -ctf{y}", []string{"ctf{y}"}},
		{"\xffkey{raw}", []string{"key{raw}"}},
		{"\u212aey{kelvin}", nil},
		{"fLaG{mixed}", []string{"fLaG{mixed}"}},
		{"flag{a} and ctf{b}", []string{"flag{a}", "ctf{b}"}},
		{"flag{a}b}", []string{"flag{a}"}},
		{"flag{}", []string{"flag{}"}},
		{"\x00\x01flag{bin}\xff", []string{"flag{bin}"}},
		{"flag{split\nline}", nil},
	}

	for _, tt := range testCases {
		t.Run(tt.given, func(t *testing.T) {
			t.Parallel()
			var got []string
			for _, f := range printable.Flags([]byte(tt.given)) {
				got = append(got, f.Value)
			}
			require.Equal(t, tt.then, got)
		})
	}
}

func TestDetect(t *testing.T) {
	t.Parallel()

	data := []byte("\x00\x00junk FLAG{upper} more\x00")
	d := printable.New(4, 1)
	res, err := d.Detect(t.Context(), model.NewBlob(data, "a.bin"), model.TypeAnalysis{})
	require.NoError(t, err)

	require.Len(t, res.Findings, 1)
	f := res.Findings[0]
	require.Equal(t, model.KindPotentialFlag, f.Kind)
	require.Equal(t, model.SeverityCritical, f.Severity())
	require.Equal(t, model.Flag("FLAG{upper}"), f.Payload)
	require.Equal(t, int64(7), *f.Offset)

	require.Equal(t, []model.ExtractedString{{Offset: 2, Value: "junk FLAG{upper} more"}}, res.Strings)
	require.Empty(t, res.Warnings)
}
