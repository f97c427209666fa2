package db

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/ngfkit/internal/format"
)

type tagProbe struct{ V int64 }

func Test_Tagged_RoundTrip(t *testing.T) {
	for _, off := range []Offset{0x1010, 0x1020, 0xFFFF0, 1 << 40} {
		r := refAt[tagProbe](off)
		for tag := range uint8(TagLimit) {
			obj := Tagged(r, tag)
			require.Equal(t, tag, GetTag(obj))
			require.True(t, Untagged[tagProbe](obj).Equal(r))
			require.Equal(t, off, obj.Offset())
			require.False(t, obj.IsNull())
		}
	}
}

func Test_Tagged_NullKeepsTag(t *testing.T) {
	obj := Tagged(Ref[tagProbe]{}, 5)
	require.True(t, obj.IsNull())
	require.Equal(t, uint8(5), GetTag(obj))
	require.True(t, Untagged[tagProbe](obj).IsNull())
}

func Test_Tagged_PanicsOutOfRange(t *testing.T) {
	r := refAt[tagProbe](0x1010)
	require.Panics(t, func() { Tagged(r, TagLimit) })
	require.Panics(t, func() { Tagged(r, 255) })
	require.Panics(t, func() { Tagged(refAt[tagProbe](0x1011), 1) })
}

func Test_TagLimit_MatchesAlignment(t *testing.T) {
	require.Equal(t, format.Alignment, TagLimit)
}

func Test_Ref_String(t *testing.T) {
	require.Equal(t, "ref(0x1010)", refAt[tagProbe](0x1010).String())
	require.Equal(t, "obj(0x1010/3)", Tagged(refAt[tagProbe](0x1010), 3).String())
}
