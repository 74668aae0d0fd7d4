package p4rtclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath_BracketedKeys(t *testing.T) {
	t.Parallel()

	elems, err := ParsePath("/a/b[k1=v1][k2=v2]/c")
	require.NoError(t, err)
	require.Len(t, elems, 3)

	assert.Equal(t, "a", elems[0].Name)
	assert.Nil(t, elems[0].Keys)

	assert.Equal(t, "b", elems[1].Name)
	assert.Equal(t, map[string]string{"k1": "v1", "k2": "v2"}, elems[1].Keys)

	assert.Equal(t, "c", elems[2].Name)
}

func TestParsePath_Empty(t *testing.T) {
	t.Parallel()
	elems, err := ParsePath("")
	require.NoError(t, err)
	assert.Nil(t, elems)
}

func TestParsePath_Malformed(t *testing.T) {
	t.Parallel()
	_, err := ParsePath("/a[unterminated")
	assert.Error(t, err)
}
