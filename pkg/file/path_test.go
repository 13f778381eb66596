package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceExt(t *testing.T) {
	tests := []struct {
		name string
		path string
		ext  string
		want string
	}{
		{name: "swap", path: "/media/song.mp3", ext: ".srt", want: "/media/song.srt"},
		{name: "missing dot", path: "/media/song.mp3", ext: "srt", want: "/media/song.srt"},
		{name: "no ext", path: "/media/song", ext: ".srt", want: "/media/song.srt"},
		{name: "hidden file", path: "/media/.env", ext: ".bak", want: "/media/.env.bak"},
		{name: "empty", path: "", ext: ".srt", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReplaceExt(tt.path, tt.ext))
		})
	}
}

func TestWithSuffix(t *testing.T) {
	assert.Equal(t, "a/song_edited.srt", WithSuffix("a/song.srt", "_edited"))
	assert.Equal(t, "a/song_edited", WithSuffix("a/song", "_edited"))
}

func TestWriteAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.srt")

	require.NoError(t, WriteAtomic(path, []byte("first"), 0o644))
	require.NoError(t, WriteAtomic(path, []byte("second"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
