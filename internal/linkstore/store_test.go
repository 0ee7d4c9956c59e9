package linkstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadList(t *testing.T) {
	t.Parallel()

	store := New(filepath.Join(t.TempDir(), "links"))

	path, err := store.Write("demo", []string{"https://t.me/demo/1", "https://t.me/demo/4"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Dir(), "demo_links.txt"), path)

	links, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://t.me/demo/1", "https://t.me/demo/4"}, links)

	_, err = store.Write("c123", []string{"https://t.me/c/123/9"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("x\n"), 0o644))

	files, err := store.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "c123", files[0].Channel)
	assert.Equal(t, 1, files[0].Count)
	assert.Equal(t, "demo", files[1].Channel)
	assert.Equal(t, 2, files[1].Count)
}

func TestReadSkipsBlankLines(t *testing.T) {
	t.Parallel()

	store := New(t.TempDir())
	path := store.PathFor("demo")
	require.NoError(t, os.WriteFile(path, []byte("\n  https://t.me/demo/1  \n\n\nhttps://t.me/demo/2\n"), 0o644))

	links, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://t.me/demo/1", "https://t.me/demo/2"}, links)
}

func TestReadMissingFile(t *testing.T) {
	t.Parallel()

	store := New(t.TempDir())
	_, err := store.Read(store.PathFor("absent"))
	assert.ErrorIs(t, err, ErrNoLinkFile)
}

func TestListMissingDir(t *testing.T) {
	t.Parallel()

	files, err := New(filepath.Join(t.TempDir(), "none")).List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestResolveSource(t *testing.T) {
	t.Parallel()

	store := New("links")
	tests := []struct {
		name string
		arg  string
		want string
	}{
		{name: "file name", arg: "demo_links.txt", want: filepath.Join("links", "demo_links.txt")},
		{name: "file name cannot escape dir", arg: "../secret.txt", want: filepath.Join("links", "secret.txt")},
		{name: "handle", arg: "@demo", want: filepath.Join("links", "demo_links.txt")},
		{name: "channel url", arg: "https://t.me/demo", want: filepath.Join("links", "demo_links.txt")},
		{name: "private channel", arg: "-1001234567890", want: filepath.Join("links", "c1234567890_links.txt")},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, store.ResolveSource(testCase.arg))
		})
	}
}
