package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOutputFilename(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		format string
		want   string
	}{
		{"local file", "photos/cat.jpeg", "webp", "out/cat_cropped.webp"},
		{"keeps extension", "cat.png", "", "out/cat_cropped.png"},
		{"url", "https://example.com/img/dog.jpg?w=200", "png", "out/dog_cropped.png"},
		{"url without path", "https://example.com/", "jpg", "out/image_cropped.jpg"},
		{"data uri", "data:image/png;base64,AAAA", "png", "out/image_cropped.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.want), GenerateOutputFilename(tt.input, "out", "", "_cropped", tt.format))
		})
	}

	assert.Equal(t, filepath.Join("out", "pre_cat.jpg"), GenerateOutputFilename("cat", "out", "pre_", "", ""))
}

func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("a/b/c.JPG"))
	assert.True(t, IsImageFile("x.webp"))
	assert.False(t, IsImageFile("notes.txt"))
	assert.False(t, IsImageFile("noext"))
}

func TestIsRemoteSource(t *testing.T) {
	assert.True(t, IsRemoteSource("http://a/b.png"))
	assert.True(t, IsRemoteSource("https://a/b.png"))
	assert.True(t, IsRemoteSource("data:image/png;base64,AA"))
	assert.False(t, IsRemoteSource("/tmp/b.png"))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", SanitizeFilename("a/b:c"))
	assert.Equal(t, "name", SanitizeFilename(" name. "))
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "1.5 KB", FormatFileSize(1536))
	assert.Equal(t, "2.0 MB", FormatFileSize(2<<20))
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureDir(filepath.Join(dir, "sub")))
	for _, name := range []string{"a.png", "sub/b.jpg", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	files, err := ListImageFiles(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "sub", "b.jpg")}, files)

	assert.True(t, FileExists(filepath.Join(dir, "a.png")))
	assert.False(t, FileExists(filepath.Join(dir, "sub")))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
}
