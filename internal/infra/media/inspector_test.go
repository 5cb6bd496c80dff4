package media

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/WrongMoves/roop/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestInspectorSniffsContent(t *testing.T) {
	dir := t.TempDir()
	// content wins over a misleading extension
	disguised := filepath.Join(dir, "photo.mp4")
	writePNG(t, disguised)

	i := NewInspector()
	assert.True(t, i.IsImage(disguised))
	assert.False(t, i.IsVideo(disguised))
	assert.Equal(t, entity.MediaImage, i.Kind(disguised))
}

func TestInspectorFallsBackToExtension(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(corrupt, []byte("not really a video"), 0o644))

	i := NewInspector()
	assert.False(t, i.IsVideo(corrupt))
	assert.Equal(t, entity.MediaVideo, i.Kind(corrupt))
	assert.Equal(t, entity.MediaUnknown, i.Kind(filepath.Join(dir, "notes.txt")))
}

func TestKindFallsBackToExtensionCaseInsensitively(t *testing.T) {
	dir := t.TempDir()
	i := NewInspector()
	assert.Equal(t, entity.MediaImage, i.Kind(filepath.Join(dir, "a", "photo.JPG")))
	assert.Equal(t, entity.MediaImage, i.Kind(filepath.Join(dir, "face.webp")))
	assert.Equal(t, entity.MediaVideo, i.Kind(filepath.Join(dir, "clip.MOV")))
}
