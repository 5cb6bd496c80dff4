package media

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/WrongMoves/roop/internal/domain/entity"
	"github.com/gabriel-vasile/mimetype"
)

var (
	imageExtensions = []string{".png", ".jpg", ".jpeg", ".webp", ".bmp"}
	videoExtensions = []string{".mp4", ".mkv", ".mov", ".avi", ".webm", ".m4v", ".gif"}
)

// Inspector classifies files by sniffing their content, using the extension
// only when the content is inconclusive.
type Inspector struct{}

func NewInspector() *Inspector {
	return &Inspector{}
}

func (i *Inspector) Kind(path string) entity.MediaKind {
	if kind := sniff(path); kind != entity.MediaUnknown {
		return kind
	}
	switch {
	case hasExtension(path, imageExtensions):
		return entity.MediaImage
	case hasExtension(path, videoExtensions):
		return entity.MediaVideo
	}
	return entity.MediaUnknown
}

func (i *Inspector) IsImage(path string) bool {
	return sniff(path) == entity.MediaImage
}

func (i *Inspector) IsVideo(path string) bool {
	return sniff(path) == entity.MediaVideo
}

func hasExtension(path string, exts []string) bool {
	return slices.Contains(exts, strings.ToLower(filepath.Ext(path)))
}

func sniff(path string) entity.MediaKind {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return entity.MediaUnknown
	}
	switch {
	case mtype.Is("image/gif"):
		// animated gifs go through the frame path
		return entity.MediaVideo
	case strings.HasPrefix(mtype.String(), "image/"):
		return entity.MediaImage
	case strings.HasPrefix(mtype.String(), "video/"):
		return entity.MediaVideo
	}
	return entity.MediaUnknown
}
