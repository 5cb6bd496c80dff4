package port

import "github.com/WrongMoves/roop/internal/domain/entity"

type MediaInspector interface {
	// Kind sniffs content first and falls back to the extension.
	Kind(path string) entity.MediaKind
	IsImage(path string) bool
	IsVideo(path string) bool
}
