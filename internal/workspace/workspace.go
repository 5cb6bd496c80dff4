// Package workspace owns the per-target scratch directory that holds
// extracted frames while a video job runs.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/WrongMoves/roop/internal/domain/entity"
	"github.com/WrongMoves/roop/internal/domain/port"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

const (
	defaultDirName = "temp"
	videoFileName  = "temp.mp4"
	frameDigits    = 4
)

type Manager struct {
	root      string
	extractor port.FrameExtractor
	assembler port.VideoAssembler
	logger    *zap.Logger
}

// NewManager places workspaces under root, or under a "temp" directory next
// to each target when root is empty.
func NewManager(root string, extractor port.FrameExtractor, assembler port.VideoAssembler, logger *zap.Logger) *Manager {
	return &Manager{root: root, extractor: extractor, assembler: assembler, logger: logger}
}

// PathFor derives a stable workspace directory from the target's identity.
func (m *Manager) PathFor(targetPath string) string {
	abs, err := filepath.Abs(targetPath)
	if err != nil {
		abs = targetPath
	}
	base := filepath.Base(abs)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	name := fmt.Sprintf("%s-%08x", stem, uint32(xxhash.Sum64String(abs)))
	return filepath.Join(m.baseDir(abs), name)
}

func (m *Manager) baseDir(absTarget string) string {
	if m.root != "" {
		return m.root
	}
	return filepath.Join(filepath.Dir(absTarget), defaultDirName)
}

// Create replaces any stale workspace for the target with an empty one.
func (m *Manager) Create(targetPath, frameFormat string) (*Workspace, error) {
	dir := m.PathFor(targetPath)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("remove stale workspace: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	m.logger.Debug("workspace created", zap.String("dir", dir), zap.String("target", targetPath))
	return &Workspace{Dir: dir, TargetPath: targetPath, Format: frameFormat, m: m}, nil
}

// Discard removes the workspace derived for targetPath without needing a
// *Workspace. It only touches the filesystem and is safe to call from a
// signal handler while the main flow is running.
func (m *Manager) Discard(targetPath string, retain bool) error {
	if retain {
		return nil
	}
	dir := m.PathFor(targetPath)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("discard workspace %s: %w", dir, err)
	}
	if m.root == "" {
		// drop the shared temp parent once the last workspace is gone
		_ = os.Remove(filepath.Dir(dir))
	}
	return nil
}

// FrameRate returns the target's native rate when keepFPS is set, otherwise
// (or when probing fails) the fixed fallback.
func FrameRate(ctx context.Context, detector port.FPSDetector, targetPath string, keepFPS bool) float64 {
	if !keepFPS || detector == nil {
		return entity.FallbackFPS
	}
	fps, err := detector.DetectFPS(ctx, targetPath)
	if err != nil || fps <= 0 {
		return entity.FallbackFPS
	}
	return fps
}

// Workspace is exclusively owned by one job.
type Workspace struct {
	Dir        string
	TargetPath string
	Format     string

	m         *Manager
	discarded atomic.Bool
}

// FramePattern is the printf-style naming shared by extraction and reassembly.
func (w *Workspace) FramePattern() string {
	return filepath.Join(w.Dir, "%0"+strconv.Itoa(frameDigits)+"d."+w.Format)
}

// VideoPath is where Finalize writes the reassembled, silent video.
func (w *Workspace) VideoPath() string {
	return filepath.Join(w.Dir, videoFileName)
}

// Populate extracts the target's frames at fps into the workspace.
func (w *Workspace) Populate(ctx context.Context, fps float64, quality int) error {
	err := w.m.extractor.ExtractFrames(ctx, port.FrameExtractionRequest{
		TargetPath:   w.TargetPath,
		FramePattern: w.FramePattern(),
		FPS:          fps,
		Quality:      quality,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrExtraction, err)
	}
	return nil
}

// ListFrames returns frame paths in frame-number order. An empty slice means
// there is nothing to process.
func (w *Workspace) ListFrames() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(w.Dir, "*."+w.Format))
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	frames := paths[:0]
	for _, p := range paths {
		if _, ok := frameNumber(p); ok {
			frames = append(frames, p)
		}
	}
	sort.Slice(frames, func(i, j int) bool {
		a, _ := frameNumber(frames[i])
		b, _ := frameNumber(frames[j])
		return a < b
	})
	return frames, nil
}

// Finalize reassembles the frames into VideoPath.
func (w *Workspace) Finalize(ctx context.Context, fps float64, encoder string, quality int) error {
	err := w.m.assembler.AssembleVideo(ctx, port.AssembleRequest{
		FramePattern: w.FramePattern(),
		FPS:          fps,
		Encoder:      encoder,
		Quality:      quality,
		OutputPath:   w.VideoPath(),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrReassembly, err)
	}
	if _, err := os.Stat(w.VideoPath()); err != nil {
		return fmt.Errorf("%w: reassembled video missing: %v", entity.ErrReassembly, err)
	}
	return nil
}

// MoveVideo moves the reassembled video to dest, replacing dest.
func (w *Workspace) MoveVideo(dest string) error {
	src := w.VideoPath()
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("reassembled video missing: %w", err)
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("replace output: %w", err)
	}
	return moveFile(src, dest)
}

// Discard deletes the workspace unless retain is set. It is idempotent.
func (w *Workspace) Discard(retain bool) error {
	if retain {
		w.m.logger.Info("retaining temporary frames", zap.String("dir", w.Dir))
		return nil
	}
	if err := w.m.Discard(w.TargetPath, false); err != nil {
		return err
	}
	if w.discarded.CompareAndSwap(false, true) {
		w.m.logger.Debug("workspace discarded", zap.String("dir", w.Dir))
	}
	return nil
}

func frameNumber(path string) (int, bool) {
	base := filepath.Base(path)
	n, err := strconv.Atoi(strings.TrimSuffix(base, filepath.Ext(base)))
	return n, err == nil
}

func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	// cross-device fallback
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
