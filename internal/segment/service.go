package segment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/segmentflow/internal/job"
	"github.com/your-org/segmentflow/internal/media"
)

var segmentName = regexp.MustCompile(`^` + media.SegmentPrefix + `(\d+)` + regexp.QuoteMeta(media.SegmentExt) + `$`)

// Publisher emits job lifecycle events. *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error
}

// Archiver mirrors completed segment files to long-term storage.
type Archiver interface {
	ArchiveSegments(ctx context.Context, assetID string, paths []string) error
}

// Service owns the segmentation pipeline: it prepares the per-asset
// output directory, drives the Splitter, and maps the results to
// external URLs. When run as a detached background task it delivers
// the outcome exclusively through the job registry.
type Service struct {
	splitter       Splitter
	layout         media.Layout
	registry       *job.Registry
	publisher      Publisher
	archiver       Archiver
	logger         *zap.Logger
	segmentSeconds int
	removeArtifact bool
}

type Params struct {
	Splitter       Splitter
	Layout         media.Layout
	Registry       *job.Registry
	Publisher      Publisher // optional
	Archiver       Archiver  // optional
	Logger         *zap.Logger
	SegmentSeconds int
	RemoveArtifact bool
}

// NewService constructs a segmentation Service.
func NewService(p Params) *Service {
	if p.SegmentSeconds <= 0 {
		p.SegmentSeconds = 1200
	}
	return &Service{
		splitter:       p.Splitter,
		layout:         p.Layout,
		registry:       p.Registry,
		publisher:      p.Publisher,
		archiver:       p.Archiver,
		logger:         p.Logger,
		segmentSeconds: p.SegmentSeconds,
		removeArtifact: p.RemoveArtifact,
	}
}

// Segment splits the assembled artifact into fixed-duration segments
// and returns their external URLs in ascending numeric order. Stale
// output from a previous run at the same asset is removed first.
func (s *Service) Segment(ctx context.Context, assetID, assembledPath string) ([]string, error) {
	urls, _, err := s.run(ctx, assetID, assembledPath)
	return urls, err
}

// run does the work of Segment and additionally returns the segment
// numbers found on disk, so URLs and archive paths always describe the
// same files.
func (s *Service) run(ctx context.Context, assetID, assembledPath string) ([]string, []int, error) {
	outDir := s.layout.SegmentDir(assetID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create segment dir: %w", err)
	}

	if err := s.clearStale(assetID, outDir); err != nil {
		return nil, nil, err
	}

	if err := s.splitter.Split(ctx, assembledPath, outDir, s.segmentSeconds); err != nil {
		return nil, nil, err
	}

	numbers, err := listSegmentNumbers(outDir)
	if err != nil {
		return nil, nil, fmt.Errorf("list segments: %w", err)
	}

	urls := make([]string, 0, len(numbers))
	for _, n := range numbers {
		urls = append(urls, media.SegmentURL(assetID, n))
	}
	s.logger.Info("segmentation finished",
		zap.String("asset_id", assetID), zap.Int("segments", len(urls)))
	return urls, numbers, nil
}

// Process is the detached background entry used after upload hand-off.
// The caller has already registered assetID as processing; the only
// externally visible effects here are the terminal registry write and
// the lifecycle event.
func (s *Service) Process(assetID, assembledPath string) {
	ctx := context.Background()
	started := time.Now()

	urls, numbers, err := s.run(ctx, assetID, assembledPath)
	if err != nil {
		s.logger.Error("segmentation failed",
			zap.String("asset_id", assetID), zap.Error(err),
			zap.Duration("elapsed", time.Since(started)))
		msg := failureMessage(err)
		s.registry.Fail(assetID, msg)
		s.publishEvent(ctx, assetID, job.Event{
			AssetID:    assetID,
			Status:     job.StateFailed,
			Error:      msg,
			FinishedAt: time.Now().UTC(),
		})
		return
	}

	if s.archiver != nil {
		if err := s.archiver.ArchiveSegments(ctx, assetID, segmentPaths(s.layout, assetID, numbers)); err != nil {
			s.logger.Warn("segment archival failed", zap.String("asset_id", assetID), zap.Error(err))
		}
	}

	if s.removeArtifact {
		if err := os.Remove(assembledPath); err != nil {
			s.logger.Warn("could not remove assembled artifact",
				zap.String("asset_id", assetID), zap.Error(err))
		}
	}

	s.registry.Complete(assetID, urls)
	s.publishEvent(ctx, assetID, job.Event{
		AssetID:      assetID,
		Status:       job.StateCompleted,
		SegmentCount: len(urls),
		SegmentURLs:  urls,
		FinishedAt:   time.Now().UTC(),
	})
}

func (s *Service) publishEvent(ctx context.Context, assetID string, ev job.Event) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("marshal job event", zap.Error(err))
		return
	}
	headers := map[string]string{
		"asset_id":   assetID,
		"event_type": "segmentation." + string(ev.Status),
	}
	if err := s.publisher.Publish(ctx, []byte(assetID), payload, headers); err != nil {
		s.logger.Error("publish job event", zap.String("asset_id", assetID), zap.Error(err))
	}
}

// clearStale removes segment files matching the naming convention,
// left over from a previous failed or aborted run at the same asset.
func (s *Service) clearStale(assetID, outDir string) error {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return fmt.Errorf("read segment dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !segmentName.MatchString(e.Name()) {
			continue
		}
		s.logger.Warn("removing stale segment",
			zap.String("asset_id", assetID), zap.String("file", e.Name()))
		if err := os.Remove(filepath.Join(outDir, e.Name())); err != nil {
			return fmt.Errorf("remove stale segment %s: %w", e.Name(), err)
		}
	}
	return nil
}

// listSegmentNumbers returns the segment numbers present in dir sorted
// numerically. String order would put see10 before see2.
func listSegmentNumbers(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var numbers []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := segmentName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers, nil
}

func segmentPaths(layout media.Layout, assetID string, numbers []int) []string {
	paths := make([]string, 0, len(numbers))
	for _, n := range numbers {
		paths = append(paths, filepath.Join(layout.SegmentDir(assetID), media.SegmentFilename(n)))
	}
	return paths
}

// failureMessage maps a pipeline error to the stable external status
// message. Tool diagnostics are included; internal paths are not.
func failureMessage(err error) string {
	var toolErr *ToolError
	switch {
	case errors.Is(err, ErrSplitTimeout):
		return "segmentation timed out"
	case errors.As(err, &toolErr):
		return fmt.Sprintf("segmentation tool failed (exit %d): %s", toolErr.ExitCode, toolErr.Stderr)
	default:
		return "segmentation failed"
	}
}
