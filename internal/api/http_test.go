package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/segmentflow/internal/job"
	"github.com/your-org/segmentflow/internal/media"
	"github.com/your-org/segmentflow/internal/segment"
	"github.com/your-org/segmentflow/internal/upload"
)

const testAssetID = "b3f1c0de-3b7d-4bad-9bdd-2b0d7b3dcb6d"

// stubSplitter copies the assembled artifact into two segment files so
// segment serving can be exercised end to end without ffmpeg.
type stubSplitter struct{}

func (stubSplitter) Split(ctx context.Context, inputPath, outputDir string, segmentSeconds int) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	half := len(data) / 2
	if err := os.WriteFile(filepath.Join(outputDir, media.SegmentFilename(1)), data[:half], 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, media.SegmentFilename(2)), data[half:], 0o644)
}

func newTestHandler(t *testing.T) (*HTTPHandler, *job.Registry, media.Layout) {
	t.Helper()
	root := t.TempDir()
	logger := zap.NewNop()

	chunks, err := upload.NewChunkStore(filepath.Join(root, "temp_uploads"))
	require.NoError(t, err)
	layout := media.Layout{Root: filepath.Join(root, "uploads")}
	registry := job.NewRegistry()

	segments := segment.NewService(segment.Params{
		Splitter:       stubSplitter{},
		Layout:         layout,
		Registry:       registry,
		Logger:         logger,
		SegmentSeconds: 60,
		RemoveArtifact: true,
	})

	h := NewHTTPHandler(Params{
		Chunks:       chunks,
		Assembler:    upload.NewAssembler(chunks, layout, logger),
		Segments:     segments,
		Registry:     registry,
		Guard:        segment.NewAccessGuard(layout),
		Logger:       logger,
		MaxSizeBytes: 1 << 20,
		FormMemBytes: 1 << 20,
	})
	return h, registry, layout
}

func postChunk(t *testing.T, h *HTTPHandler, sessionID, assetID string, index, total int, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("uploadId", sessionID))
	require.NoError(t, mw.WriteField("videoId", assetID))
	require.NoError(t, mw.WriteField("chunkIndex", strconv.Itoa(index)))
	require.NoError(t, mw.WriteField("totalChunks", strconv.Itoa(total)))
	fw, err := mw.CreateFormFile("file", "blob")
	require.NoError(t, err)
	_, err = fw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chunks", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func getJSON(t *testing.T, h *HTTPHandler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return rec, payload
}

func waitForTerminal(t *testing.T, registry *job.Registry, assetID string) job.Status {
	t.Helper()
	var st job.Status
	require.Eventually(t, func() bool {
		var ok bool
		st, ok = registry.Get(assetID)
		return ok && st.State.Terminal()
	}, 2*time.Second, 10*time.Millisecond)
	return st
}

func TestUploadPollFetchEndToEnd(t *testing.T) {
	h, registry, _ := newTestHandler(t)

	payload := []byte("0123456789abcdef")
	parts := [][]byte{payload[:6], payload[6:11], payload[11:]}

	// Chunks arrive out of order; the final index triggers assembly.
	rec := postChunk(t, h, "sess-e2e", testAssetID, 1, 3, parts[1])
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = postChunk(t, h, "sess-e2e", testAssetID, 0, 3, parts[0])
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postChunk(t, h, "sess-e2e", testAssetID, 2, 3, parts[2])
	require.Equal(t, http.StatusAccepted, rec.Code)

	var handoff map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &handoff))
	assert.Equal(t, "/api/v1/status/"+testAssetID, handoff["status_url"])

	// Hand-off registered the job before the response was written, so
	// an immediate poll never sees not_found.
	rec, status := getJSON(t, h, handoff["status_url"])
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, []string{"processing", "completed"}, status["status"])

	st := waitForTerminal(t, registry, testAssetID)
	require.Equal(t, job.StateCompleted, st.State)
	require.Equal(t, []string{
		"/" + testAssetID + "/see1.mp4",
		"/" + testAssetID + "/see2.mp4",
	}, st.SegmentURLs)

	// Fetch both segments; concatenated they equal the upload.
	var got []byte
	for _, u := range st.SegmentURLs {
		req := httptest.NewRequest(http.MethodGet, u, nil)
		rec := httptest.NewRecorder()
		h.Router().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, u)
		body, err := io.ReadAll(rec.Body)
		require.NoError(t, err)
		got = append(got, body...)
	}
	assert.Equal(t, payload, got)
}

func TestDuplicateFinalChunkDoesNotRestartPipeline(t *testing.T) {
	h, registry, layout := newTestHandler(t)

	rec := postChunk(t, h, "sess-a", testAssetID, 0, 1, []byte("payload"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	first := waitForTerminal(t, registry, testAssetID)
	require.Equal(t, job.StateCompleted, first.State)
	require.NoFileExists(t, layout.AssembledPath(testAssetID),
		"assembled artifact is removed once segmentation completes")

	// Client retry with a fresh session for the same asset: the
	// terminal job record stays untouched and the artifact is not
	// resurrected.
	rec = postChunk(t, h, "sess-b", testAssetID, 0, 1, []byte("payload"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	st, ok := registry.Get(testAssetID)
	require.True(t, ok)
	assert.Equal(t, first.State, st.State)
	assert.Equal(t, first.SegmentURLs, st.SegmentURLs)

	assert.NoFileExists(t, layout.AssembledPath(testAssetID),
		"retry after completion must not rebuild the artifact")
	assert.NoDirExists(t, h.chunks.SessionDir("sess-b"),
		"retry scratch data is reclaimed")

	// Segments still serve after the retry.
	req := httptest.NewRequest(http.MethodGet, st.SegmentURLs[0], nil)
	seg := httptest.NewRecorder()
	h.Router().ServeHTTP(seg, req)
	assert.Equal(t, http.StatusOK, seg.Code)
}

func TestChunkValidation(t *testing.T) {
	h, _, _ := newTestHandler(t)

	tests := []struct {
		name    string
		session string
		asset   string
		index   int
		total   int
	}{
		{"malformed asset id", "s", "not-a-uuid", 0, 1},
		{"traversal asset id", "s", "../etc", 0, 1},
		{"negative index", "s", testAssetID, -1, 1},
		{"index beyond total", "s", testAssetID, 3, 3},
		{"zero total", "s", testAssetID, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postChunk(t, h, tt.session, tt.asset, tt.index, tt.total, []byte("x"))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestFinalChunkWithMissingChunksFails(t *testing.T) {
	h, registry, _ := newTestHandler(t)

	// Only the final chunk of three ever arrives.
	rec := postChunk(t, h, "sess-gap", testAssetID, 2, 3, []byte("tail"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	_, ok := registry.Get(testAssetID)
	assert.False(t, ok, "no job may be registered when assembly fails")
}

func TestStatusUnknownAsset(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec, payload := getJSON(t, h, "/api/v1/status/"+testAssetID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", payload["status"])
}

func TestStatusMalformedAsset(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec, _ := getJSON(t, h, "/api/v1/status/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSegmentFetchOutcomes(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec, _ := getJSON(t, h, "/"+testAssetID+"/see1.mp4")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no segments produced yet")

	rec, _ = getJSON(t, h, "/"+testAssetID+"/see0.mp4")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "segment numbering starts at 1")

	rec, _ = getJSON(t, h, "/not-a-uuid/see1.mp4")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
