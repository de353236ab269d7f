package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"github.com/ecosnap/ecosnap/internal/llm"
	"github.com/ecosnap/ecosnap/internal/pipeline"
	"github.com/ecosnap/ecosnap/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAnalyzer struct {
	outcome   llm.Outcome
	healthErr error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, imagePath, originalName string) llm.Outcome {
	return s.outcome
}

func (s *stubAnalyzer) CheckHealth(ctx context.Context) error { return s.healthErr }

type testEnv struct {
	server  *httptest.Server
	uploads storage.UploadStore
}

func newTestEnv(t *testing.T, primary, fallback llm.Analyzer) *testEnv {
	t.Helper()

	dir := t.TempDir()
	uploads, err := storage.NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { uploads.Close() })

	images, err := storage.NewDiskImageStore(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	orchestrator := pipeline.NewOrchestrator(uploads, primary, fallback)
	orchestrator.SetCooldown(time.Millisecond)
	pool := pipeline.NewPool(orchestrator, 2, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	server := httptest.NewServer(New(uploads, images, pool, primary, fallback))
	t.Cleanup(server.Close)

	return &testEnv{server: server, uploads: uploads}
}

func (e *testEnv) postImage(t *testing.T, field, filename string) *http.Response {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("fake image bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	resp, err := http.Post(e.server.URL+"/api/upload", writer.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(r).Decode(&v))
	return v
}

func TestUploadAndPoll(t *testing.T) {
	primary := &stubAnalyzer{outcome: llm.Success("A plastic bottle. Recycling: yes, recyclable.")}
	env := newTestEnv(t, primary, nil)

	resp := env.postImage(t, "image", "bottle.jpg")
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeJSON[uploadResponse](t, resp.Body)
	assert.NotEmpty(t, created.UploadID)
	assert.Equal(t, "bottle.jpg", created.OriginalName)
	assert.Equal(t, "pending", created.Status)

	// Poll until the background analysis lands
	require.Eventually(t, func() bool {
		upload, err := env.uploads.Get(created.UploadID)
		return err == nil && upload.Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	getResp, err := http.Get(env.server.URL + "/api/uploads/" + created.UploadID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	view := decodeJSON[map[string]any](t, getResp.Body)
	assert.Equal(t, "completed", view["status"])
	require.NotNil(t, view["result"])
	result := view["result"].(map[string]any)
	assert.Equal(t, "plastic", result["itemCategory"])
}

func TestUploadFailurePath(t *testing.T) {
	primary := &stubAnalyzer{outcome: llm.Failure(errors.New("provider down"))}
	env := newTestEnv(t, primary, nil)

	resp := env.postImage(t, "image", "thing.jpg")
	defer resp.Body.Close()
	created := decodeJSON[uploadResponse](t, resp.Body)

	require.Eventually(t, func() bool {
		upload, err := env.uploads.Get(created.UploadID)
		return err == nil && upload.Status == storage.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	getResp, err := http.Get(env.server.URL + "/api/uploads/" + created.UploadID)
	require.NoError(t, err)
	defer getResp.Body.Close()

	view := decodeJSON[map[string]any](t, getResp.Body)
	assert.Equal(t, "failed", view["status"])
	assert.Equal(t, "provider down", view["error"])
	assert.Nil(t, view["result"])
}

func TestUploadMissingFile(t *testing.T) {
	env := newTestEnv(t, &stubAnalyzer{outcome: llm.Success("ok")}, nil)

	resp := env.postImage(t, "wrong-field", "bottle.jpg")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetUnknownUpload(t *testing.T) {
	env := newTestEnv(t, &stubAnalyzer{outcome: llm.Success("ok")}, nil)

	resp, err := http.Get(env.server.URL + "/api/uploads/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListUploads(t *testing.T) {
	env := newTestEnv(t, &stubAnalyzer{outcome: llm.Success("ok")}, nil)

	resp := env.postImage(t, "image", "one.jpg")
	resp.Body.Close()

	listResp, err := http.Get(env.server.URL + "/api/uploads")
	require.NoError(t, err)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	views := decodeJSON[[]map[string]any](t, listResp.Body)
	assert.Len(t, views, 1)
}

func TestDeleteUpload(t *testing.T) {
	env := newTestEnv(t, &stubAnalyzer{outcome: llm.Success("ok")}, nil)

	resp := env.postImage(t, "image", "one.jpg")
	created := decodeJSON[uploadResponse](t, resp.Body)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/api/uploads/"+created.UploadID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	_, err = env.uploads.Get(created.UploadID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHealth(t *testing.T) {
	primary := &stubAnalyzer{}
	fallback := &stubAnalyzer{healthErr: errors.New("connection refused")}
	env := newTestEnv(t, primary, fallback)

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	health := decodeJSON[healthResponse](t, resp.Body)
	assert.Equal(t, "ok", health.Primary)
	assert.Equal(t, "connection refused", health.Fallback)
}

func TestHealthNoFallback(t *testing.T) {
	env := newTestEnv(t, &stubAnalyzer{}, nil)

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	health := decodeJSON[healthResponse](t, resp.Body)
	assert.Equal(t, "not configured", health.Fallback)
}
