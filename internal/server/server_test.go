package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/cropt"
	"github.com/menta2k/cropt/pkg/processing"
	"github.com/menta2k/cropt/pkg/types"
)

func pngUpload(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), 200, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func cropRequest(t *testing.T, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if file != nil {
		fw, err := mw.CreateFormFile("image", "upload.png")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/crop", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error
}

func TestHealth(t *testing.T) {
	s := New(Config{})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, cropt.Version, body["version"])
}

func TestCrop(t *testing.T) {
	s := New(Config{})

	req := cropRequest(t, pngUpload(t, 400, 400), map[string]string{
		"preset":  "0.55",
		"size":    "120",
		"type":    "png",
		"quality": "0.8",
	})
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, processing.MimePNG, resp.Header.Get("Content-Type"))

	var result types.Result
	require.NoError(t, json.Unmarshal([]byte(resp.Header.Get("X-Crop")), &result))
	assert.InDelta(t, 0.55, result.Transform.Scale, 1e-9)
	assert.Equal(t, 400, result.Crop.Width)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	img, err := processing.DecodeBytes(data)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 120, 120), img.Bounds())
}

func TestCropBadRequests(t *testing.T) {
	s := New(Config{})
	upload := pngUpload(t, 50, 50)

	tests := []struct {
		name   string
		file   []byte
		fields map[string]string
		status int
	}{
		{"missing image", nil, nil, http.StatusBadRequest},
		{"not an image", []byte("hello"), nil, http.StatusUnsupportedMediaType},
		{"bad size", upload, map[string]string{"size": "big"}, http.StatusBadRequest},
		{"bad quality", upload, map[string]string{"quality": "2"}, http.StatusBadRequest},
		{"bad preset", upload, map[string]string{"preset": `{"transform": 5}`}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.App().Test(cropRequest(t, tt.file, tt.fields), -1)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, errorMessage(t, resp))
		})
	}
}

func TestRunShutdown(t *testing.T) {
	ready := make(chan string, 1)
	s := New(Config{
		Addr:    "127.0.0.1:0",
		OnReady: func(addr string) { ready <- addr },
	})

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case addr := <-ready:
		resp, err := http.Get(addr + "/api/health")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	s.Shutdown()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
