package focus

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	pigo "github.com/esimov/pigo/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestImage draws a bright square on a dark background
func createTestImage(width, height int, subject image.Rectangle) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if image.Pt(x, y).In(subject) {
				img.Set(x, y, color.RGBA{230, 120, 90, 255})
			} else {
				img.Set(x, y, color.RGBA{20, 20, 20, 255})
			}
		}
	}
	return img
}

func TestCenter(t *testing.T) {
	pt, err := Center{}.Find(context.Background(), image.NewRGBA(image.Rect(0, 0, 40, 30)))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(20, 15), pt)

	// points are relative to Bounds().Min
	pt, err = Center{}.Find(context.Background(), image.NewRGBA(image.Rect(10, 20, 50, 50)))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(20, 15), pt)
}

func TestSaliencyFindsPointInside(t *testing.T) {
	img := createTestImage(400, 300, image.Rect(260, 40, 360, 140))

	pt, err := NewSaliency(100, 100).Find(context.Background(), img)
	require.NoError(t, err)
	assert.True(t, pt.In(img.Bounds()), "%v outside image", pt)
}

func TestSaliencyInvalidShape(t *testing.T) {
	_, err := NewSaliency(0, 10).Find(context.Background(), createTestImage(10, 10, image.Rectangle{}))
	assert.Error(t, err)
}

func TestSanitizeModelJSON(t *testing.T) {
	raw := "```json\n{\n  // subject\n  \"label\": \"dog\",\n  \"box\": {\"x\": 0.1, \"y\": 0.2, \"w\": 0.3, \"h\": 0.4,},\n}\n```"
	clean := sanitizeModelJSON(raw)

	var s Subject
	require.NoError(t, json.Unmarshal([]byte(clean), &s))
	assert.Equal(t, "dog", s.Label)
	assert.Equal(t, Box{X: 0.1, Y: 0.2, W: 0.3, H: 0.4}, s.Box)
}

func TestParseSubjectFallback(t *testing.T) {
	assert.Equal(t, fallbackSubject, parseSubject("I see a dog"))
	assert.Equal(t, fallbackSubject, parseSubject(`{"label": "dog", "box": {"w": 0, "h": 0}}`))
	assert.Equal(t, fallbackSubject, parseSubject(`{"label": }`))
}

func TestNormalizeBox(t *testing.T) {
	b := normalizeBox(Box{X: -0.2, Y: 0.9, W: 0.5, H: 0.5})
	assert.Equal(t, 0.0, b.X)
	assert.Equal(t, 0.9, b.Y)
	assert.Equal(t, 0.5, b.W)
	assert.InDelta(t, 0.1, b.H, 1e-12)
}

func TestNewOllamaRejectsBadURL(t *testing.T) {
	_, err := NewOllama("not a url", "")
	assert.Error(t, err)

	o, err := NewOllama("http://localhost:11434/api/chat", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, o.model)
}

func TestOllamaFind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Images []string `json:"images"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) != 1 || len(req.Messages[0].Images) != 1 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": req.Model,
			"message": map[string]any{
				"role":    "assistant",
				"content": `{"label":"cat","confidence":0.9,"box":{"x":0.5,"y":0.25,"w":0.25,"h":0.5}}`,
			},
			"done": true,
		})
	}))
	defer srv.Close()

	o, err := NewOllama(srv.URL, "test-model")
	require.NoError(t, err)

	pt, err := o.Find(context.Background(), createTestImage(200, 100, image.Rect(100, 25, 150, 75)))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(125, 50), pt)
}

func TestBoxCenter(t *testing.T) {
	b := Box{X: 0.5, Y: 0.25, W: 0.25, H: 0.5}
	assert.Equal(t, image.Pt(125, 50), b.Center(200, 100))
	assert.Equal(t, image.Pt(0, 0), Box{}.Center(200, 100))
}

func TestLlamaCppFind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Messages []struct {
				Content []struct {
					Type     string `json:"type"`
					ImageURL *struct {
						URL string `json:"url"`
					} `json:"image_url"`
				} `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if part := req.Messages[0].Content[1]; part.ImageURL == nil || part.Type != "image_url" {
			http.Error(w, "missing image", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{
						"role":    "assistant",
						"content": "```json\n{\"label\":\"cat\",\"box\":{\"x\":0,\"y\":0,\"w\":0.5,\"h\":0.5}}\n```",
					},
				},
			},
		})
	}))
	defer srv.Close()

	l, err := NewLlamaCpp(srv.URL+"/", "")
	require.NoError(t, err)

	pt, err := l.Find(context.Background(), createTestImage(200, 100, image.Rect(0, 0, 100, 50)))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(50, 25), pt)
}

func TestLlamaCppServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	l, err := NewLlamaCpp(srv.URL, "")
	require.NoError(t, err)

	_, err = l.Find(context.Background(), createTestImage(20, 20, image.Rectangle{}))
	assert.ErrorContains(t, err, "status 503")

	_, err = NewLlamaCpp("localhost", "")
	assert.Error(t, err)
}

func TestMessageText(t *testing.T) {
	assert.Equal(t, "hi", messageText("hi"))
	assert.Equal(t, "part", messageText([]any{map[string]any{"type": "text", "text": "part"}}))
	assert.Equal(t, "", messageText(nil))
}

func TestFacesCenter(t *testing.T) {
	dets := []pigo.Detection{
		{Row: 100, Col: 100, Scale: 10, Q: 20},
		{Row: 200, Col: 400, Scale: 30, Q: 15},
		{Row: 900, Col: 900, Scale: 50, Q: 2},
	}

	pt, n := facesCenter(dets, 10)
	assert.Equal(t, 2, n)
	// weights 100 and 900
	assert.Equal(t, image.Pt(370, 190), pt)

	_, n = facesCenter(dets, 50)
	assert.Zero(t, n)
}

func TestNewFacesErrors(t *testing.T) {
	_, err := NewFaces(nil)
	assert.Error(t, err)

	_, err = LoadFaces(filepath.Join(t.TempDir(), "facefinder"))
	assert.Error(t, err)
}
