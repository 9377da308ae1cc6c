package service

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tarot-backend/models"
)

func TestGeminiSynthesize(t *testing.T) {
	pcm := make([]byte, 8)
	for i, v := range []int16{0, 1000, -1000, 32767} {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}

	var gotKey, gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{
				map[string]any{
					"content": map[string]any{
						"parts": []any{
							map[string]any{
								"inlineData": map[string]any{
									"mimeType": "audio/L16;rate=24000",
									"data":     base64.StdEncoding.EncodeToString(pcm),
								},
							},
						},
					},
				},
			},
		})
	}))
	defer server.Close()

	svc := NewGeminiService(
		GeminiWithAPIKey("test-key"),
		GeminiWithAPIBase(server.URL+"/"),
		GeminiWithVoice("Kore"),
	)

	buf, err := svc.Synthesize(context.Background(), "**A Estrela** brilha")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotPath != "/gemini-2.5-flash-preview-tts:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	body, _ := json.Marshal(gotBody)
	if !strings.Contains(string(body), `"voiceName":"Kore"`) || !strings.Contains(string(body), `"AUDIO"`) {
		t.Errorf("request body = %s", body)
	}
	if strings.Contains(string(body), "**") {
		t.Errorf("markdown reached the narration: %s", body)
	}

	if buf.SampleRate != models.NarrationSampleRate || buf.Channels != models.NarrationChannels {
		t.Errorf("format = %d Hz x %d", buf.SampleRate, buf.Channels)
	}
	want := []int16{0, 1000, -1000, 32767}
	if len(buf.Samples) != len(want) {
		t.Fatalf("samples = %v, want %v", buf.Samples, want)
	}
	for i := range want {
		if buf.Samples[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, buf.Samples[i], want[i])
		}
	}
}

func TestGeminiSynthesizeErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"http error", http.StatusInternalServerError, `{"error":{"code":500,"message":"boom"}}`, nil},
		{"api error", http.StatusOK, `{"error":{"code":400,"message":"bad voice"}}`, nil},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, ErrEmptyResponse},
		{"empty audio", http.StatusOK, `{"candidates":[{"content":{"parts":[{"inlineData":{"data":""}}]}}]}`, ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			svc := NewGeminiService(GeminiWithAPIKey("k"), GeminiWithAPIBase(server.URL))
			_, err := svc.Synthesize(context.Background(), "texto")
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGeminiSynthesizeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	svc := NewGeminiService(
		GeminiWithAPIKey("k"),
		GeminiWithAPIBase(server.URL),
		GeminiWithTimeout(20*time.Millisecond),
	)
	_, err := svc.Synthesize(context.Background(), "texto")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestGeminiSynthesizeRequiresKey(t *testing.T) {
	if _, err := NewGeminiService().Synthesize(context.Background(), "x"); err == nil {
		t.Error("expected error without api key")
	}
}

func TestNarrationText(t *testing.T) {
	got := narrationText("## **O Sol** _brilha_")
	if strings.ContainsAny(got, "*#_") {
		t.Errorf("narrationText left markdown: %q", got)
	}
	if !strings.Contains(got, "O Sol") {
		t.Errorf("narrationText lost content: %q", got)
	}
}
