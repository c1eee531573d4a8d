// Command mockapi is a local stand-in for the transcription API, useful for
// exercising the gateway without a real account. Jobs progress from queued
// to processing to completed based on their age.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const cannedText = "This is a test transcription produced by the mock API server"

type job struct {
	ID        string
	AudioURL  string
	CreatedAt time.Time
}

type mockServer struct {
	mu   sync.Mutex
	jobs map[string]*job
}

func newMockServer() *mockServer {
	return &mockServer{jobs: make(map[string]*job)}
}

// checkAuth enforces the raw-credential Authorization header the real API
// expects. Any non-empty value is accepted.
func checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") == "" {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (s *mockServer) uploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !checkAuth(w, r) {
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload body")
		return
	}

	uploadURL := fmt.Sprintf("http://%s/v1/cdn/%s", r.Host, uuid.NewString())
	log.Printf("📤 UPLOAD: %d bytes -> %s", len(data), uploadURL)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"upload_url": uploadURL})
}

func (s *mockServer) createHandler(w http.ResponseWriter, r *http.Request) {
	if !checkAuth(w, r) {
		return
	}

	var req struct {
		AudioURL     string `json:"audio_url"`
		LanguageCode string `json:"language_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AudioURL == "" {
		writeError(w, http.StatusBadRequest, "audio_url is required")
		return
	}

	j := &job{
		ID:        uuid.NewString(),
		AudioURL:  req.AudioURL,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()

	log.Printf("🎤 JOB CREATED: %s (audio_url=%s, language=%s)", j.ID, req.AudioURL, req.LanguageCode)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"id":        j.ID,
		"audio_url": j.AudioURL,
		"status":    "queued",
	})
}

func (s *mockServer) fetchHandler(w http.ResponseWriter, r *http.Request, id string) {
	if !checkAuth(w, r) {
		return
	}

	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "transcript not found")
		return
	}

	// Age-based status progression simulates real processing latency
	age := time.Since(j.CreatedAt)
	resp := map[string]interface{}{
		"id":        j.ID,
		"audio_url": j.AudioURL,
	}
	switch {
	case age < 2*time.Second:
		resp["status"] = "queued"
	case age < 5*time.Second:
		resp["status"] = "processing"
	default:
		resp["status"] = "completed"
		resp["text"] = cannedText
	}

	log.Printf("🔎 JOB POLLED: %s (status=%s, age=%s)", j.ID, resp["status"], age.Round(time.Millisecond))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *mockServer) transcriptHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/transcript")
	rest = strings.TrimPrefix(rest, "/")

	switch {
	case rest == "" && r.Method == http.MethodPost:
		s.createHandler(w, r)
	case rest != "" && r.Method == http.MethodGet:
		s.fetchHandler(w, r, rest)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	flag.Parse()

	s := newMockServer()

	http.HandleFunc("/v1/upload", s.uploadHandler)
	http.HandleFunc("/v1/transcript", s.transcriptHandler)
	http.HandleFunc("/v1/transcript/", s.transcriptHandler)

	log.Printf("🚀 Mock Transcription API starting on %s", *addr)
	log.Printf("📡 Endpoints: POST /v1/upload, POST /v1/transcript, GET /v1/transcript/{id}")
	log.Println("💡 Point the gateway at: base_url: http://localhost:9000/v1")

	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
