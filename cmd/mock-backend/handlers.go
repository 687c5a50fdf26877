package main

import (
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"slices"
	"strings"
	"time"
)

// knobs shape the bytes on the wire.
type knobs struct {
	chunkSize         int
	noTrailingNewline bool
	failAfter         int
	delay             time.Duration
}

const failMarker = "[fail]"

func newMux(k knobs) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /aifm/{function}", k.handleAIFM)
	mux.HandleFunc("POST /nemo/{model}/chat", k.handleNemo)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return mux
}

type wireMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type aifmRequest struct {
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type nemoRequest struct {
	ChatContext []wireMessage `json:"chat_context"`
}

func (k knobs) handleAIFM(w http.ResponseWriter, r *http.Request) {
	if !authorized(w, r) {
		return
	}
	var req aifmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tokens, fail := reply(req.Messages)
	var lines []string
	for i, tok := range tokens {
		if k.failing(fail, i) {
			lines = append(lines, "data: "+mustJSON(map[string]any{"error": map[string]string{"message": "mock failure"}}))
			break
		}
		lines = append(lines, "data: "+mustJSON(map[string]any{
			"id":      "mock-" + r.PathValue("function"),
			"choices": []any{map[string]any{"index": 0, "delta": map[string]string{"role": "assistant", "content": tok}}},
		}), "")
	}
	lines = append(lines, "data: [DONE]")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	k.write(w, lines)
}

func (k knobs) handleNemo(w http.ResponseWriter, r *http.Request) {
	if !authorized(w, r) {
		return
	}
	var req nemoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tokens, fail := reply(req.ChatContext)
	var lines []string
	for i, tok := range tokens {
		if k.failing(fail, i) {
			lines = append(lines, mustJSON(map[string]string{"error": "mock failure"}))
			break
		}
		lines = append(lines, mustJSON(map[string]string{"text": tok}))
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	k.write(w, lines)
}

func (k knobs) failing(marked bool, i int) bool {
	if marked && i == 1 {
		return true
	}
	return k.failAfter >= 0 && i == k.failAfter
}

// write sends lines separated by "\n", split into chunkSize writes with a
// flush after each.
func (k knobs) write(w http.ResponseWriter, lines []string) {
	body := strings.Join(lines, "\n")
	if !k.noTrailingNewline {
		body += "\n"
	}

	flusher, _ := w.(http.Flusher)
	size := k.chunkSize
	if size <= 0 {
		size = len(body)
	}
	for chunk := range chunks([]byte(body), size) {
		if _, err := w.Write(chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if k.delay > 0 {
			time.Sleep(k.delay)
		}
	}
}

func chunks(b []byte, size int) iter.Seq[[]byte] {
	if len(b) == 0 {
		return func(func([]byte) bool) {}
	}
	return slices.Chunk(b, size)
}

// reply picks the canned answer for a conversation. The second return
// value asks for an error payload after the first delta.
func reply(msgs []wireMessage) ([]string, bool) {
	var last wireMessage
	hasSystem, hasImage := false, false
	for _, m := range msgs {
		switch m.Role {
		case "system":
			hasSystem = true
		case "user":
			last = m
			hasImage = hasImage || len(m.Images) > 0
		}
	}

	text := strings.ToLower(last.Content)
	fail := strings.Contains(text, failMarker)
	switch {
	case strings.Contains(text, "count from 1 to 5"):
		return []string{"1", ", ", "2", ", ", "3", ", ", "4", ", ", "5"}, fail
	case hasImage:
		return []string{"I can see ", fmt.Sprintf("%d image(s)", countImages(msgs)), "."}, fail
	case hasSystem:
		return []string{"Ahoy", ", matey", "!"}, fail
	default:
		return []string{"Hello", ", ", "nice", " ", "day", "!"}, fail
	}
}

func countImages(msgs []wireMessage) int {
	n := 0
	for _, m := range msgs {
		n += len(m.Images)
	}
	return n
}

func authorized(w http.ResponseWriter, r *http.Request) bool {
	if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		return true
	}
	writeError(w, http.StatusUnauthorized, "missing bearer token")
	return false
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": msg}})
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
