package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync/atomic"

	"kcglobed.com/finance-chatbot/internal/core"
)

const maxRequestBody = 10 << 20

// ChatBackend is the part of core.ChatService the handlers call.
type ChatBackend interface {
	GenerateReply(ctx context.Context, message string, userID int64) (string, error)
	CompareEssays(ctx context.Context, userInput, explanation string) (core.EssayVerdict, error)
}

// Readiness is reported by the detailed health endpoint.
type Readiness struct {
	dbConnected     atomic.Bool
	embeddingsReady atomic.Bool
}

func (r *Readiness) SetDBConnected(v bool)     { r.dbConnected.Store(v) }
func (r *Readiness) SetEmbeddingsReady(v bool) { r.embeddingsReady.Store(v) }

type APIHandler struct {
	chat      ChatBackend
	readiness *Readiness
}

func NewAPIHandler(chat ChatBackend, readiness *Readiness) *APIHandler {
	if readiness == nil {
		readiness = &Readiness{}
	}
	return &APIHandler{chat: chat, readiness: readiness}
}

type errorResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message,omitempty"`
	RawResponse string `json:"raw_response,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Error:   "Internal server error",
		Message: err.Error(),
	})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) DetailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"dbConnected":     h.readiness.dbConnected.Load(),
		"embeddingsReady": h.readiness.embeddingsReady.Load(),
	})
}

// ChatRequest fields are decoded lazily so missing fields and wrong types get distinct errors.
type ChatRequest struct {
	UserID  json.RawMessage `json:"user_id"`
	Message json.RawMessage `json:"message"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	if isEmptyJSON(req.UserID) || isEmptyJSON(req.Message) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "Missing required fields: user_id and message are required",
		})
		return
	}

	var userID int64
	var message string
	if json.Unmarshal(req.UserID, &userID) != nil || json.Unmarshal(req.Message, &message) != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "Invalid data types: user_id must be a number and message must be a string",
		})
		return
	}

	reply, err := h.chat.GenerateReply(r.Context(), message, userID)
	if err != nil {
		log.Printf("Chat endpoint error for user %d: %v", userID, err)
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Reply: reply})
}

// isEmptyJSON reports values a caller would consider "not provided": absent, null, 0, false or "".
func isEmptyJSON(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", "0", "false", `""`:
		return true
	}
	return false
}

type EssayVerifyRequest struct {
	UserInput   string `json:"user_input"`
	Explanation string `json:"explanation"`
}

type EssayVerifyResponse struct {
	Status string  `json:"status"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

func (h *APIHandler) EssayVerifyHandler(w http.ResponseWriter, r *http.Request) {
	var req EssayVerifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}
	if req.UserInput == "" || req.Explanation == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing required fields: user_input and explanation"})
		return
	}

	verdict, err := h.chat.CompareEssays(r.Context(), req.UserInput, req.Explanation)
	if err != nil {
		var invalid *core.InvalidEssayResponseError
		if errors.As(err, &invalid) {
			writeJSON(w, http.StatusInternalServerError, errorResponse{
				Error:       core.ErrInvalidEssayResponse.Error(),
				RawResponse: invalid.Raw,
			})
			return
		}
		log.Printf("Essay verification error: %v", err)
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, EssayVerifyResponse{
		Status: "success",
		Score:  verdict.Score,
		Reason: verdict.Reason,
	})
}

func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{
		Error:   "Not found",
		Message: "Route " + r.URL.Path + " not found",
	})
}
