package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/massy-ia/citydesk/internal/adapters"
	"github.com/massy-ia/citydesk/internal/apperr"
	"github.com/massy-ia/citydesk/internal/core"
	"github.com/massy-ia/citydesk/internal/store"
)

const maxUpload = 20 << 20

type documentRequest struct {
	Text string `json:"text"`
}

type imageRequest struct {
	Prompt string `json:"prompt" validate:"max=500"`
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// documentText reads the text to analyse from a multipart PDF "file" or from
// a JSON {"text": ...} body.
func documentText(w http.ResponseWriter, r *http.Request) (string, error) {
	if !isMultipart(r) {
		var req documentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return "", err
		}
		return req.Text, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", apperr.Validation("text or PDF file is required")
		}
		return "", apperr.Validation("invalid multipart body")
	}
	defer file.Close()

	if header.Filename == "" {
		return "", apperr.Validation("no file selected")
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		return "", apperr.Validation("file must be a PDF")
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return "", apperr.Validation("failed to read uploaded file")
	}
	return adapters.ExtractPDFText(data)
}

func (h *Handler) AnalyzeUrbanism(w http.ResponseWriter, r *http.Request, caller *store.User) {
	text, err := documentText(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	result, err := h.deps.Analysis.AnalyzeUrbanism(r.Context(), caller, text)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "analysis completed and saved", result)
}

func (h *Handler) AnalyzeMarket(w http.ResponseWriter, r *http.Request, caller *store.User) {
	text, err := documentText(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	result, err := h.deps.Analysis.AnalyzeMarket(r.Context(), caller, text)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "analysis completed", result)
}

func (h *Handler) UrbanismTemplates(w http.ResponseWriter, _ *http.Request, _ *store.User) {
	respond(w, http.StatusOK, "templates retrieved", map[string]any{"templates": core.UrbanismTemplates()})
}

func (h *Handler) MarketTemplates(w http.ResponseWriter, _ *http.Request, _ *store.User) {
	respond(w, http.StatusOK, "templates retrieved", map[string]any{"templates": core.MarketTemplates()})
}

// GenerateImage takes the prompt from the query string or a JSON body.
func (h *Handler) GenerateImage(w http.ResponseWriter, r *http.Request, _ *store.User) {
	prompt := r.URL.Query().Get("prompt")
	if r.Method == http.MethodPost && prompt == "" {
		var req imageRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, r, err)
			return
		}
		prompt = req.Prompt
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		respondError(w, r, apperr.Validation("prompt is required"))
		return
	}
	respond(w, http.StatusOK, "image generated", map[string]string{"image_url": core.ImageURL(prompt)})
}

func (h *Handler) AnalyzeVideo(w http.ResponseWriter, r *http.Request, _ *store.User) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	file, header, err := r.FormFile("video")
	if err != nil {
		respondError(w, r, apperr.Validation("video file is required"))
		return
	}
	file.Close()
	respond(w, http.StatusOK, "video analysed", map[string]any{"report": core.AnalyzeVideo(header.Filename)})
}
