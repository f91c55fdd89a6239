package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"canvas-imagegen/internal/domain"
	"canvas-imagegen/internal/domain/model"
	"canvas-imagegen/internal/usecase"
)

type referenceRequest struct {
	URL       string `json:"url,omitempty"`
	Data      []byte `json:"data,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	Label     string `json:"label,omitempty"`
	StyleHint string `json:"style_hint,omitempty"`
}

type enqueueRequest struct {
	OwnerID     string             `json:"owner_id"`
	Prompt      string             `json:"prompt"`
	AspectRatio string             `json:"aspect_ratio,omitempty"`
	Quantity    int                `json:"quantity"`
	Resolution  string             `json:"resolution"`
	References  []referenceRequest `json:"references,omitempty"`
	NodeID      string             `json:"node_id,omitempty"`
}

type jobResponse struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Status      string     `json:"status"`
	Quantity    int        `json:"quantity"`
	Resolution  string     `json:"resolution"`
	Retries     int        `json:"retries"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	ResultCount int        `json:"result_count"`
	ResultURLs  []string   `json:"result_urls,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

func toJobResponse(j *model.Job) jobResponse {
	return jobResponse{
		ID:          j.ID,
		OwnerID:     j.OwnerID,
		Status:      string(j.Status),
		Quantity:    j.Quantity,
		Resolution:  string(j.Resolution),
		Retries:     j.Retries,
		NextRunAt:   j.NextRunAt,
		LastError:   j.LastError,
		ResultCount: j.ResultCount,
		ResultURLs:  j.ResultURLs,
		CreatedAt:   j.CreatedAt,
		FinishedAt:  j.FinishedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInsufficientCredits):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, domain.ErrRateLimited):
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
	default:
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

// Handler for enqueueing a new generation job.
func enqueueHandler(enqueueUC usecase.EnqueueUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		refs := make([]model.ReferenceImage, 0, len(req.References))
		for _, ref := range req.References {
			refs = append(refs, model.ReferenceImage{
				URL:       ref.URL,
				Data:      ref.Data,
				MimeType:  ref.MimeType,
				Label:     ref.Label,
				StyleHint: ref.StyleHint,
			})
		}

		job, err := enqueueUC.Enqueue(r.Context(), usecase.EnqueueInput{
			OwnerID:     req.OwnerID,
			Prompt:      req.Prompt,
			AspectRatio: req.AspectRatio,
			Quantity:    req.Quantity,
			Resolution:  req.Resolution,
			References:  refs,
			NodeID:      req.NodeID,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toJobResponse(job))
	}
}

// Handler for job-status lookups.
func jobGetHandler(enqueueUC usecase.EnqueueUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := enqueueUC.GetJob(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toJobResponse(job))
	}
}

type generationResponse struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	URL       string    `json:"url"`
	NodeID    string    `json:"node_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Handler for listing an owner's generations. The client tracker's polling
// fallback hits this endpoint with ?since=<RFC3339>.
func generationsHandler(galleryUC usecase.GalleryUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.URL.Query().Get("owner")
		if ownerID == "" {
			http.Error(w, "owner is required", http.StatusBadRequest)
			return
		}

		var (
			gens []*model.Generation
			err  error
		)
		if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
			since, perr := time.Parse(time.RFC3339Nano, sinceStr)
			if perr != nil {
				http.Error(w, "invalid since timestamp", http.StatusBadRequest)
				return
			}
			gens, err = galleryUC.ListGenerationsSince(r.Context(), ownerID, since)
		} else {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			gens, err = galleryUC.ListGenerations(r.Context(), ownerID, limit)
		}
		if err != nil {
			writeError(w, err)
			return
		}

		out := make([]generationResponse, 0, len(gens))
		for _, g := range gens {
			out = append(out, generationResponse{
				ID:        g.ID,
				JobID:     g.JobID,
				URL:       g.URL,
				NodeID:    g.NodeID,
				CreatedAt: g.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// Handler for the owner's credit balance.
func balanceHandler(galleryUC usecase.GalleryUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.URL.Query().Get("owner")
		if ownerID == "" {
			http.Error(w, "owner is required", http.StatusBadRequest)
			return
		}
		balance, err := galleryUC.Balance(r.Context(), ownerID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"credits": balance})
	}
}

type workerRunResponse struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}

// Handler for the worker trigger. Each accepted call submits exactly one
// invocation to the pool; the response is always structured, never an
// escaped processing error.
func workerRunHandler(submit func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := submit(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, workerRunResponse{
				Accepted: false,
				Message:  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusAccepted, workerRunResponse{
			Accepted: true,
			Message:  "worker invocation queued",
		})
	}
}
