package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"ratingpart/internal/logger"
	"ratingpart/internal/models"
	"ratingpart/internal/partition"
	"ratingpart/internal/storage"
)

// Inserter applies a single rating under a partitioning scheme
type Inserter interface {
	Insert(ctx context.Context, scheme models.Scheme, table string, r models.Rating) (partition.InsertResult, error)
}

// RatingsHandler inserts ratings over HTTP. Inserts run synchronously so the
// caller learns which partition each rating landed in, or why it failed.
type RatingsHandler struct {
	inserter    Inserter
	table       string
	maxBodySize int64
}

// RatingsConfig holds configuration for the ratings handler
type RatingsConfig struct {
	Inserter    Inserter
	Table       string
	MaxBodySize int64
}

// NewRatingsHandler creates a new ratings handler
func NewRatingsHandler(cfg RatingsConfig) *RatingsHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = 1 << 20 // 1MB default
	}

	return &RatingsHandler{
		inserter:    cfg.Inserter,
		table:       cfg.Table,
		maxBodySize: maxBodySize,
	}
}

// RatingInput is the JSON form of one rating to insert
type RatingInput struct {
	UserID  int64   `json:"userid"`
	MovieID int64   `json:"movieid"`
	Rating  float64 `json:"rating"`
	Scheme  string  `json:"scheme"`
}

// RatingsRequest is a batch of ratings
type RatingsRequest struct {
	Ratings []RatingInput `json:"ratings"`
}

// RatingsResponse is the response returned to clients
type RatingsResponse struct {
	Success  bool           `json:"success"`
	Accepted int            `json:"accepted"`
	Rejected int            `json:"rejected"`
	Results  []RatingResult `json:"results,omitempty"`
	Errors   []RatingError  `json:"errors,omitempty"`
}

// RatingResult describes where an accepted rating landed
type RatingResult struct {
	Index int `json:"index"`
	partition.InsertResult
}

// RatingError describes why a rating was rejected
type RatingError struct {
	Index int    `json:"index"`
	Error string `json:"error"`

	status int
}

// ServeHTTP handles the ratings HTTP request
func (h *RatingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" && contentType != "" {
		writeError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	inputs, err := parseBody(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	response := h.insertAll(r.Context(), inputs)

	status := http.StatusOK
	if response.Accepted == 0 && len(response.Errors) > 0 {
		status = response.Errors[0].status
	}
	writeJSON(w, status, response)
}

// parseBody accepts {"ratings": [...]}, a bare array, or a single rating object
func parseBody(body []byte) ([]RatingInput, error) {
	var req RatingsRequest
	if err := json.Unmarshal(body, &req); err == nil && len(req.Ratings) > 0 {
		return req.Ratings, nil
	}

	var inputs []RatingInput
	if err := json.Unmarshal(body, &inputs); err == nil && len(inputs) > 0 {
		return inputs, nil
	}

	var single RatingInput
	if err := json.Unmarshal(body, &single); err == nil && single.Scheme != "" {
		return []RatingInput{single}, nil
	}

	return nil, errors.New("invalid JSON format: expected rating object or array of ratings")
}

func (h *RatingsHandler) insertAll(ctx context.Context, inputs []RatingInput) RatingsResponse {
	log := logger.WithComponent("ratings_handler")
	response := RatingsResponse{}

	for i, input := range inputs {
		scheme, err := models.ParseScheme(input.Scheme)
		if err != nil {
			response.reject(i, err, http.StatusBadRequest)
			continue
		}

		rating := models.Rating{UserID: input.UserID, MovieID: input.MovieID, Rating: input.Rating}
		res, err := h.inserter.Insert(ctx, scheme, h.table, rating)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("rating rejected")
			response.reject(i, err, statusFor(err))
			continue
		}

		response.Accepted++
		response.Results = append(response.Results, RatingResult{Index: i, InsertResult: res})
	}

	response.Success = response.Rejected == 0
	return response
}

func (r *RatingsResponse) reject(index int, err error, status int) {
	r.Rejected++
	r.Errors = append(r.Errors, RatingError{Index: index, Error: err.Error(), status: status})
}

// statusFor maps insert errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrRatingOutOfRange),
		errors.Is(err, models.ErrInvalidScheme),
		errors.Is(err, storage.ErrInvalidIdentifier):
		return http.StatusBadRequest
	case errors.Is(err, partition.ErrTableNotFound),
		errors.Is(err, partition.ErrNoPartitions),
		errors.Is(err, partition.ErrPartitionGap):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// StatsProvider reports partition statistics
type StatsProvider interface {
	Stats(ctx context.Context, table string) (*partition.Stats, error)
}

// PartitionsHandler serves a snapshot of the ratings table and its partitions
func PartitionsHandler(provider StatsProvider, table string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		stats, err := provider.Stats(r.Context(), table)
		if err != nil {
			writeError(w, statusFor(err), fmt.Sprintf("stats: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
