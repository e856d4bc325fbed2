package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"wishwell/internal/extract"
	"wishwell/internal/metrics"
)

const maxExtractBodySize = 64 << 10 // 64KB

type extractRequest struct {
	URL string `json:"url"`
}

// extractResponse is the extractor's wire contract. Image is null when the
// page had none.
type extractResponse struct {
	Title    string  `json:"title"`
	Price    string  `json:"price"`
	Image    *string `json:"image"`
	Currency string  `json:"currency"`
	URL      string  `json:"url"`
}

func handleExtract(extractor *extract.Extractor, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxExtractBodySize)
		defer r.Body.Close()

		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.URL == "" {
			m.ExtractRequests.WithLabelValues(metrics.OutcomeInvalidInput).Inc()
			httpError(w, http.StatusBadRequest, "invalid_request_error", "url is required")
			return
		}

		start := time.Now()
		res, err := extractor.Extract(r.Context(), req.URL)
		m.ExtractDuration.Observe(time.Since(start).Seconds())

		if errors.Is(err, extract.ErrInvalidURL) {
			m.ExtractRequests.WithLabelValues(metrics.OutcomeInvalidInput).Inc()
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid url: %v", err)
			return
		}
		if err != nil {
			m.ExtractRequests.WithLabelValues(metrics.OutcomeFetchFailed).Inc()
			httpError(w, http.StatusInternalServerError, "api_error", "extraction failed: %v", err)
			return
		}

		m.ExtractRequests.WithLabelValues(metrics.OutcomeOK).Inc()

		resp := extractResponse{
			Title:    res.Title,
			Price:    res.Price,
			Currency: res.Currency,
			URL:      res.SourceURL,
		}
		if res.Image != "" {
			resp.Image = &res.Image
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
