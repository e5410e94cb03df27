package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/bangalorenow/incident-heatmap/internal/domain"
	"github.com/bangalorenow/incident-heatmap/internal/store"
)

const (
	maxFormBytes  = 10 << 20
	maxScoreBytes = 5 << 20
)

func (s *Server) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	sub, err := decodeSubmission(w, r)
	if err != nil {
		s.api.Metrics.ReportsReceived.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := domain.NewReport(sub)
	if err != nil {
		s.api.Metrics.ReportsReceived.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report = domain.EnrichReport(report)

	if err := s.api.Publisher.Publish(r.Context(), report); err != nil {
		s.api.Metrics.ReportsReceived.WithLabelValues("publish_error").Inc()
		s.logger.Error("publish report failed", "report_id", report.ID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to publish report")
		return
	}
	s.api.Metrics.ReportsReceived.WithLabelValues("accepted").Inc()
	s.api.Metrics.ReportsPublished.Inc()

	s.logger.Info("report received",
		"report_id", report.ID,
		"severity", report.Severity.String(),
		"lat", report.Lat,
		"lon", report.Lon,
	)
	sharedobs.WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "Report received",
		"report":  report,
	})
}

// decodeSubmission accepts a JSON body or a multipart/urlencoded form.
func decodeSubmission(w http.ResponseWriter, r *http.Request) (domain.ReportSubmission, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var sub domain.ReportSubmission
	switch mediaType {
	case "application/json":
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes))
		if err := dec.Decode(&sub); err != nil {
			return sub, fmt.Errorf("invalid JSON body: %w", err)
		}
		return sub, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxFormBytes); err != nil {
			return sub, fmt.Errorf("invalid form: %w", err)
		}
	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			return sub, fmt.Errorf("invalid form: %w", err)
		}
	default:
		return sub, fmt.Errorf("unsupported content type %q", mediaType)
	}

	return domain.ReportSubmission{
		UID:         r.PostFormValue("uid"),
		Title:       r.PostFormValue("title"),
		Description: r.PostFormValue("description"),
		Latitude:    r.PostFormValue("latitude"),
		Longitude:   r.PostFormValue("longitude"),
		URL:         r.PostFormValue("url"),
		Source:      r.PostFormValue("source"),
		Severity:    r.PostFormValue("severity"),
	}, nil
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.api.Reports.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		s.logger.Error("get report failed", "report_id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, report)
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	q, err := parseHeatmapQuery(r, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.api.Heatmap.Viewport(r.Context(), q)
	if err != nil {
		s.logger.Error("heatmap viewport failed", "bbox", q.BBox.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build heatmap")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

// parseHeatmapQuery reads bbox (required), since (RFC 3339 timestamp or a
// duration such as "24h" counted back from now) and limit.
func parseHeatmapQuery(r *http.Request, now time.Time) (store.Query, error) {
	params := r.URL.Query()

	raw := params.Get("bbox")
	if raw == "" {
		return store.Query{}, errors.New("bbox is required")
	}
	bbox, err := store.ParseBBox(raw)
	if err != nil {
		return store.Query{}, err
	}
	q := store.Query{BBox: bbox}

	if v := params.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			q.Since = t
		} else if d, err := time.ParseDuration(v); err == nil && d > 0 {
			q.Since = now.Add(-d)
		} else {
			return store.Query{}, fmt.Errorf("invalid since %q: want RFC 3339 time or positive duration", v)
		}
	}

	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return store.Query{}, fmt.Errorf("invalid limit %q", v)
		}
		q.Limit = min(n, store.MaxLimit)
	}
	return q, nil
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var reports []domain.Report
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScoreBytes))
	if err := dec.Decode(&reports); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	scored, err := s.api.Heatmap.Score(reports)
	if err != nil {
		// Only an unknown severity can fail scoring.
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"count":   len(scored),
		"reports": scored,
	})
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	if s.api.Geocoder == nil {
		writeError(w, http.StatusServiceUnavailable, "geocoding is disabled")
		return
	}
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	res, err := s.api.Geocoder.ForwardGeocode(r.Context(), address)
	if err != nil {
		s.logger.Warn("forward geocode failed", "address", address, "error", err)
		writeError(w, http.StatusBadGateway, "geocoding failed")
		return
	}
	if res.FormattedAddress == "" && res.Lat == 0 && res.Lon == 0 {
		writeError(w, http.StatusNotFound, "no results for address")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"lat":               res.Lat,
		"lon":               res.Lon,
		"formatted_address": res.FormattedAddress,
		"area":              res.Area,
	})
}
