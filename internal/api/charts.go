package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"spcguard/internal/model"
	"spcguard/internal/normalize"
)

func parseFilter(q url.Values) (model.SeriesFilter, error) {
	f := model.SeriesFilter{
		BatchID:      q.Get("batch_id"),
		ProductID:    q.Get("product_id"),
		SampleTypeID: q.Get("sample_type_id"),
	}
	var err error
	if v := q.Get("from"); v != "" {
		if f.From, err = normalize.ParseTimestamp(v, time.UTC); err != nil {
			return f, fmt.Errorf("%w: from: %v", errBadRequest, err)
		}
	}
	if v := q.Get("to"); v != "" {
		if f.To, err = normalize.ParseTimestamp(v, time.UTC); err != nil {
			return f, fmt.Errorf("%w: to: %v", errBadRequest, err)
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, fmt.Errorf("%w: to before from", errBadRequest)
	}
	return f, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
	}
	return n, nil
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := parseFilter(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	size, err := intParam(q, "subgroup_size")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.svc.Chart(r.Context(), r.PathValue("id"), filter, size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	x, y := q.Get("x"), q.Get("y")
	if x == "" || y == "" {
		s.writeError(w, r, fmt.Errorf("%w: x and y are required", errBadRequest))
		return
	}
	filter, err := parseFilter(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.svc.Correlation(r.Context(), x, y, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"x":           x,
		"y":           y,
		"correlation": c,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.svc.Summary(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"parameters": summary,
		"count":      len(summary),
	})
}

// handleParameters serves the snapshots cached at the last evaluation of
// each parameter, without recomputing anything.
func (s *Server) handleParameters(w http.ResponseWriter, _ *http.Request) {
	var all []model.ParameterSummary
	if s.summaries != nil {
		all = s.summaries.GetAll()
	}
	if all == nil {
		all = []model.ParameterSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"parameters": all,
		"count":      len(all),
	})
}

func (s *Server) handleParameter(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.summaries == nil {
		s.writeError(w, r, fmt.Errorf("%w: %s", model.ErrParameterNotFound, id))
		return
	}
	summary, ok := s.summaries.Get(id)
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: %s", model.ErrParameterNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
