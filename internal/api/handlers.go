package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/benlen10/esrb-tool-v2/internal/ratings"
	"github.com/benlen10/esrb-tool-v2/internal/store"
)

const (
	defaultPerPage = 50
	maxPerPage     = 500
)

var csvHeader = []string{"game_id", "game_title", "platform", "rating", "descriptors", "url", "summary"}

type ratingsResponse struct {
	Data       []ratings.Record `json:"data"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalPages int              `json:"total_pages"`
}

// listRatings handles GET /api/ratings?page=&per_page=&search=&platform=&rating=&sort=&dir=.
func (s *Server) listRatings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := parsePositiveInt(q.Get("page"), 1)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	perPage, err := parsePositiveInt(q.Get("per_page"), defaultPerPage)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid per_page")
		return
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	filters := store.ListFilters{
		Search:     q.Get("search"),
		Platform:   q.Get("platform"),
		Rating:     q.Get("rating"),
		Sort:       store.ParseSortColumn(q.Get("sort")),
		Descending: q.Get("dir") != "asc",
		Page:       page,
		PerPage:    perPage,
	}

	result, err := s.store.List(r.Context(), filters)
	if err != nil {
		s.logger.Error("list ratings failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list ratings")
		return
	}

	s.writeJSON(w, http.StatusOK, ratingsResponse{
		Data:       result.Records,
		Total:      result.Total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: (result.Total + perPage - 1) / perPage,
	})
}

// exportCSV handles GET /api/export. Single-value search/platform/rating
// params filter server-side; comma-separated platforms/ratings params switch
// to the alternate strategy that filters title-matched rows in application
// code.
func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := q.Get("search")
	platforms := splitMulti(q.Get("platforms"))
	ratingVals := splitMulti(q.Get("ratings"))

	var (
		rows []ratings.Record
		err  error
	)
	if len(platforms) > 0 || len(ratingVals) > 0 {
		rows, err = s.store.ExportByTitle(r.Context(), search)
		if err == nil {
			rows = filterRows(rows, platforms, ratingVals)
		}
	} else {
		rows, err = s.store.Export(r.Context(), store.ExportFilters{
			Search:   search,
			Platform: q.Get("platform"),
			Rating:   q.Get("rating"),
		})
	}
	if err != nil {
		s.logger.Error("export failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to export ratings")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="esrb_ratings_export.csv"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		s.logger.Error("write CSV header failed", zap.Error(err))
		return
	}
	for _, rec := range rows {
		row := []string{
			strconv.FormatInt(rec.GameID, 10),
			rec.Title,
			rec.Platform,
			rec.Rating,
			rec.Descriptors,
			rec.URL,
			rec.Summary,
		}
		if err := cw.Write(row); err != nil {
			s.logger.Error("write CSV row failed", zap.Error(err))
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Error("flush CSV failed", zap.Error(err))
	}
}

// getStats handles GET /api/stats.
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func parsePositiveInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("expected positive integer, got %q", raw)
	}
	return n, nil
}

func splitMulti(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}

// filterRows applies platform substring and rating exact-match filtering to
// already title-filtered rows. Empty filter lists match everything.
func filterRows(rows []ratings.Record, platforms, ratingVals []string) []ratings.Record {
	out := make([]ratings.Record, 0, len(rows))
	for _, rec := range rows {
		if !matchesPlatform(rec.Platform, platforms) {
			continue
		}
		if !matchesRating(rec.Rating, ratingVals) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func matchesPlatform(platform string, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	lower := strings.ToLower(platform)
	for _, w := range wanted {
		if strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

func matchesRating(rating string, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		if rating == w {
			return true
		}
	}
	return false
}
