package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sig-0/vedollar/provider/ves"
	"github.com/sig-0/vedollar/query"
	"github.com/sig-0/vedollar/storage/types"
)

// Timestamp layouts accepted for query times. Layouts without a zone
// are read in Venezuelan time
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var (
	errUnableToFetchRates = errors.New("unable to fetch rates")
	errNoData             = errors.New("no data for the given source and time")

	errInvalidTime   = errors.New("invalid time (must be RFC3339, or YYYY-MM-DD[THH:MM[:SS]] in UTC-4)")
	errInvalidAmount = errors.New("invalid amount (must be an integer)")
	errMissingAmount = errors.New("missing amount")
)

// LegacyConvert serves the original web client conversion API:
// ?source=&value=&date=, answering with a bare JSON number, or null if no data
func (s *Server) LegacyConvert(w http.ResponseWriter, r *http.Request) {
	var (
		sourceParam = r.URL.Query().Get("source")
		valueParam  = r.URL.Query().Get("value")
		dateParam   = r.URL.Query().Get("date")
	)

	source, err := parseSource(sourceParam)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)

		return
	}

	amount, err := parseAmount(valueParam)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)

		return
	}

	at, err := parseTime(dateParam)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)

		return
	}

	result, err := s.query.Convert(r.Context(), source, amount, at)
	if err != nil {
		if errors.Is(err, query.ErrNoData) {
			writeJSON(w, http.StatusOK, nil)

			return
		}

		s.logger.Debug(
			"unable to convert amount",
			"source", source.String(),
			"err", err,
		)

		writeError(w, http.StatusInternalServerError, errUnableToFetchRates)

		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Latest serves the latest rate at or before ?as_of= (defaults to now)
func (s *Server) Latest(w http.ResponseWriter, r *http.Request) {
	var (
		sourceParam = chi.URLParam(r, "source")
		asOfParam   = r.URL.Query().Get("as_of")
	)

	source, err := parseSource(sourceParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	asOf, err := parseTime(asOfParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	o, err := s.query.Latest(r.Context(), source, asOf)
	if err != nil {
		s.handleQueryError(w, source, err)

		return
	}

	writeJSON(w, http.StatusOK, newRateResponse(o))
}

// Convert converts ?amount= USD into Bs, using the rate at or before ?as_of=
func (s *Server) Convert(w http.ResponseWriter, r *http.Request) {
	var (
		sourceParam = chi.URLParam(r, "source")
		amountParam = r.URL.Query().Get("amount")
		asOfParam   = r.URL.Query().Get("as_of")
	)

	source, err := parseSource(sourceParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	amount, err := parseAmount(amountParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	asOf, err := parseTime(asOfParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	o, err := s.query.Latest(r.Context(), source, asOf)
	if err != nil {
		s.handleQueryError(w, source, err)

		return
	}

	writeJSON(w, http.StatusOK, &ConvertResponse{
		Rate:   newRateResponse(o),
		Amount: amount,
		Result: query.Apply(amount, o.Rate),
	})
}

// Series serves the observations within ?from= and ?to= (defaults to now)
func (s *Server) Series(w http.ResponseWriter, r *http.Request) {
	var (
		sourceParam = chi.URLParam(r, "source")
		fromParam   = r.URL.Query().Get("from")
		toParam     = r.URL.Query().Get("to")
	)

	source, err := parseSource(sourceParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	from, err := parseTime(fromParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	to, err := parseTime(toParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	if !to.IsZero() && to.Before(from) {
		writeError(w, http.StatusBadRequest, errors.New("invalid range (to is before from)"))

		return
	}

	series, err := s.query.Series(r.Context(), source, from, to)
	if err != nil {
		s.handleQueryError(w, source, err)

		return
	}

	resp := &SeriesResponse{
		Source:  source,
		Results: make([]*RateResponse, 0, len(series)),
	}

	for _, o := range series {
		resp.Results = append(resp.Results, newRateResponse(o))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) Sources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, &SourcesResponse{
		Results: types.Sources,
	})
}

func (s *Server) handleQueryError(w http.ResponseWriter, source types.Source, err error) {
	if errors.Is(err, query.ErrNoData) {
		writeError(w, http.StatusNotFound, errNoData)

		return
	}

	s.logger.Debug(
		"unable to fetch rates",
		"source", source.String(),
		"err", err,
	)

	writeError(w, http.StatusInternalServerError, errUnableToFetchRates)
}

func parseSource(v string) (types.Source, error) {
	return types.ParseSource(strings.TrimSpace(v))
}

func parseAmount(v string) (int64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, errMissingAmount
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errInvalidAmount
	}

	return n, nil
}

// parseTime parses an optional query time. An empty value is the zero time
func parseTime(raw string) (time.Time, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}

	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, ves.Location); err == nil {
			return t, nil
		}
	}

	return time.Time{}, errInvalidTime
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // Fine to ignore
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := &ErrorResponse{
		Error: err.Error(),
	}

	writeJSON(w, status, resp)
}
