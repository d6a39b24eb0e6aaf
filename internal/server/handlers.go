package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/models"
)

const backfillDays = 180

// msgNoSymbols is returned when the symbol registry is empty: the
// front-end treats this as "try again after initialization".
const msgNoSymbols = "股票代码数据不可用"

// msgNoHistory is returned when a chart or K-line request cannot be
// served even after a backfill attempt.
const msgNoHistory = "历史数据不足"

// handleStocks handles GET /api/stocks.
func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	symbols, err := s.app.Registry.Load(r.Context())
	if err != nil || len(symbols) == 0 {
		writeDataMessage(w, http.StatusInternalServerError, msgNoSymbols)
		return
	}
	writeData(w, symbols)
}

// handleETFs handles GET /api/etfs.
func (s *Server) handleETFs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	etfs, err := s.app.Registry.LoadETFs(r.Context())
	if err != nil {
		writeDataError(w, err)
		return
	}
	writeData(w, etfs)
}

// resolveTSCode maps a request symbol to the canonical ts_code. A value
// already carrying an exchange suffix passes through.
func (s *Server) resolveTSCode(r *http.Request, symbol string) (string, error) {
	if symbol == "" {
		return "", common.NewError(common.KindBadInput, "empty symbol")
	}
	if strings.Contains(symbol, ".") {
		return strings.ToUpper(symbol), nil
	}
	sym, err := s.app.Registry.Get(r.Context(), symbol)
	if err != nil {
		return "", err
	}
	return sym.TSCode, nil
}

// handleKline handles GET /api/kline/{symbol}. A missing series triggers
// one backfill attempt before giving up.
func (s *Server) handleKline(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	tsCode, err := s.resolveTSCode(r, pathParam(r, "/api/kline/", ""))
	if err != nil {
		writeDataError(w, err)
		return
	}

	series, err := s.app.Klines.Get(r.Context(), tsCode)
	if common.IsKind(err, common.KindNotFound) {
		series, err = s.app.Klines.Backfill(r.Context(), tsCode, backfillDays)
	}
	if err != nil {
		writeDataMessage(w, http.StatusNotFound, msgNoHistory)
		return
	}
	writeData(w, series)
}

// handleRealtimeOne handles GET /api/realtime/{symbol}, served from the
// cached batch snapshot.
func (s *Server) handleRealtimeOne(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	quote, err := s.app.Realtime.SnapshotOne(r.Context(), pathParam(r, "/api/realtime/", ""))
	if err != nil {
		writeDataError(w, err)
		return
	}
	writeData(w, quote)
}

// handleSignals handles GET /api/signals[?strategy=].
func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	var (
		signals []models.Signal
		err     error
	)
	if strategy := r.URL.Query().Get("strategy"); strategy != "" {
		signals, err = s.app.Strategy.SignalsFor(r.Context(), strategy)
	} else {
		signals, err = s.app.Strategy.AllSignals(r.Context())
	}
	if err != nil {
		writeDataError(w, err)
		return
	}
	writeData(w, signals)
}

// handleStrategies handles GET /api/strategies.
func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeData(w, s.app.Strategy.Strategies())
}

// handleNews handles GET /api/news.
func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	digest, err := s.app.News.Latest(r.Context())
	if err != nil {
		writeDataError(w, err)
		return
	}
	writeData(w, digest)
}

// routeChart dispatches /api/chart/{symbol}/{strategy}[/png].
func (s *Server) routeChart(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/chart/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2:
		s.serveChart(w, r, parts[0], parts[1], false)
	case len(parts) == 3 && parts[2] == "png":
		s.serveChart(w, r, parts[0], parts[1], true)
	default:
		writeDataMessage(w, http.StatusNotFound, "not found")
	}
}

// serveChart builds the chart artifact, backfilling the series once on
// a miss.
func (s *Server) serveChart(w http.ResponseWriter, r *http.Request, symbol, strategy string, png bool) {
	tsCode, err := s.resolveTSCode(r, symbol)
	if err != nil {
		writeDataError(w, err)
		return
	}

	fetch := func() (any, error) {
		if png {
			return s.app.Charts.RenderPNG(r.Context(), tsCode, strategy)
		}
		return s.app.Charts.ChartData(r.Context(), tsCode, strategy)
	}

	out, err := fetch()
	if common.IsKind(err, common.KindNotFound) {
		if _, bfErr := s.app.Klines.Backfill(r.Context(), tsCode, backfillDays); bfErr != nil {
			writeDataMessage(w, http.StatusNotFound, msgNoHistory)
			return
		}
		out, err = fetch()
	}
	if err != nil {
		if common.IsKind(err, common.KindBadInput) || common.IsKind(err, common.KindNotFound) {
			writeDataMessage(w, http.StatusNotFound, msgNoHistory)
			return
		}
		writeDataError(w, err)
		return
	}

	if png {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		w.Write(out.([]byte))
		return
	}
	writeData(w, json.RawMessage(out.(string)))
}
