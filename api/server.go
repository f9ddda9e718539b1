package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solquote/mmbot/pkg/perf"
	"github.com/solquote/mmbot/pkg/risk"
	"github.com/solquote/mmbot/pkg/trader"
)

type Server struct {
	maker   *trader.MarketMaker
	runner  *trader.Runner
	riskMgr *risk.Manager
	monitor *perf.Monitor
	logger  *logrus.Logger
	port    string
}

func NewServer(maker *trader.MarketMaker, runner *trader.Runner, riskMgr *risk.Manager, monitor *perf.Monitor, logger *logrus.Logger, port string) *Server {
	return &Server{
		maker:   maker,
		runner:  runner,
		riskMgr: riskMgr,
		monitor: monitor,
		logger:  logger,
		port:    port,
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/risk", s.handleRisk)
	mux.HandleFunc("/api/performance", s.handlePerformance)

	// Enable CORS for the dashboard
	handler := corsMiddleware(mux)

	s.logger.Infof("Starting API server on port %s", s.port)
	return http.ListenAndServe(":"+s.port, handler)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !s.runner.Running() {
		status = "stopped"
	}
	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, s.maker.GetSummary())
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, s.riskMgr.Summary())
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, s.monitor.Stats())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
