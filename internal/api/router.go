package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"plant-monitor/internal/assistant"
	"plant-monitor/internal/fleet"
	"plant-monitor/internal/metrics"
	"plant-monitor/internal/monitor"
)

// Server serves the dashboard API from the working set. Handlers only read.
type Server struct {
	fleet     *fleet.Fleet
	assistant *assistant.Assistant
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger

	// WebSocket is mounted at /ws when set.
	WebSocket http.Handler
	// Checks feed /ready.
	Checks []monitor.Check
}

func NewServer(f *fleet.Fleet, m *metrics.Metrics, logger *zap.SugaredLogger) *Server {
	return &Server{
		fleet:     f,
		assistant: assistant.New(f),
		metrics:   m,
		logger:    logger,
	}
}

func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter()

	s.handle(r, "/", s.root, http.MethodGet)
	s.handle(r, "/machines", s.listMachines, http.MethodGet)
	s.handle(r, "/ask-ai", s.askAI, http.MethodPost)

	s.handle(r, "/api/dashboard", s.getDashboard, http.MethodGet)
	s.handle(r, "/api/plant", s.getPlant, http.MethodGet)
	s.handle(r, "/api/machines/{id}", s.getMachine, http.MethodGet)
	s.handle(r, "/api/intents", s.createIntent, http.MethodPost)

	if s.WebSocket != nil {
		// not wrapped: the metrics recorder would hide the Hijacker
		r.Handle("/ws", s.WebSocket).Methods(http.MethodGet)
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	monitor.RegisterHealthCheck(r, s.logger, s.Checks...)

	return r
}

func (s *Server) handle(r *mux.Router, path string, fn http.HandlerFunc, method string) {
	r.Handle(path, s.metrics.WrapHandler(path, fn)).Methods(method)
}

// Handler returns the router wrapped with CORS, panic recovery and access logging.
func (s *Server) Handler() http.Handler {
	stdLog := zap.NewStdLog(s.logger.Desugar())

	h := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(s.NewRouter())
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(stdLog), handlers.PrintRecoveryStack(false))(h)
	return handlers.CombinedLoggingHandler(stdLog.Writer(), h)
}
