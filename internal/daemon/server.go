package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"mimic/internal/logger"
	"mimic/internal/model"
	"mimic/internal/repository"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

var ErrAlreadyRunning = errors.New("another mimic instance is already running")

type StopResponse struct {
	Status  string `json:"status"`
	Workers int    `json:"workers"`
}

type StatusResponse struct {
	StartedAt time.Time              `json:"started_at"`
	Workers   []model.WorkerSnapshot `json:"workers"`
}

type Server struct {
	echo       *echo.Echo
	supervisor *Supervisor
	histRepo   *repository.HistoryRepository
	port       int
	startedAt  time.Time
	listener   net.Listener
	stopCh     chan struct{}
	stopOnce   sync.Once
}

func NewServer(supervisor *Supervisor, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:       e,
		supervisor: supervisor,
		histRepo:   repository.NewHistoryRepository(),
		port:       port,
		startedAt:  time.Now(),
		stopCh:     make(chan struct{}),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/status", s.handleStatus)
	s.echo.GET("/history", s.handleHistory)
	s.echo.POST("/stop", s.handleStop)
}

func (s *Server) addr() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(s.port))
}

// Listen binds the control port. Only one process can hold it, which makes it
// the single-instance guard: call it before any mirroring starts.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr())
	if err != nil {
		return fmt.Errorf("%w: port %d: %v", ErrAlreadyRunning, s.port, err)
	}

	s.listener = ln
	return nil
}

// Close releases the control port when the daemon gives up before Start.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}

	err := s.listener.Close()
	s.listener = nil
	return err
}

func (s *Server) Start() {
	s.echo.Listener = s.listener

	go func() {
		logger.Log.Info("control api started",
			zap.String("addr", s.addr()))

		if err := s.echo.Start(s.addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("control api error", zap.Error(err))
		}
	}()
}

// Stop stops all mirroring, then shuts the API down.
func (s *Server) Stop(ctx context.Context) error {
	s.supervisor.Stop()
	return s.echo.Shutdown(ctx)
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		StartedAt: s.startedAt,
		Workers:   s.supervisor.Snapshots(),
	})
}

func (s *Server) handleStop(c echo.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return c.JSON(http.StatusOK, StopResponse{
		Status:  "stopping",
		Workers: len(s.supervisor.Snapshots()),
	})
}

func (s *Server) handleHistory(c echo.Context) error {
	n := 20
	if nStr := c.QueryParam("n"); nStr != "" {
		parsed, err := strconv.Atoi(nStr)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "n must be a positive integer"})
		}
		n = parsed
	}

	histories, err := s.histRepo.GetRecent(n)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, histories)
}
