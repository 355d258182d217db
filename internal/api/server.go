package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/scenariosim/scenariosim/internal/broadcast"
	"github.com/scenariosim/scenariosim/internal/simulation"
	"github.com/scenariosim/scenariosim/internal/storage"
)

// Dependencies holds everything the HTTP server routes to.
type Dependencies struct {
	Store       storage.Backend
	Simulations *simulation.Manager
	Hub         *broadcast.Hub
	Logger      *slog.Logger
	CORSOrigin  string
}

// Server exposes the entity store and simulation sessions over HTTP.
type Server struct {
	deps     Dependencies
	engine   *gin.Engine
	upgrader websocket.Upgrader
}

// NewServer builds the router. Every failure is answered with status 500 and a
// plain-text message; there are no 4xx responses for bad input.
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.CORSOrigin == "" {
		deps.CORSOrigin = "*"
	}

	s := &Server{deps: deps}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(deps.Logger), corsMiddleware(deps.CORSOrigin))

	r.GET("/healthcheck", s.healthcheck)

	scenarios := r.Group("/api/scenarios")
	scenarios.POST("", s.createScenario)
	scenarios.GET("", s.listScenarios)
	scenarios.PUT("/:id", s.updateScenario)
	scenarios.DELETE("", s.deleteAllScenarios)
	scenarios.DELETE("/:id", s.deleteScenario)

	vehicles := r.Group("/api/vehicles")
	vehicles.POST("", s.createVehicle)
	vehicles.GET("", s.listVehicles)
	vehicles.PUT("/:id", s.updateVehicle)
	vehicles.DELETE("/:id", s.deleteVehicle)

	sims := r.Group("/api/simulations/:scenario")
	sims.POST("/start", s.startSimulation)
	sims.POST("/stop", s.stopSimulation)
	sims.GET("", s.getSimulation)
	sims.GET("/stream", s.streamSimulation)

	s.engine = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// fail logs err and answers 500 with msg.
func (s *Server) fail(c *gin.Context, msg string, err error) {
	s.deps.Logger.ErrorContext(c.Request.Context(), msg, "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	c.String(http.StatusInternalServerError, msg)
}

func parseID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func (s *Server) healthcheck(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) createScenario(c *gin.Context) {
	var req CreateScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errAddScenario, err)
		return
	}
	if _, err := s.deps.Store.CreateScenario(c.Request.Context(), req.input()); err != nil {
		s.fail(c, errAddScenario, err)
		return
	}
	c.JSON(http.StatusCreated, MessageResponse{Message: msgScenarioAdded})
}

func (s *Server) updateScenario(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		s.fail(c, errUpdateScenario, err)
		return
	}
	var req UpdateScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errUpdateScenario, err)
		return
	}
	if err := s.deps.Store.UpdateScenario(c.Request.Context(), id, req.update()); err != nil {
		s.fail(c, errUpdateScenario, err)
		return
	}
	c.String(http.StatusOK, msgScenarioUpdated)
}

func (s *Server) listScenarios(c *gin.Context) {
	list, err := s.deps.Store.ListScenarios(c.Request.Context())
	if err != nil {
		s.fail(c, errFetchScenarios, err)
		return
	}
	c.JSON(http.StatusOK, scenariosJSON(list))
}

func (s *Server) deleteAllScenarios(c *gin.Context) {
	if err := s.deps.Store.DeleteAllScenarios(c.Request.Context()); err != nil {
		s.fail(c, errDeleteAll, err)
		return
	}
	c.String(http.StatusOK, msgAllScenariosDeleted)
}

func (s *Server) deleteScenario(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		s.fail(c, errDeleteScenario, err)
		return
	}
	if err := s.deps.Store.DeleteScenario(c.Request.Context(), id); err != nil {
		s.fail(c, errDeleteScenario, err)
		return
	}
	c.String(http.StatusOK, msgScenarioDeleted)
}

func (s *Server) createVehicle(c *gin.Context) {
	var req CreateVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errAddVehicle, err)
		return
	}
	if _, err := s.deps.Store.CreateVehicle(c.Request.Context(), req.input()); err != nil {
		s.fail(c, errAddVehicle, err)
		return
	}
	c.JSON(http.StatusCreated, MessageResponse{Message: msgVehicleAdded})
}

func (s *Server) listVehicles(c *gin.Context) {
	list, err := s.deps.Store.ListVehiclesByScenario(c.Request.Context(), c.Query("scenario"))
	if err != nil {
		s.fail(c, errFetchVehicles, err)
		return
	}
	c.JSON(http.StatusOK, vehiclesJSON(list))
}

func (s *Server) updateVehicle(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		s.fail(c, errUpdateVehicle, err)
		return
	}
	var req UpdateVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errUpdateVehicle, err)
		return
	}
	if err := s.deps.Store.UpdateVehicle(c.Request.Context(), id, req.update()); err != nil {
		s.fail(c, errUpdateVehicle, err)
		return
	}
	c.String(http.StatusOK, msgVehicleUpdated)
}

func (s *Server) deleteVehicle(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		s.fail(c, errDeleteVehicle, err)
		return
	}
	if err := s.deps.Store.DeleteVehicle(c.Request.Context(), id); err != nil {
		s.fail(c, errDeleteVehicle, err)
		return
	}
	c.String(http.StatusOK, msgVehicleDeleted)
}

func (s *Server) startSimulation(c *gin.Context) {
	snap, err := s.deps.Simulations.Start(c.Request.Context(), c.Param("scenario"))
	if err != nil {
		s.fail(c, errStartSimulation, err)
		return
	}
	c.JSON(http.StatusCreated, SnapshotJSON(snap))
}

func (s *Server) stopSimulation(c *gin.Context) {
	if err := s.deps.Simulations.Stop(c.Param("scenario")); err != nil {
		s.fail(c, errStopSimulation, err)
		return
	}
	c.String(http.StatusOK, msgSimulationStopped)
}

func (s *Server) getSimulation(c *gin.Context) {
	snap, err := s.deps.Simulations.Snapshot(c.Param("scenario"))
	if err != nil {
		s.fail(c, errFetchSimulation, err)
		return
	}
	c.JSON(http.StatusOK, SnapshotJSON(snap))
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.deps.CORSOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == s.deps.CORSOrigin
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// streamSimulation upgrades to a websocket and writes one JSON snapshot per tick
// until the session stops or the client goes away.
func (s *Server) streamSimulation(c *gin.Context) {
	scenario := c.Param("scenario")
	if !s.deps.Simulations.Running(scenario) {
		s.fail(c, errFetchSimulation, errors.New("simulation not running"))
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.deps.Logger.Error("websocket upgrade failed", "scenario", scenario, "error", err)
		return
	}
	defer conn.Close()

	sub := s.deps.Hub.Subscribe(scenario)
	defer s.deps.Hub.Unsubscribe(sub)

	log := s.deps.Logger.With("scenario", scenario, "remote", c.Request.RemoteAddr)
	log.Info("stream client connected")

	// the read pump only services control frames and notices disconnects
	gone := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	// The session may have stopped between the Running check and Subscribe,
	// in which case nothing will ever close sub.
	current, err := s.deps.Simulations.Snapshot(scenario)
	if err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "simulation stopped"))
		log.Info("stream closed, simulation stopped", "error", err)
		return
	}

	// a client joining mid-session sees the current state first
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(SnapshotJSON(current)); err != nil {
		log.Debug("stream write failed", "error", err)
		return
	}
	lastTick := current.Tick

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case snap, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "simulation stopped"))
				log.Info("stream closed, simulation stopped")
				return
			}
			// already covered by the initial snapshot
			if snap.Tick <= lastTick {
				continue
			}
			if err := conn.WriteJSON(SnapshotJSON(snap)); err != nil {
				log.Debug("stream write failed", "error", err)
				return
			}
			lastTick = snap.Tick
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			log.Info("stream client disconnected")
			return
		}
	}
}
