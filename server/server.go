// Package server exposes the monitor's outputs to dashboards: a JSON API for
// snapshots, alerts and the session summary, and a websocket stream that
// pushes a snapshot after every pipeline step.
package server

import (
	"context"
	"encoding/json"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/nvr-ai/go-proctor/behavior"
	"github.com/nvr-ai/go-proctor/controller"
	"github.com/nvr-ai/go-proctor/internal/log"
	"github.com/pkg/errors"
)

// Backend is what the API reads and mutates. *controller.Scheduler satisfies it.
type Backend interface {
	Snapshot() controller.Snapshot
	Session() (controller.Session, bool)
	Dismiss(id string) bool
	ClearAll()
	Running() bool
}

// Alert is an alert as the dashboard renders it.
type Alert struct {
	behavior.Event
	Label    string            `json:"label"`
	Severity behavior.Severity `json:"severity"`
}

// AlertList is the body of GET /api/alerts.
type AlertList struct {
	Alerts       []Alert `json:"alerts"`
	HighSeverity int     `json:"highSeverity"`
}

// HealthReport is the body of GET /api/health.
type HealthReport struct {
	Status  controller.Health      `json:"status"`
	FPS     int                    `json:"fps"`
	Running bool                   `json:"running"`
	Model   controller.ModelStatus `json:"model"`
}

// Server is the dashboard API.
type Server struct {
	app     *fiber.App
	hub     *Hub
	backend Backend
}

// NewServer builds the routes over backend.
//
// Arguments:
//   - backend: The running monitor, normally a *controller.Scheduler.
//
// Returns:
//   - *Server: A server that is not yet listening.
//
// @example
// srv := server.NewServer(scheduler)
// scheduler.OnSnapshot(srv.Publish)
// go srv.ListenAndServe(ctx, ":8080")
func NewServer(backend Backend) *Server {
	s := &Server{
		backend: backend,
		hub:     NewHub("snapshot"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-proctor",
		DisableStartupMessage: true,
	})

	api := app.Group("/api")
	api.Get("/snapshot", s.handleSnapshot)
	api.Get("/alerts", s.handleAlerts)
	api.Delete("/alerts/:id", s.handleDismiss)
	api.Delete("/alerts", s.handleClearAll)
	api.Get("/session", s.handleSession)
	api.Get("/health", s.handleHealth)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/snapshot", websocket.New(s.handleSnapshotWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the snapshot broadcast hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Publish pushes a snapshot to every websocket client. It has the shape of a
// controller.Scheduler observer.
func (s *Server) Publish(snap controller.Snapshot) {
	if err := s.hub.BroadcastJSON(snap); err != nil {
		log.Warn("failed to publish snapshot", "error", err)
	}
}

// ListenAndServe listens on addr and serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the broadcast hub and serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.hub.Run(ctx)
	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			log.Warn("dashboard shutdown failed", "error", err)
		}
	}()

	log.Info("dashboard listening", "addr", ln.Addr().String())
	if err := s.app.Listener(ln); err != nil {
		return errors.Wrap(err, "serve dashboard")
	}
	return nil
}

func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	return c.JSON(s.backend.Snapshot())
}

func (s *Server) handleAlerts(c *fiber.Ctx) error {
	snap := s.backend.Snapshot()
	list := AlertList{Alerts: make([]Alert, 0, len(snap.Alerts))}
	for _, e := range snap.Alerts {
		severity := e.Type.Severity()
		if severity == behavior.SeverityHigh {
			list.HighSeverity++
		}
		list.Alerts = append(list.Alerts, Alert{Event: e, Label: e.Type.Label(), Severity: severity})
	}
	return c.JSON(list)
}

func (s *Server) handleDismiss(c *fiber.Ctx) error {
	id := c.Params("id")
	if !s.backend.Dismiss(id) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "alert not found", "id": id})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleClearAll(c *fiber.Ctx) error {
	s.backend.ClearAll()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSession(c *fiber.Ctx) error {
	session, ok := s.backend.Session()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no session"})
	}
	return c.JSON(session)
}

// handleHealth answers 503 until the model is loaded.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	snap := s.backend.Snapshot()
	report := HealthReport{
		Status:  snap.Health,
		FPS:     snap.Stats.FPS,
		Running: s.backend.Running(),
		Model:   snap.Model,
	}
	if !snap.Model.Loaded {
		c.Status(fiber.StatusServiceUnavailable)
	}
	return c.JSON(report)
}

// handleSnapshotWS greets each client with the current snapshot, then streams
// every published one.
func (s *Server) handleSnapshotWS(conn *websocket.Conn) {
	greeting, err := json.Marshal(s.backend.Snapshot())
	if err != nil {
		log.Warn("failed to encode greeting snapshot", "error", err)
		greeting = nil
	}
	s.hub.serve(conn, greeting)
}
