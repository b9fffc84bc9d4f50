// http/handlers.go
package http

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"
	"github.com/vinizap/pronode/auth"
	"github.com/vinizap/pronode/domain"
	"github.com/vinizap/pronode/identity"
	"github.com/vinizap/pronode/remote"
	"github.com/vinizap/pronode/ws"
)

type Server struct {
	store remote.Store
	authn *auth.Authenticator
	hub   *ws.Hub
	log   zerolog.Logger
	app   *fiber.App
}

func NewServer(store remote.Store, authn *auth.Authenticator, hub *ws.Hub, log zerolog.Logger) *Server {
	s := &Server{
		store: store,
		authn: authn,
		hub:   hub,
		log:   log.With().Str("component", "http").Logger(),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "pronode",
		DisableStartupMessage: true,
		UnescapePath:          true,
		ErrorHandler:          s.handleError,
	})
	s.routes()
	return s
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	s.log.Info().Str("addr", addr).Msg("listening")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error { return s.app.Shutdown() }

func (s *Server) routes() {
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET, PUT, PATCH, DELETE, OPTIONS",
		AllowHeaders: "Authorization, Content-Type, " + auth.HeaderToken,
	}))

	s.app.Get("/healthz", s.HandleHealth)

	api := s.app.Group("/api", s.authn.Middleware())
	api.Get("/session", s.HandleSession)
	api.Get("/data/*", s.HandleGet)
	api.Put("/data/*", s.HandlePut)
	api.Patch("/data/*", s.HandlePatch)
	api.Delete("/data/*", s.HandleDelete)

	s.app.Get("/ws", s.authn.Middleware(), func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}, websocket.New(s.HandleWebSocket))
}

func (s *Server) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "clients": s.hub.Clients()})
}

func (s *Server) HandleSession(c *fiber.Ctx) error {
	p := auth.PrincipalFrom(c)
	return c.JSON(fiber.Map{
		"principal":   p,
		"namespace":   domain.Namespace(p),
		"displayName": identity.DisplayName(p),
	})
}

// dataPath cleans the wildcard part of the route and checks the caller may
// touch it.
func (s *Server) dataPath(c *fiber.Ctx) (string, error) {
	path, err := remote.Clean(c.Params("*"))
	if err != nil {
		return "", err
	}
	if err := auth.Authorize(auth.PrincipalFrom(c), path); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Server) HandleGet(c *fiber.Ctx) error {
	path, err := s.dataPath(c)
	if err != nil {
		return err
	}
	snap, err := s.store.Get(c.UserContext(), path)
	if err != nil {
		return err
	}
	if orderBy := c.Query("orderBy"); orderBy != "" && len(snap.Children) > 0 {
		// Get has no ordering hint; re-render the children with one.
		tree, err := remote.Normalize(childObject(snap.Children))
		if err != nil {
			return err
		}
		if snap, err = remote.MakeSnapshot(path, tree, orderBy); err != nil {
			return err
		}
	}
	return c.JSON(snap)
}

func childObject(children []remote.Child) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(children))
	for _, ch := range children {
		out[ch.Key] = ch.Value
	}
	return out
}

func (s *Server) HandlePut(c *fiber.Ctx) error {
	path, err := s.dataPath(c)
	if err != nil {
		return err
	}
	body := c.Body()
	if !json.Valid(body) {
		return fiber.NewError(fiber.StatusBadRequest, "body must be JSON")
	}
	if err := s.store.Write(c.UserContext(), path, json.RawMessage(body)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) HandlePatch(c *fiber.Ctx) error {
	path, err := s.dataPath(c)
	if err != nil {
		return err
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(c.Body(), &values); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "body must be a JSON object of relative paths")
	}
	update := make(map[string]any, len(values))
	for k, v := range values {
		if string(v) == "null" {
			update[k] = nil
		} else {
			update[k] = v
		}
	}
	if err := s.store.Update(c.UserContext(), path, update); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) HandleDelete(c *fiber.Ctx) error {
	path, err := s.dataPath(c)
	if err != nil {
		return err
	}
	if err := s.store.Remove(c.UserContext(), path); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) HandleWebSocket(conn *websocket.Conn) {
	s.hub.Serve(conn, auth.FromLocals(conn.Locals(auth.LocalsKey)))
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, remote.ErrPermissionDenied):
		code = fiber.StatusForbidden
	case errors.Is(err, remote.ErrInvalidPath), errors.Is(err, remote.ErrInvalidValue), domain.IsValidation(err):
		code = fiber.StatusBadRequest
	case errors.Is(err, remote.ErrOffline):
		code = fiber.StatusServiceUnavailable
	}
	if code >= fiber.StatusInternalServerError {
		s.log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
