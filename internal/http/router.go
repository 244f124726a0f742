// Package http exposes the runtime over a small fiber API: one
// endpoint per flow, plus rule listing, health, and metrics.
package http

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"kumo/internal/config"
	"kumo/internal/metrics"
	"kumo/internal/rule"
	"kumo/internal/runtime"
)

// Server hosts one Runtime per loaded rule.
type Server struct {
	app    *fiber.App
	config *config.Config
	logger *slog.Logger

	mu       sync.RWMutex
	rules    map[string]*rule.Rule
	runtimes map[string]*runtime.Runtime
	opts     *runtime.Options
}

// NewServer wires routes and middleware. Runtimes are created lazily
// per rule on first use and then shared.
func NewServer(cfg *config.Config, rules map[string]*rule.Rule, opts *runtime.Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	app := fiber.New()

	s := &Server{
		app:      app,
		config:   cfg,
		logger:   logger,
		rules:    rules,
		runtimes: map[string]*runtime.Runtime{},
		opts:     opts,
	}

	// Request logging + metrics middleware
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		metrics.RecordRequest(c.Method(), c.Path(), status, latency.Milliseconds())
		logger.Info("request",
			"request_id", reqID,
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency_ms", latency.Milliseconds(),
		)
		return err
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/plain; version=0.0.4")
		return c.SendString(metrics.Export())
	})

	v1 := app.Group("/v1")
	v1.Get("/rules", s.handleRules)
	v1.Post("/search", s.handleSearch)
	v1.Post("/detail", s.handleDetail)
	v1.Post("/discovery", s.handleDiscovery)
	v1.Post("/content", s.handleContent)
	v1.Post("/login", s.handleLogin)

	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen blocks serving on the configured address.
func (s *Server) Listen() error {
	addr := s.config.Server.Host
	port := s.config.Server.Port
	if port == 0 {
		port = 8080
	}
	return s.app.Listen(addrJoin(addr, port))
}

func addrJoin(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// runtimeFor returns the shared Runtime for a rule name, creating it
// on first use.
func (s *Server) runtimeFor(name string) (*runtime.Runtime, bool, error) {
	s.mu.RLock()
	rt, ok := s.runtimes[name]
	s.mu.RUnlock()
	if ok {
		return rt, true, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.runtimes[name]; ok {
		return rt, true, nil
	}
	r, ok := s.rules[name]
	if !ok {
		return nil, false, nil
	}
	rt, err := runtime.New(r, s.opts)
	if err != nil {
		return nil, true, err
	}
	s.runtimes[name] = rt
	return rt, true, nil
}

func (s *Server) handleRules(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]RuleInfo, 0, len(s.rules))
	for _, r := range s.rules {
		infos = append(infos, RuleInfo{
			Name:         r.Meta.Name,
			Author:       r.Meta.Author,
			Version:      r.Meta.Version,
			BaseURL:      r.Meta.BaseURL,
			MediaType:    string(r.Meta.MediaType),
			Description:  r.Meta.Description,
			HasSearch:    r.Search != nil,
			HasDetail:    r.Detail != nil,
			HasDiscovery: r.Discovery != nil,
			HasContent:   r.Content != nil,
			HasLogin:     r.Login != nil,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return c.JSON(RulesResponse{Success: true, Data: infos})
}
