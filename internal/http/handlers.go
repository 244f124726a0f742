package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"kumo/internal/errs"
	"kumo/internal/runtime"
)

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "BAD_REQUEST", Error: msg})
}

func ruleNotFound(c *fiber.Ctx, name string) error {
	return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Code: "RULE_NOT_FOUND", Error: "no rule named " + name})
}

// flowError maps the runtime's error taxonomy onto HTTP statuses.
func flowError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := "INTERNAL_ERROR"
	switch errs.KindOf(err) {
	case errs.KindConfig, errs.KindMissingConfig, errs.KindInvalidConfigValue:
		status, code = fiber.StatusBadRequest, "INVALID_RULE"
	case errs.KindExtraction, errs.KindTemplate, errs.KindVariableNotFound,
		errs.KindUndefinedComponent, errs.KindPagination:
		status, code = fiber.StatusUnprocessableEntity, "EXTRACTION_FAILED"
	case errs.KindHTTPConfig, errs.KindHTTPRequest:
		status, code = fiber.StatusBadGateway, "UPSTREAM_FAILED"
	case errs.KindChallengeFailed, errs.KindChallengeMaxAttempts,
		errs.KindWebViewUnavailable, errs.KindWebViewTimeout, errs.KindWebViewUserClosed, errs.KindWebViewError:
		status, code = fiber.StatusServiceUnavailable, "CHALLENGE_FAILED"
	case errs.KindScriptSyntax, errs.KindScriptRuntime, errs.KindScriptTimeout:
		status, code = fiber.StatusUnprocessableEntity, "SCRIPT_FAILED"
	}
	return c.Status(status).JSON(ErrorResponse{Code: code, Error: err.Error()})
}

// resolveRuntime parses the rule name out of a request and returns its
// runtime, or writes the error response.
func (s *Server) resolveRuntime(c *fiber.Ctx, name string) (*runtime.Runtime, error, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, badRequest(c, "rule is required"), false
	}
	rt, found, err := s.runtimeFor(name)
	if err != nil {
		return nil, flowError(c, err), false
	}
	if !found {
		return nil, ruleNotFound(c, name), false
	}
	return rt, nil, true
}

func (s *Server) handleSearch(c *fiber.Ctx) error {
	var req SearchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body: "+err.Error())
	}
	if strings.TrimSpace(req.Keyword) == "" {
		return badRequest(c, "keyword is required")
	}
	rt, errResp, ok := s.resolveRuntime(c, req.Rule)
	if !ok {
		return errResp
	}

	resp, err := rt.Search(c.Context(), req.Keyword, req.Page)
	if err != nil {
		return flowError(c, err)
	}
	return c.JSON(SearchResponse{Success: true, Data: resp})
}

func (s *Server) handleDetail(c *fiber.Ctx) error {
	var req DetailRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body: "+err.Error())
	}
	if strings.TrimSpace(req.URL) == "" {
		return badRequest(c, "url is required")
	}
	rt, errResp, ok := s.resolveRuntime(c, req.Rule)
	if !ok {
		return errResp
	}

	resp, err := rt.Detail(c.Context(), req.URL)
	if err != nil {
		return flowError(c, err)
	}
	return c.JSON(DetailResponse{Success: true, Data: resp})
}

func (s *Server) handleDiscovery(c *fiber.Ctx) error {
	var req DiscoveryRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body: "+err.Error())
	}
	rt, errResp, ok := s.resolveRuntime(c, req.Rule)
	if !ok {
		return errResp
	}

	resp, err := rt.Discovery(c.Context(), req.Filters, req.Page)
	if err != nil {
		return flowError(c, err)
	}
	return c.JSON(DiscoveryResponse{Success: true, Data: resp})
}

func (s *Server) handleContent(c *fiber.Ctx) error {
	var req ContentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body: "+err.Error())
	}
	if strings.TrimSpace(req.URL) == "" {
		return badRequest(c, "url is required")
	}
	rt, errResp, ok := s.resolveRuntime(c, req.Rule)
	if !ok {
		return errResp
	}

	resp, err := rt.Content(c.Context(), req.URL)
	if err != nil {
		return flowError(c, err)
	}
	return c.JSON(ContentResponse{Success: true, Data: resp})
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body: "+err.Error())
	}
	rt, errResp, ok := s.resolveRuntime(c, req.Rule)
	if !ok {
		return errResp
	}

	resp, err := rt.Login(c.Context(), req.Fields)
	if err != nil {
		return flowError(c, err)
	}
	return c.JSON(LoginResponse{Success: true, Data: resp})
}
