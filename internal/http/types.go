package http

import "kumo/internal/model"

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	Rule    string `json:"rule"`
	Keyword string `json:"keyword"`
	Page    int    `json:"page"`
}

// SearchResponse wraps the runtime's search output.
type SearchResponse struct {
	Success bool                  `json:"success"`
	Data    *model.SearchResponse `json:"data"`
}

// DetailRequest is the body of POST /v1/detail.
type DetailRequest struct {
	Rule string `json:"rule"`
	URL  string `json:"url"`
}

// DetailResponse wraps the runtime's detail output.
type DetailResponse struct {
	Success bool                  `json:"success"`
	Data    *model.DetailResponse `json:"data"`
}

// DiscoveryRequest is the body of POST /v1/discovery.
type DiscoveryRequest struct {
	Rule    string            `json:"rule"`
	Filters map[string]string `json:"filters"`
	Page    int               `json:"page"`
}

// DiscoveryResponse wraps the runtime's discovery output.
type DiscoveryResponse struct {
	Success bool                     `json:"success"`
	Data    *model.DiscoveryResponse `json:"data"`
}

// ContentRequest is the body of POST /v1/content.
type ContentRequest struct {
	Rule string `json:"rule"`
	URL  string `json:"url"`
}

// ContentResponse wraps the runtime's content output.
type ContentResponse struct {
	Success bool                   `json:"success"`
	Data    *model.ContentResponse `json:"data"`
}

// LoginRequest is the body of POST /v1/login.
type LoginRequest struct {
	Rule   string            `json:"rule"`
	Fields map[string]string `json:"fields"`
}

// LoginResponse wraps the runtime's login output.
type LoginResponse struct {
	Success bool                 `json:"success"`
	Data    *model.LoginResponse `json:"data"`
}

// RuleInfo summarizes one loaded rule for GET /v1/rules.
type RuleInfo struct {
	Name        string `json:"name"`
	Author      string `json:"author,omitempty"`
	Version     string `json:"version,omitempty"`
	BaseURL     string `json:"baseUrl"`
	MediaType   string `json:"mediaType"`
	Description string `json:"description,omitempty"`
	HasSearch   bool   `json:"hasSearch"`
	HasDetail   bool   `json:"hasDetail"`
	HasDiscovery bool  `json:"hasDiscovery"`
	HasContent  bool   `json:"hasContent"`
	HasLogin    bool   `json:"hasLogin"`
}

// RulesResponse lists the loaded rules.
type RulesResponse struct {
	Success bool       `json:"success"`
	Data    []RuleInfo `json:"data"`
}
