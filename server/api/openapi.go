package api

import (
	"net/http"
	"strings"
	"sync"

	"github.com/mynextid/zk-kyc/models"
	"github.com/mynextid/zk-kyc/prover"
)

// Route documents one endpoint of the API
type Route struct {
	Method  string
	Path    string
	Summary string
	Tag     string
	// Request and Response name schemas in components
	Request  string
	Response string
}

// Routes is the documented surface, in registration order
var Routes = []Route{
	{http.MethodGet, "/health", "Health check", "system", "", ""},
	{http.MethodGet, "/circuits", "List circuits", "circuits", "", "CircuitListResponse"},
	{http.MethodGet, "/circuits/{circuit}", "Get circuit information", "circuits", "", "CircuitInfoResponse"},
	{http.MethodPost, "/prove/{circuit}", "Generate an age, document or kyc proof", "proofs", "ProveRequest", "ProveResponse"},
	{http.MethodPost, "/verify/{circuit}", "Verify a proof artifact", "proofs", "VerifyRequest", "VerifyResponse"},
	{http.MethodPost, "/v1/protected-data", "Protect a payload", "confidential", "ProtectRequest", "ProtectResponse"},
	{http.MethodPost, "/v1/grants", "Grant an app access to protected data", "confidential", "GrantRequest", "GrantResponse"},
	{http.MethodPost, "/v1/tasks", "Run the confidential task", "confidential", "ProcessRequest", "ProcessResponse"},
	{http.MethodGet, "/v1/network/{chainId}", "Resolve a network profile", "confidential", "", "NetworkResponse"},
	{http.MethodPost, "/v1/sessions", "Create a verification session", "sessions", "", "VerificationSession"},
	{http.MethodGet, "/v1/sessions/{id}", "Get a verification session", "sessions", "", "VerificationSession"},
	{http.MethodDelete, "/v1/sessions/{id}", "Delete a verification session", "sessions", "", ""},
	{http.MethodPost, "/v1/sessions/{id}/run", "Run a verification attempt", "sessions", "RunRequest", "VerificationSession"},
	{http.MethodPost, "/v1/sessions/{id}/reset", "Reset a verification session", "sessions", "", "VerificationSession"},
	{http.MethodGet, "/v1/ledger/{subject}", "Get the ledger verification of a subject", "ledger", "", "Verification"},
	{http.MethodGet, "/v1/logs", "Recent log entries", "system", "", ""},
}

type OpenAPISpec struct {
	OpenAPI    string                          `json:"openapi"`
	Info       OpenAPIInfo                     `json:"info"`
	Paths      map[string]map[string]Operation `json:"paths"`
	Components OpenAPIComponents               `json:"components"`
}

type OpenAPIInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

type Operation struct {
	Summary     string              `json:"summary"`
	OperationID string              `json:"operationId"`
	Tags        []string            `json:"tags,omitempty"`
	Parameters  []Parameter         `json:"parameters,omitempty"`
	RequestBody *RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]Response `json:"responses"`
}

type Parameter struct {
	Name     string  `json:"name"`
	In       string  `json:"in"`
	Required bool    `json:"required"`
	Schema   *Schema `json:"schema"`
}

type RequestBody struct {
	Required bool                 `json:"required"`
	Content  map[string]MediaType `json:"content"`
}

type MediaType struct {
	Schema *Schema `json:"schema"`
}

type Response struct {
	Description string               `json:"description"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

type Schema struct {
	Type string   `json:"type,omitempty"`
	Ref  string   `json:"$ref,omitempty"`
	Enum []string `json:"enum,omitempty"`
}

type OpenAPIComponents struct {
	Schemas map[string]any `json:"schemas"`
}

// GenerateOpenAPISpec builds an OpenAPI 3.0 document from Routes
func GenerateOpenAPISpec(title, version string) *OpenAPISpec {
	spec := &OpenAPISpec{
		OpenAPI: "3.0.3",
		Info: OpenAPIInfo{
			Title:       title,
			Description: "Zero-knowledge identity proofs, confidential verification tasks and verification sessions",
			Version:     version,
		},
		Paths:      make(map[string]map[string]Operation),
		Components: OpenAPIComponents{Schemas: make(map[string]any)},
	}

	for _, rt := range Routes {
		op := Operation{
			Summary:     rt.Summary,
			OperationID: operationID(rt),
			Tags:        []string{rt.Tag},
			Parameters:  pathParameters(rt.Path),
			Responses: map[string]Response{
				"default": {Description: "Error", Content: jsonContent("ErrorResponse")},
			},
		}
		ok := Response{Description: "Success"}
		if rt.Response != "" {
			ok.Content = jsonContent(rt.Response)
			spec.Components.Schemas[rt.Response] = map[string]string{"type": "object"}
		}
		op.Responses["200"] = ok
		if rt.Request != "" {
			op.RequestBody = &RequestBody{Required: true, Content: jsonContent(rt.Request)}
			spec.Components.Schemas[rt.Request] = map[string]string{"type": "object"}
		}

		if spec.Paths[rt.Path] == nil {
			spec.Paths[rt.Path] = make(map[string]Operation)
		}
		spec.Paths[rt.Path][strings.ToLower(rt.Method)] = op
	}
	spec.Components.Schemas["ErrorResponse"] = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"error":     map[string]string{"type": "string"},
			"code":      map[string]string{"type": "string"},
			"timestamp": map[string]string{"type": "string", "format": "date-time"},
		},
	}
	return spec
}

var (
	openAPIOnce sync.Once
	openAPISpec *OpenAPISpec
)

// HandleOpenAPI serves the generated OpenAPI document
func (s *Server) HandleOpenAPI(w http.ResponseWriter, r *http.Request) {
	openAPIOnce.Do(func() {
		openAPISpec = GenerateOpenAPISpec("zk-kyc", "v1")
	})
	respondJSON(w, http.StatusOK, openAPISpec)
}

func jsonContent(schema string) map[string]MediaType {
	return map[string]MediaType{
		"application/json": {Schema: &Schema{Ref: "#/components/schemas/" + schema}},
	}
}

func pathParameters(path string) []Parameter {
	var params []Parameter
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			name := strings.Trim(seg, "{}")
			p := Parameter{Name: name, In: "path", Required: true, Schema: &Schema{Type: "string"}}
			if name == "circuit" {
				p.Schema.Enum = circuitTypes(path)
			}
			params = append(params, p)
		}
	}
	return params
}

// circuitTypes lists the values {circuit} accepts on path
func circuitTypes(path string) []string {
	if strings.HasPrefix(path, "/circuits") {
		return prover.CircuitIDs()
	}
	return []string{string(models.CircuitAge), string(models.CircuitDocument), string(models.CircuitKYC)}
}

func operationID(rt Route) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(rt.Method))
	capitalize := true
	for _, c := range rt.Path {
		switch {
		case c == '/' || c == '-' || c == '{' || c == '}':
			capitalize = true
		case capitalize:
			b.WriteString(strings.ToUpper(string(c)))
			capitalize = false
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}
