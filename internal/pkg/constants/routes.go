package constants

// Static route constants
const (
	APIRoute   = "/api"
	APIV1Route = "/v1"
	// Swagger UI base path for the served OpenAPI document
	DocsRoute = "/docs/api/"
)
