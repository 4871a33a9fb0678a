package handler

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2"
	"gopkg.in/yaml.v3"

	"github.com/estately/priceuq/docs"
)

// DocsHandler serves the OpenAPI document
type DocsHandler struct {
	spec []byte

	once    sync.Once
	jsonDoc []byte
	jsonErr error
}

// NewDocsHandler creates a docs handler for the embedded document
func NewDocsHandler() *DocsHandler {
	return &DocsHandler{spec: docs.OpenAPISpec}
}

// RegisterRoutes registers documentation routes
func (h *DocsHandler) RegisterRoutes(app fiber.Router) {
	app.Get("/openapi.yaml", h.ServeOpenAPIYAML)
	app.Get("/openapi.json", h.ServeOpenAPIJSON)
	app.Get("/docs", h.ServeSwaggerUI)
}

// ServeOpenAPIYAML serves the OpenAPI YAML document
func (h *DocsHandler) ServeOpenAPIYAML(c *fiber.Ctx) error {
	c.Set("Content-Type", "application/yaml")
	return c.Send(h.spec)
}

// ServeOpenAPIJSON serves the same document converted to JSON
func (h *DocsHandler) ServeOpenAPIJSON(c *fiber.Ctx) error {
	h.once.Do(func() {
		h.jsonDoc, h.jsonErr = yamlToJSON(h.spec)
	})
	if h.jsonErr != nil {
		return fiber.NewError(fiber.StatusInternalServerError, h.jsonErr.Error())
	}
	c.Set("Content-Type", fiber.MIMEApplicationJSON)
	return c.Send(h.jsonDoc)
}

func yamlToJSON(in []byte) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(in, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode OpenAPI document: %w", err)
	}
	return out, nil
}

// ServeSwaggerUI serves a Swagger UI page pointed at /openapi.yaml
func (h *DocsHandler) ServeSwaggerUI(c *fiber.Ctx) error {
	const page = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>priceuq API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({url: "/openapi.yaml", dom_id: "#swagger-ui", persistAuthorization: true});
        };
    </script>
</body>
</html>`
	c.Set("Content-Type", fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(page)
}
