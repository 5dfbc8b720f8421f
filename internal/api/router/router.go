package router

import (
	"net/http"

	"github.com/wb-go/wbf/ginext"

	"github.com/pixmint/genapi/internal/api/handlers/catalog"
	"github.com/pixmint/genapi/internal/api/handlers/generation"
	"github.com/pixmint/genapi/internal/middleware"
)

// Setup wires all routes. Job endpoints sit behind the development
// bearer token; the catalog and health endpoints are public.
func Setup(gh *generation.Handler, ch *catalog.Handler, devToken string) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	r.GET("/health", func(c *ginext.Context) {
		c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := r.Group("/api")

	api.GET("/styles", ch.ListStyles)     // listing catalog styles
	api.GET("/prompts/:id", ch.GetPrompt) // getting a prompt template

	jobs := api.Group("", middleware.Auth(devToken))

	jobs.POST("/generate", gh.Generate)     // synchronous generation
	jobs.POST("/edit", gh.Edit)             // accepted + background completion
	jobs.GET("/jobs/:id", gh.Status)        // polling job status
	jobs.GET("/jobs/:id/result", gh.Result) // fetching the primary result

	return r
}
