package httpapi

import (
	"net/http"
	"time"

	"chatgate/internal/apierr"
	"chatgate/internal/translate"

	"github.com/gin-gonic/gin"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// listModels handles GET /v1/models. The catalog is static and the
// endpoint requires no authentication.
func (s *Server) listModels(c *gin.Context) {
	created := time.Now().Unix()
	entries := make([]modelEntry, 0)
	for _, id := range translate.Catalog() {
		entries = append(entries, modelEntry{
			ID:      id,
			Object:  "model",
			Created: created,
			OwnedBy: "chatgate",
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": entries})
}

// deprecatedEngines handles GET /v1/engines, retired in favor of
// /v1/models.
func (s *Server) deprecatedEngines(c *gin.Context) {
	apierr.Write(c, apierr.New(http.StatusGone, apierr.TypeDeprecated, "endpoint_removed",
		"the engines endpoint is deprecated, use /v1/models instead"))
}
