package handler

import (
	"net/http"

	"github.com/theearthwanderer/rentalagent/internal/model"
	"github.com/theearthwanderer/rentalagent/internal/service"

	"github.com/gin-gonic/gin"
)

// SearchHandler handles direct (non-conversational) search requests
type SearchHandler struct {
	engine *service.SearchEngine
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(engine *service.SearchEngine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

// Search handles POST /api/v1/search
func (h *SearchHandler) Search(c *gin.Context) {
	var req model.SearchQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if req.Sort != "" && !req.Sort.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sort_by. Must be one of: relevance, price_asc, price_desc, newest"})
		return
	}

	results, err := h.engine.Search(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Search failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"total":   len(results),
	})
}

// GetListing handles GET /api/v1/listings/:id
func (h *SearchHandler) GetListing(c *gin.Context) {
	id := c.Param("id")

	listing, err := h.engine.GetListing(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to get listing: " + err.Error()})
		return
	}
	if listing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		return
	}

	c.JSON(http.StatusOK, listing)
}

// IngestBatch handles POST /api/v1/listings/batch
func (h *SearchHandler) IngestBatch(c *gin.Context) {
	var req model.IngestBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if len(req.Listings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No listings provided"})
		return
	}

	success, errs := h.engine.Ingest(c.Request.Context(), req.Listings)

	response := model.IngestBatchResponse{
		Success: success,
		Failed:  len(req.Listings) - success,
		Errors:  errs,
	}

	if len(errs) > 0 {
		c.JSON(http.StatusPartialContent, response)
	} else {
		c.JSON(http.StatusOK, response)
	}
}
