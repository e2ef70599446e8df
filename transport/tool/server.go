package tool

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CallResult is the body returned by POST /tools/:name.
type CallResult struct {
	Tool    string `json:"tool"`
	Content string `json:"content"`
}

// ResourceResult is the body returned by GET /resources?uri=.
type ResourceResult struct {
	URI     string `json:"uri"`
	Content string `json:"content"`
}

// Register mounts the tool routes on rg:
//
//	GET  /tools            list tools
//	POST /tools/:name      call a tool with a JSON argument object
//	GET  /resources        list resource templates, or read one with ?uri=
func (r *Registry) Register(rg gin.IRouter) {
	rg.GET("/tools", r.listTools)
	rg.POST("/tools/:name", r.callTool)
	rg.GET("/resources", r.readResource)
}

func (r *Registry) listTools(c *gin.Context) {
	c.JSON(http.StatusOK, r.Tools())
}

func (r *Registry) callTool(c *gin.Context) {
	name := c.Param("name")
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "unreadable request body"})
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "arguments must be a JSON object"})
		return
	}
	out, err := r.Call(c.Request.Context(), name, body)
	if errors.Is(err, ErrUnknownTool) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": "unknown tool: " + name})
		return
	}
	c.JSON(http.StatusOK, CallResult{Tool: name, Content: out})
}

func (r *Registry) readResource(c *gin.Context) {
	uri := c.Query("uri")
	if uri == "" {
		c.JSON(http.StatusOK, r.Resources())
		return
	}
	out, err := r.Read(c.Request.Context(), uri)
	if errors.Is(err, ErrUnknownResource) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": "unknown resource: " + uri})
		return
	}
	c.JSON(http.StatusOK, ResourceResult{URI: uri, Content: out})
}
