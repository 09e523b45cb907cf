package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atlasedu/academy-api/internal/models"
	appErrors "github.com/atlasedu/academy-api/pkg/errors"
)

// Envelope is the wire shape of every API response. Exactly one of Data or
// Error is set; Pagination and Meta accompany Data when present.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// JSON writes a success envelope with the given status. Optional trailing
// meta maps are merged into the envelope's Meta field.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	env := Envelope{Data: data, Pagination: pagination}
	for _, m := range meta {
		if m == nil {
			continue
		}
		if env.Meta == nil {
			env.Meta = make(map[string]interface{}, len(m))
		}
		for k, v := range m {
			env.Meta[k] = v
		}
	}
	write(c, status, env)
}

// Created writes a 201 envelope around the newly created resource.
func Created(c *gin.Context, data interface{}) {
	write(c, http.StatusCreated, Envelope{Data: data})
}

// Error converts err into the typed error shape and writes it with its
// mapped HTTP status.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	write(c, appErr.Status, Envelope{Error: appErr})
}

// NoContent writes an empty 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func write(c *gin.Context, status int, env Envelope) {
	c.Header("Cache-Control", "no-store")
	c.JSON(status, env)
}
