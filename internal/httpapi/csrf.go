package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
)

func csrfToken(c *gin.Context) string { return csrf.Token(c.Request) }
