package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/prompts"
	"github.com/hyperithm-public/gemini-system-prompt-ext/internal/settings"
)

const apiPrefix = "/api"

func (s *Server) apiAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		if !s.authenticate(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func (s *Server) registerAPIRoutes(engine *gin.Engine) {
	api := engine.Group(apiPrefix, s.apiAuthMiddleware())
	api.GET("/settings", s.ginAPISettings)
	api.PUT("/settings", s.ginAPIReplaceSettings)
	api.PUT("/settings/enabled", s.ginAPISetEnabled)
	api.POST("/instructions", s.ginAPIAddInstruction)
	api.DELETE("/instructions/:index", s.ginAPIRemoveInstruction)
	api.GET("/examples", s.ginAPIExamples)
	api.GET("/ledger", s.ginAPILedger)
}

type settingsResponse struct {
	settings.Snapshot
	MaxInstructions      int  `json:"maxInstructions"`
	MaxInstructionLength int  `json:"maxInstructionLength"`
	Published            bool `json:"published"`
}

func (s *Server) settingsJSON(c *gin.Context, status int, snap settings.Snapshot) {
	if snap.Instructions == nil {
		snap.Instructions = []string{}
	}
	c.JSON(status, settingsResponse{
		Snapshot:             snap,
		MaxInstructions:      settings.MaxInstructions,
		MaxInstructionLength: settings.MaxInstructionLength,
		Published:            s.Bridge.Status().Publishes > 0,
	})
}

func (s *Server) ginAPISettings(c *gin.Context) {
	snap, err := s.Bridge.Settings()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.settingsJSON(c, http.StatusOK, snap)
}

func (s *Server) ginAPIReplaceSettings(c *gin.Context) {
	var body settings.Snapshot
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	snap, err := s.Bridge.Replace(body)
	if err != nil {
		s.editorError(c, err)
		return
	}
	s.settingsJSON(c, http.StatusOK, snap)
}

func (s *Server) ginAPISetEnabled(c *gin.Context) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Enabled == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "enabled required"})
		return
	}
	snap, err := s.Bridge.SetEnabled(*body.Enabled)
	if err != nil {
		s.editorError(c, err)
		return
	}
	s.settingsJSON(c, http.StatusOK, snap)
}

func (s *Server) ginAPIAddInstruction(c *gin.Context) {
	var body struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	snap, err := s.Bridge.AddInstruction(body.Text)
	if err != nil {
		s.editorError(c, err)
		return
	}
	s.settingsJSON(c, http.StatusCreated, snap)
}

func (s *Server) ginAPIRemoveInstruction(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "index must be a number"})
		return
	}
	snap, err := s.Bridge.RemoveInstruction(index)
	if err != nil {
		s.editorError(c, err)
		return
	}
	s.settingsJSON(c, http.StatusOK, snap)
}

func (s *Server) ginAPIExamples(c *gin.Context) {
	locale := s.requestLocale(c)
	c.JSON(http.StatusOK, gin.H{
		"locale":   locale,
		"examples": prompts.Get(locale).Examples,
	})
}

func (s *Server) ginAPILedger(c *gin.Context) {
	l := s.Interceptor.Ledger()
	c.JSON(http.StatusOK, gin.H{
		"capacity":      l.Capacity(),
		"conversations": l.IDs(),
	})
}

// requestLocale: ?locale=, then Accept-Language, then the configured default.
func (s *Server) requestLocale(c *gin.Context) string {
	if l := c.Query("locale"); l != "" {
		return l
	}
	if al := c.GetHeader("Accept-Language"); al != "" {
		tag, _, _ := strings.Cut(al, ",")
		tag, _, _ = strings.Cut(tag, ";")
		if tag = strings.TrimSpace(tag); tag != "" && tag != "*" {
			return tag
		}
	}
	return s.Config.Locale
}

// editorError maps bridge edit errors to a status and a localized message.
func (s *Server) editorError(c *gin.Context, err error) {
	m := prompts.Get(s.requestLocale(c))
	status, msg := http.StatusBadRequest, ""
	switch {
	case errors.Is(err, settings.ErrEmptyInstruction):
		msg = m.EmptyInstruction
	case errors.Is(err, settings.ErrInstructionTooLong):
		msg = fmt.Sprintf(m.InstructionTooLongFmt, settings.MaxInstructionLength)
	case errors.Is(err, settings.ErrTooManyInstructions):
		msg = fmt.Sprintf(m.TooManyInstructionsFmt, settings.MaxInstructions)
	case errors.Is(err, settings.ErrNoSuchInstruction):
		status, msg = http.StatusNotFound, m.NoSuchInstruction
	default:
		status, msg = http.StatusInternalServerError, err.Error()
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
