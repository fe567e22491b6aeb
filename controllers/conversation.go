package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"ChatKit/pkg/chat"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// respondError writes the status and message for a pipeline error.
func respondError(c *gin.Context, logger zerolog.Logger, err error) {
	status := chat.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"msg": chat.PublicMessage(err)})
}

func CreateConversation(p *chat.Pipeline, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body chat.CreateConversationInput
		// the body is optional
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request body"})
			return
		}
		conv, err := p.CreateConversation(c.Request.Context(), body)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, conv)
	}
}

func ListConversations(p *chat.Pipeline, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"msg": "limit must be a positive integer"})
				return
			}
			limit = n
		}
		convs, err := p.ListConversations(c.Request.Context(), limit)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, convs)
	}
}

func GetConversation(p *chat.Pipeline, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, err := p.GetConversation(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

func UpdateConversation(p *chat.Pipeline, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body chat.UpdateConversationInput
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request body"})
			return
		}
		conv, err := p.UpdateConversation(c.Request.Context(), c.Param("id"), body)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

func DeleteConversation(p *chat.Pipeline, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := p.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"msg": "conversation deleted"})
	}
}
