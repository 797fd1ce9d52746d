package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smswithoutborders/publisher/internal/service/publisher"
	"github.com/smswithoutborders/publisher/internal/status"
)

// PublisherHandler exposes the four publisher operations over HTTP.
type PublisherHandler struct {
	Service *publisher.Service
}

// NewPublisherHandler creates the handler set.
func NewPublisherHandler(service *publisher.Service) *PublisherHandler {
	return &PublisherHandler{Service: service}
}

// AuthorizationURL handles generating OAuth2 authorization URLs.
func (h *PublisherHandler) AuthorizationURL(c *gin.Context) {
	var req struct {
		Platform                 string `json:"platform"`
		State                    string `json:"state"`
		CodeVerifier             string `json:"code_verifier"`
		AutogenerateCodeVerifier bool   `json:"autogenerate_code_verifier"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}

	out, err := h.Service.AuthorizationURL(c.Request.Context(), publisher.AuthorizationURLInput{
		Platform:                 req.Platform,
		State:                    req.State,
		CodeVerifier:             req.CodeVerifier,
		AutogenerateCodeVerifier: req.AutogenerateCodeVerifier,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"message":           out.Message,
		"authorization_url": out.AuthorizationURL,
		"state":             out.State,
		"code_verifier":     out.CodeVerifier,
	})
}

// Exchange handles exchanging an OAuth2 authorization code and storing the
// resulting token in the vault.
func (h *PublisherHandler) Exchange(c *gin.Context) {
	var req struct {
		LongLivedToken    string `json:"long_lived_token"`
		Platform          string `json:"platform"`
		AuthorizationCode string `json:"authorization_code"`
		CodeVerifier      string `json:"code_verifier"`
		State             string `json:"state"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}

	out, err := h.Service.ExchangeAndStore(c.Request.Context(), publisher.ExchangeInput{
		LongLivedToken:    req.LongLivedToken,
		Platform:          req.Platform,
		AuthorizationCode: req.AuthorizationCode,
		CodeVerifier:      req.CodeVerifier,
		State:             req.State,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": out.Success, "message": out.Message})
}

// Revoke handles revoking and deleting a stored OAuth2 token.
func (h *PublisherHandler) Revoke(c *gin.Context) {
	var req struct {
		LongLivedToken    string `json:"long_lived_token"`
		Platform          string `json:"platform"`
		AccountIdentifier string `json:"account_identifier"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}

	out, err := h.Service.RevokeAndDelete(c.Request.Context(), publisher.RevokeInput{
		LongLivedToken:    req.LongLivedToken,
		Platform:          req.Platform,
		AccountIdentifier: req.AccountIdentifier,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": out.Success, "message": out.Message})
}

// Publish handles publishing a relay payload.
func (h *PublisherHandler) Publish(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c)
		return
	}

	out, err := h.Service.Publish(c.Request.Context(), publisher.PublishInput{Content: req.Content})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":            out.Success,
		"message":            out.Message,
		"publisher_response": out.ProviderResponse,
	})
}

func respondBadRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"code":    status.InvalidArgument.String(),
		"message": "Invalid request body.",
	})
}

func respondError(c *gin.Context, err error) {
	var statusErr *status.Error
	if errors.As(err, &statusErr) {
		c.JSON(statusErr.Code.HTTPStatus(), gin.H{
			"success": false,
			"code":    statusErr.Code.String(),
			"message": statusErr.Message,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"code":    status.Internal.String(),
		"message": "Oops! Something went wrong. Please try again later.",
	})
}
