package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quantjournal/tradelog/internal/journal"
	"github.com/quantjournal/tradelog/pkg/models"
)

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "Trading Journal API is running"})
}

func (s *Server) register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.identities.Register(c.Request.Context(), &req)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	// Auto-login after registration.
	resp, err := s.identities.Login(c.Request.Context(), &models.LoginRequest{
		Username: user.Username,
		Password: req.Password,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.identities.Login(c.Request.Context(), &req)
	if err != nil {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect username or password"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) me(c *gin.Context) {
	user, err := s.identities.GetUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "could not validate credentials"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) createTrade(c *gin.Context) {
	var req models.CreateTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trade, err := s.journal.CreateTrade(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		s.logger.Error("failed to create trade", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create trade"})
		return
	}
	c.JSON(http.StatusCreated, trade)
}

func (s *Server) openTrades(c *gin.Context) {
	trades, err := s.journal.OpenTrades(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list trades"})
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) closedTrades(c *gin.Context) {
	trades, err := s.journal.ClosedTrades(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list trades"})
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) closeTrade(c *gin.Context) {
	var req models.CloseTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trade, err := s.journal.CloseTrade(c.Request.Context(), currentUserID(c), c.Param("id"), &req)
	if err != nil {
		switch {
		case errors.Is(err, journal.ErrTradeNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "trade not found"})
		case errors.Is(err, journal.ErrTradeAlreadyClosed):
			c.JSON(http.StatusBadRequest, gin.H{"error": "trade is already closed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to close trade"})
		}
		return
	}
	c.JSON(http.StatusOK, trade)
}

func (s *Server) createSetup(c *gin.Context) {
	var req models.CreateSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	setup, err := s.journal.CreateSetup(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create setup"})
		return
	}
	c.JSON(http.StatusCreated, setup)
}

func (s *Server) listSetups(c *gin.Context) {
	setups, err := s.journal.ListSetups(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list setups"})
		return
	}
	c.JSON(http.StatusOK, setups)
}

func (s *Server) stats(c *gin.Context) {
	stats, err := s.journal.Stats(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getQuote(c *gin.Context) {
	quote, err := s.oracle.GetQuote(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "quote lookup failed"})
		return
	}

	if quote.Found && strings.EqualFold(c.Query("convert"), "INR") {
		inr := s.converter.USDToINR(c.Request.Context(), *quote.Price)
		quote.PriceINR = &inr
	}
	c.JSON(http.StatusOK, quote)
}
