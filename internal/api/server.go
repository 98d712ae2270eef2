// Package api exposes the operator console: read-only views of orders,
// balances and exposure, plus protected controls to stop or flatten the
// session.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"futures-core/internal/balance"
	"futures-core/internal/engine"
	"futures-core/internal/events"
	"futures-core/internal/order"
	"futures-core/internal/stream"
)

// Server wires HTTP endpoints around the engine and the event bus.
type Server struct {
	Router      *gin.Engine
	Bus         *events.Bus
	Store       *order.Store
	BalanceMgr  *balance.Manager
	Engine      *engine.Engine
	Supervisor  *stream.Supervisor
	JWTSecret   string
	OperatorKey string
	// Stop asks the process to begin a graceful shutdown.
	Stop func()
}

func NewServer(bus *events.Bus, store *order.Store, balanceMgr *balance.Manager, eng *engine.Engine,
	sup *stream.Supervisor, jwtSecret, operatorKey string, stop func()) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))

	s := &Server{
		Router:      r,
		Bus:         bus,
		Store:       store,
		BalanceMgr:  balanceMgr,
		Engine:      eng,
		Supervisor:  sup,
		JWTSecret:   jwtSecret,
		OperatorKey: operatorKey,
		Stop:        stop,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.POST("/auth/token", s.issueToken)

		api.GET("/orders", s.getOrders)
		api.GET("/balance", s.getBalance)
		api.GET("/exposure", s.getExposure)
		api.GET("/pnl", s.getProfitLoss)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.POST("/close-positions", s.closePositions)
			protected.POST("/cancel-all", s.cancelAll)
			protected.POST("/stop", s.stopSession)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	market, account := s.Supervisor.Health()
	status := "ok"
	if !market || !account {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"market_stream":  market,
		"account_stream": account,
	})
}

func (s *Server) getOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"orders": s.Store.List()})
}

func (s *Server) getBalance(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"balances": s.BalanceMgr.Snapshot()})
}

func (s *Server) getExposure(c *gin.Context) {
	long, short := s.Engine.Exposure()
	c.JSON(http.StatusOK, gin.H{"long": long, "short": short})
}

func (s *Server) getProfitLoss(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pnl": s.Engine.ProfitLoss()})
}

func (s *Server) closePositions(c *gin.Context) {
	if err := s.Engine.ClosePositions(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "flattened"})
}

func (s *Server) cancelAll(c *gin.Context) {
	if err := s.Engine.CancelAllOpenOrders(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "canceled"})
}

func (s *Server) stopSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "stopping"})
	if s.Stop != nil {
		go s.Stop()
	}
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
