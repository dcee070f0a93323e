// Package api provides the REST API server.
package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chia-farm/farmer-core/internal/config"
	"github.com/chia-farm/farmer-core/internal/farmer"
	"github.com/chia-farm/farmer-core/internal/protocol"
	"github.com/chia-farm/farmer-core/internal/util"
)

// StatsFunc is a callback to get a point-in-time farmer snapshot.
type StatsFunc func() farmer.Stats

// RewardTargetsGetFunc reads the farmer's currently configured reward
// puzzle hashes.
type RewardTargetsGetFunc func() (farmerTarget, poolTarget protocol.Hash32)

// RewardTargetsSetFunc rotates the farmer's reward puzzle hashes and
// reports any persistence failure back to the caller.
type RewardTargetsSetFunc func(farmerTarget, poolTarget protocol.Hash32) error

// Server is the API server
type Server struct {
	cfg    *config.APIConfig
	router *gin.Engine
	server *http.Server

	statsFunc      StatsFunc
	getTargetsFunc RewardTargetsGetFunc
	setTargetsFunc RewardTargetsSetFunc

	statsCacheMu   sync.RWMutex
	statsCache     *StatsResponse
	statsCacheTime time.Time
}

// StatsResponse is the /api/stats response
type StatsResponse struct {
	Farmer farmer.Stats `json:"farmer"`
	Now    int64        `json:"now"`
}

// NewServer creates a new API server. getTargetsFunc/setTargetsFunc may be
// nil, in which case the /api/reward_targets routes are not registered.
func NewServer(cfg *config.APIConfig, statsFunc StatsFunc, getTargetsFunc RewardTargetsGetFunc, setTargetsFunc RewardTargetsSetFunc) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:            cfg,
		router:         router,
		statsFunc:      statsFunc,
		getTargetsFunc: getTargetsFunc,
		setTargetsFunc: setTargetsFunc,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures API endpoints
func (s *Server) setupRoutes() {
	origins := make(map[string]bool, len(s.cfg.CORSOrigins))
	for _, o := range s.cfg.CORSOrigins {
		origins[o] = true
	}

	s.router.Use(func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if len(origins) == 0 {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origins[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
		}
		c.Header("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	api := s.router.Group("/api")
	{
		api.GET("/stats", s.handleStats)
		if s.getTargetsFunc != nil {
			api.GET("/reward_targets", s.handleGetRewardTargets)
		}
		if s.setTargetsFunc != nil {
			api.PUT("/reward_targets", s.handleSetRewardTargets)
		}
	}

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}

// Start begins the API server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.cfg.Bind,
		Handler: s.router,
	}

	util.Infof("API server listening on %s", s.cfg.Bind)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Errorf("API server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts down the API server
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// handleStats returns a cached snapshot of farmer connection/cache state.
func (s *Server) handleStats(c *gin.Context) {
	s.statsCacheMu.RLock()
	if s.statsCache != nil && time.Since(s.statsCacheTime) < s.cfg.StatsCache {
		cached := s.statsCache
		s.statsCacheMu.RUnlock()
		c.JSON(200, cached)
		return
	}
	s.statsCacheMu.RUnlock()

	response := &StatsResponse{
		Farmer: s.statsFunc(),
		Now:    time.Now().Unix(),
	}

	s.statsCacheMu.Lock()
	s.statsCache = response
	s.statsCacheTime = time.Now()
	s.statsCacheMu.Unlock()

	c.JSON(200, response)
}

// parseRewardTarget decodes a hex-encoded puzzle hash submitted to the
// reward-targets endpoint.
func parseRewardTarget(hexStr string) (protocol.Hash32, error) {
	var h protocol.Hash32
	b, err := util.HexToBytes(hexStr)
	if err != nil {
		return h, err
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("expected %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// rewardTargetsRequest/Response carry reward puzzle hashes as hex strings,
// mirroring farmer.py's get_reward_targets/set_reward_targets RPC shape.
type rewardTargetsRequest struct {
	FarmerTarget string `json:"farmer_target"`
	PoolTarget   string `json:"pool_target"`
}

type rewardTargetsResponse struct {
	FarmerTarget string `json:"farmer_target"`
	PoolTarget   string `json:"pool_target"`
}

// handleGetRewardTargets returns the farmer's currently configured reward
// puzzle hashes.
func (s *Server) handleGetRewardTargets(c *gin.Context) {
	farmerTarget, poolTarget := s.getTargetsFunc()
	c.JSON(200, rewardTargetsResponse{
		FarmerTarget: farmerTarget.String(),
		PoolTarget:   poolTarget.String(),
	})
}

// handleSetRewardTargets rotates the farmer's reward puzzle hashes at
// runtime, persisting the change back to the config file.
func (s *Server) handleSetRewardTargets(c *gin.Context) {
	var req rewardTargetsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	farmerTarget, err := parseRewardTarget(req.FarmerTarget)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid farmer_target: " + err.Error()})
		return
	}
	poolTarget, err := parseRewardTarget(req.PoolTarget)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid pool_target: " + err.Error()})
		return
	}

	if err := s.setTargetsFunc(farmerTarget, poolTarget); err != nil {
		util.Warnf("api: set_reward_targets failed: %v", err)
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	c.JSON(200, rewardTargetsResponse{
		FarmerTarget: farmerTarget.String(),
		PoolTarget:   poolTarget.String(),
	})
}
