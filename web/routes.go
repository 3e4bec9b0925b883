package web

import (
	"errors"
	"fmt"
	"net/http"
	"peermesh/swarm/node"
	"peermesh/swarm/protocol"

	"github.com/gin-gonic/gin"
)

func (ws *WebServer) SetupRoutes() {
	ws.r.POST("/add_peer", AddPeerHandler)
	ws.r.GET("/status", StatusHandler)
	ws.r.GET("/health", HealthHandler)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, node.ErrMalformedAddress), errors.Is(err, node.ErrSelfReference):
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

func abortWithError(c *gin.Context, err error) {
	c.Error(err)
	c.AbortWithStatusJSON(errorStatus(err), node.ErrorResponse(err))
}

func AddPeerHandler(c *gin.Context) {
	var req protocol.AddPeerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", node.ErrMalformedAddress, err))
		return
	}
	if req.PeerAddress == "" {
		abortWithError(c, fmt.Errorf("%w: peer_address is required", node.ErrMalformedAddress))
		return
	}

	result, err := registryFrom(c).AddPeer(req.PeerAddress)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, node.AddPeerResponse(req.PeerAddress, result))
}

func StatusHandler(c *gin.Context) {
	st, err := registryFrom(c).Status()
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, node.StatusResponse(st))
}

func HealthHandler(c *gin.Context) {
	r := registryFrom(c)
	if _, err := r.Status(); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, protocol.HealthResponse{
		Status: protocol.StatusOK,
		NodeID: r.NodeID(),
	})
}
