package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"peermesh/swarm/node"
	"time"

	"github.com/gin-gonic/gin"

	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

type WebServer struct {
	r        *gin.Engine
	listener net.Listener
	registry *node.PeerRegistry
}

func NewServer(listener net.Listener, registry *node.PeerRegistry) *WebServer {
	ws := &WebServer{
		r:        gin.New(),
		listener: listener,
		registry: registry,
	}

	ws.r.Use(RequestLogger(), gin.Recovery())
	ws.r.Use(UseRegistry(registry))
	ws.SetupRoutes()

	return ws
}

func (ws *WebServer) Handler() http.Handler {
	return ws.r
}

// Serve serves HTTP on the listener until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Serve(ctx context.Context) error {
	srv := &http.Server{
		Handler:      ws.r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on %s", ws.listener.Addr())
		errc <- srv.Serve(ws.listener)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Infof("HTTP server on %s shutting down", ws.listener.Addr())
	if err := srv.Shutdown(sctx); err != nil {
		log.Warnf("HTTP server graceful shutdown error: %v", err)
		return err
	}
	return nil
}

func UseRegistry(r *node.PeerRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("registry", r)
		c.Next()
	}
}

func registryFrom(c *gin.Context) *node.PeerRegistry {
	val, _ := c.Get("registry")
	return val.(*node.PeerRegistry)
}
