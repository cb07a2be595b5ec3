// Package statusserver exposes run progress over HTTP while a report is
// being produced. Handlers only read Prometheus collectors.
package statusserver

import (
	"context"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type server struct {
	e          interface{} // underlying http engine, e.g. gin
	listenAddr string
	hook       *hook
	logger     logrus.FieldLogger

	httpServer *http.Server
	addr       net.Addr
	done       chan error
}

func NewStatusServer(listenAddr, runID string, gatherer prometheus.Gatherer, logger logrus.FieldLogger) *server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &server{
		listenAddr: listenAddr,
		hook:       newHook(runID, gatherer),
		logger:     logger.WithField("event", "statusserver"),
	}
}

// Start binds the listen address and serves in the background, so a bad
// address is reported before the run begins.
func (s *server) Start() error {
	var handler http.Handler

	switch e := s.setupRouter().(type) {
	case *gin.Engine:
		handler = e
	default:
		return errors.New("unsupported http engine")
	}

	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return errors.Wrap(err, "statusserver: listen")
	}

	s.addr = ln.Addr()
	s.httpServer = &http.Server{Handler: handler}
	s.done = make(chan error, 1)

	go func() {
		err := s.httpServer.Serve(ln)
		if err == http.ErrServerClosed {
			err = nil
		}
		s.done <- err
	}()

	s.logger.Infof("listen at addr: %s", s.addr.String())
	return nil
}

// Addr is the bound address once Start succeeded.
func (s *server) Addr() net.Addr {
	return s.addr
}

func (s *server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error(err)
		return err
	}
	return <-s.done
}

func (s *server) setupRouter() interface{} {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	s.e = r

	r.Use(gin.Recovery(), s.hook.traceID)
	for _, api := range s.apis() {
		switch api.method {
		case "GET":
			r.GET(api.url, api.hook)
		case "POST":
			r.POST(api.url, api.hook)
		}
	}

	return s.e
}

type apiEntry struct {
	method string               // request method
	url    string               // request url
	hook   func(c *gin.Context) // handler
}

func (s *server) apis() []apiEntry {
	return []apiEntry{
		{method: "GET", url: "/ping", hook: s.hook.ping},
		{method: "GET", url: "/metrics", hook: s.hook.serveMetrics},
	}
}
