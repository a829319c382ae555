package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"linkboard/backend/internal/adapter"
	"linkboard/backend/internal/graph"
	"linkboard/backend/internal/metrics"
	"linkboard/backend/internal/session"
	"linkboard/backend/internal/sourcetext"
	apperrors "linkboard/backend/pkg/errors"
)

// prober checks that an inference endpoint is usable
type prober interface {
	TestConnection(ctx context.Context, s adapter.Settings) (*adapter.ConnectionResult, error)
}

type server struct {
	manager *session.Manager
	store   graph.Store
	prober  prober
	metrics *metrics.Metrics
	log     *zap.Logger
}

func setupRouter(s *server) *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(s.log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := router.Group("/api")
	{
		api.GET("/graph", s.getGraph)

		api.GET("/ai/settings", s.getSettings)
		api.PUT("/ai/settings", s.putSettings)
		api.POST("/ai/test-connection", s.testConnection)

		ex := api.Group("/extraction")
		ex.POST("", s.openSession)
		ex.GET("", s.withSession(func(c *gin.Context, sess *session.Session) error {
			c.JSON(http.StatusOK, sess.Snapshot())
			return nil
		}))
		ex.DELETE("", func(c *gin.Context) {
			if err := s.manager.CloseCurrent(); err != nil {
				s.respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "closed"})
		})

		ex.PUT("/text", s.withSession(s.putText))
		ex.POST("/run", s.withSession(s.run))
		ex.POST("/cancel", s.withSession(func(c *gin.Context, sess *session.Session) error {
			sess.Cancel()
			c.JSON(http.StatusOK, sess.Snapshot())
			return nil
		}))
		ex.POST("/retry", s.withSession(func(c *gin.Context, sess *session.Session) error {
			if err := sess.Retry(); err != nil {
				return err
			}
			c.JSON(http.StatusOK, sess.Snapshot())
			return nil
		}))

		ex.POST("/nodes/:id/toggle", s.withSession(func(c *gin.Context, sess *session.Session) error {
			rs, err := sess.ToggleNode(c.Param("id"))
			if err != nil {
				return err
			}
			c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "review_state": rs})
			return nil
		}))
		ex.POST("/edges/:id/toggle", s.withSession(func(c *gin.Context, sess *session.Session) error {
			rs, err := sess.ToggleEdge(c.Param("id"))
			if err != nil {
				return err
			}
			c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "review_state": rs})
			return nil
		}))
		ex.PATCH("/nodes/:id", s.withSession(s.patchNode))
		ex.PATCH("/edges/:id", s.withSession(s.patchEdge))

		ex.POST("/accept-all", s.withSession(func(c *gin.Context, sess *session.Session) error {
			if err := sess.AcceptAll(); err != nil {
				return err
			}
			c.JSON(http.StatusOK, sess.Snapshot())
			return nil
		}))
		ex.POST("/reject-all", s.withSession(func(c *gin.Context, sess *session.Session) error {
			if err := sess.RejectAll(); err != nil {
				return err
			}
			c.JSON(http.StatusOK, sess.Snapshot())
			return nil
		}))
		ex.POST("/commit", s.withSession(s.commit))
	}

	return router
}

// withSession resolves the open session and maps handler errors to responses
func (s *server) withSession(h func(c *gin.Context, sess *session.Session) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := s.manager.Current()
		if err != nil {
			s.respondError(c, err)
			return
		}
		if err := h(c, sess); err != nil {
			s.respondError(c, err)
		}
	}
}

func (s *server) getGraph(c *gin.Context) {
	g, err := s.store.ReadGraph(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.Settings().Redacted())
}

func (s *server) putSettings(c *gin.Context) {
	var req adapter.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	applied, err := s.manager.UpdateSettings(req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, applied.Redacted())
}

// testConnection probes the posted settings, or the active ones when the
// body is empty. Probe failures are reported in the body, not the status.
func (s *server) testConnection(c *gin.Context) {
	settings := s.manager.Settings()
	if c.Request.ContentLength > 0 {
		var req adapter.Settings
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.APIKey == adapter.RedactedKey {
			req.APIKey = settings.APIKey
		}
		if err := req.Validate(); err != nil {
			s.respondError(c, err)
			return
		}
		settings = req
	}

	result, err := s.prober.TestConnection(c.Request.Context(), settings)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": apperrors.UserMessage(err)})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *server) openSession(c *gin.Context) {
	sess := s.manager.Open()
	c.JSON(http.StatusCreated, sess.Snapshot())
}

func (s *server) putText(c *gin.Context, sess *session.Session) error {
	var req struct {
		Text   string `json:"text"`
		Format string `json:"format"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil
	}

	text := req.Text
	switch strings.ToLower(req.Format) {
	case "", "text":
	case "html":
		extracted, err := sourcetext.FromHTML(strings.NewReader(req.Text))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil
		}
		text = extracted
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be text or html"})
		return nil
	}

	if err := sess.SetText(text); err != nil {
		return err
	}
	c.JSON(http.StatusOK, sess.Snapshot())
	return nil
}

// run starts the extraction in the background and answers 202. With
// ?wait=true it answers once the request has settled.
func (s *server) run(c *gin.Context, sess *session.Session) error {
	done, err := sess.Start(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		return err
	}

	if c.Query("wait") == "true" {
		select {
		case <-done:
			c.JSON(http.StatusOK, sess.Snapshot())
		case <-c.Request.Context().Done():
		}
		return nil
	}
	c.JSON(http.StatusAccepted, sess.Snapshot())
	return nil
}

func (s *server) patchNode(c *gin.Context, sess *session.Session) error {
	var patch session.NodePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil
	}
	node, err := sess.UpdateNode(c.Param("id"), patch)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, node)
	return nil
}

func (s *server) patchEdge(c *gin.Context, sess *session.Session) error {
	var patch session.EdgePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil
	}
	edge, err := sess.UpdateEdge(c.Param("id"), patch)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, edge)
	return nil
}

func (s *server) commit(c *gin.Context, sess *session.Session) error {
	result, err := sess.Commit(c.Request.Context())
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"result": result, "session": sess.Snapshot()})
	return nil
}

// respondError maps err onto a status code and an operator message
func (s *server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var (
		invalidTransition *apperrors.ErrInvalidTransition
		notFound          *apperrors.ErrProposalNotFound
		tooLarge          *apperrors.ErrTextTooLarge
		invalidEdit       *apperrors.ErrInvalidProposalEdit
		invalidSettings   *apperrors.ErrInvalidSettings
	)
	switch {
	case errors.As(err, &invalidTransition):
		status = http.StatusConflict
	case errors.As(err, &notFound), errors.Is(err, apperrors.ErrNoSession):
		status = http.StatusNotFound
	case errors.As(err, &tooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.As(err, &invalidEdit), errors.As(err, &invalidSettings),
		errors.Is(err, apperrors.ErrEmptySourceText), errors.Is(err, apperrors.ErrNothingAccepted):
		status = http.StatusBadRequest
	default:
		s.log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.JSON(status, gin.H{"error": apperrors.UserMessage(err)})
}
