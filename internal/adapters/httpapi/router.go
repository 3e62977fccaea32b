// Package httpapi is the local control surface of the viewer: a small JSON
// API to drive the live session and the playback path, plus the metrics
// endpoint. It binds to loopback by default and carries no auth of its own.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lchou/Shopwatch/internal/adapters/gateway"
	"github.com/lchou/Shopwatch/internal/adapters/metrics"
	"github.com/lchou/Shopwatch/internal/adapters/render"
	"github.com/lchou/Shopwatch/internal/app/playback"
	"github.com/lchou/Shopwatch/internal/app/session"
	"github.com/lchou/Shopwatch/internal/config"
	"github.com/lchou/Shopwatch/internal/core"
	"github.com/lchou/Shopwatch/internal/domain"
)

type Deps struct {
	Gateway     *gateway.Client
	Coordinator *session.Coordinator
	Correlator  *playback.Correlator
	Board       *render.Board
	Metrics     *metrics.Metrics
}

func SetupRouter(cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.httpapi").Int("port", cfg.Port).Msg("router setup")

	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	api := r.Group("/api")

	api.POST("/login", func(c *gin.Context) {
		var body struct {
			PIN string `json:"pin"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.PIN == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pin required"})
			return
		}
		token, err := d.Gateway.Login(c.Request.Context(), body.PIN)
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, core.ErrCredentialInvalid) {
				status = http.StatusUnauthorized
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
	})

	api.GET("/cameras", func(c *gin.Context) {
		cams, err := d.Gateway.Cameras(c.Request.Context())
		if err != nil {
			writeGatewayError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"cameras": cams})
	})

	api.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, d.Coordinator.Snapshot())
	})

	api.POST("/session/start", func(c *gin.Context) {
		camera, ok := cameraFromBody(c)
		if !ok {
			return
		}
		if err := d.Coordinator.Start(c.Request.Context(), camera); err != nil {
			writeSessionError(c, err)
			return
		}
		c.JSON(http.StatusOK, d.Coordinator.Snapshot())
	})

	api.POST("/session/reconnect", func(c *gin.Context) {
		if err := d.Coordinator.Reconnect(c.Request.Context()); err != nil {
			writeSessionError(c, err)
			return
		}
		c.JSON(http.StatusOK, d.Coordinator.Snapshot())
	})

	api.POST("/session/camera", func(c *gin.Context) {
		camera, ok := cameraFromBody(c)
		if !ok {
			return
		}
		if cams, err := d.Gateway.Cameras(c.Request.Context()); err == nil {
			known := false
			for _, cam := range cams {
				if cam.ID == camera {
					known = true
					break
				}
			}
			if !known {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown camera"})
				return
			}
		}
		if err := d.Coordinator.SwitchCamera(c.Request.Context(), camera); err != nil {
			writeSessionError(c, err)
			return
		}
		c.JSON(http.StatusOK, d.Coordinator.Snapshot())
	})

	api.GET("/session/quality", func(c *gin.Context) {
		snap := d.Coordinator.Snapshot()
		if snap.Quality == nil {
			c.JSON(http.StatusOK, gin.H{"sampling": false})
			return
		}
		c.JSON(http.StatusOK, snap.Quality)
	})

	api.GET("/playback", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"state": d.Correlator.Snapshot(),
			"board": d.Board.Snapshot(),
		})
	})

	api.POST("/playback/date", func(c *gin.Context) {
		var body struct {
			Date     string `json:"date"`
			CameraID string `json:"camera_id"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad request body"})
			return
		}
		date, err := domain.NormalizeDate(body.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		camera := domain.CameraID(cfg.CameraID)
		if body.CameraID != "" {
			camera, err = domain.NewCameraID(body.CameraID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		if err := d.Correlator.LoadDate(c.Request.Context(), date, camera); err != nil {
			writeGatewayError(c, err)
			return
		}
		c.JSON(http.StatusOK, d.Correlator.Snapshot())
	})

	api.POST("/playback/select", func(c *gin.Context) {
		var body struct {
			Index    int  `json:"index"`
			Autoplay bool `json:"autoplay"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad request body"})
			return
		}
		if err := d.Correlator.SelectClip(body.Index, body.Autoplay); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, d.Correlator.Snapshot())
	})

	api.POST("/playback/next", func(c *gin.Context) {
		if err := d.Correlator.PlayNext(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, d.Correlator.Snapshot())
	})

	api.POST("/playback/prev", func(c *gin.Context) {
		if err := d.Correlator.PlayPrev(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, d.Correlator.Snapshot())
	})

	api.POST("/playback/jump", func(c *gin.Context) {
		var body struct {
			EventID int64 `json:"event_id"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad request body"})
			return
		}
		if err := d.Correlator.JumpToEventID(body.EventID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, d.Correlator.Snapshot())
	})

	dash := api.Group("/dashboard")

	dash.GET("/realtime", func(c *gin.Context) {
		stats, err := d.Gateway.Realtime(c.Request.Context())
		if err != nil {
			writeGatewayError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	dash.GET("/summary", func(c *gin.Context) {
		rangeDays := 7
		if raw := c.Query("range"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "bad range"})
				return
			}
			rangeDays = n
		}
		stats, err := d.Gateway.Summary(c.Request.Context(), rangeDays)
		if err != nil {
			writeGatewayError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	return r
}

func cameraFromBody(c *gin.Context) (domain.CameraID, bool) {
	var body struct {
		CameraID string `json:"camera_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request body"})
		return "", false
	}
	camera, err := domain.NewCameraID(body.CameraID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return camera, true
}

func writeSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrCredentialInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "reauth": true})
	case errors.Is(err, session.ErrSessionActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

func writeGatewayError(c *gin.Context, err error) {
	if errors.Is(err, core.ErrCredentialInvalid) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "reauth": true})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
