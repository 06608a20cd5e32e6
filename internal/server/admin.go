package server

import (
	"net/http"
	"strconv"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"tunevault/internal/catalog"
	"tunevault/internal/storage"
)

const filesSnapshotTTL = 5 * time.Second

// Admin serves the operator-facing status API. It is read-only and entirely
// separate from the transfer protocol: the RPC path always rescans the
// directory, only the admin snapshot is cached.
type Admin struct {
	engine    *gin.Engine
	catalog   *catalog.Catalog
	store     *storage.Store
	snapshots *cache.Cache
}

// NewAdmin builds the admin router. store may be nil when the audit log is
// disabled; withSentry attaches the Sentry middleware.
func NewAdmin(cat *catalog.Catalog, store *storage.Store, withSentry bool) *Admin {
	gin.SetMode(gin.ReleaseMode)

	a := &Admin{
		engine:    gin.New(),
		catalog:   cat,
		store:     store,
		snapshots: cache.New(filesSnapshotTTL, time.Minute),
	}

	a.engine.Use(gin.Recovery())
	if withSentry {
		a.engine.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}

	a.engine.GET("/healthz", a.health)
	a.engine.GET("/api/files", a.files)
	a.engine.GET("/api/transfers", a.transfers)
	a.engine.GET("/api/stats", a.stats)
	return a
}

// Handler returns the router for mounting on an http.Server.
func (a *Admin) Handler() http.Handler {
	return a.engine
}

func (a *Admin) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *Admin) files(c *gin.Context) {
	if cached, ok := a.snapshots.Get("files"); ok {
		c.JSON(http.StatusOK, gin.H{"files": cached, "cached": true})
		return
	}

	names := a.catalog.List()
	if names == nil {
		names = []string{}
	}
	a.snapshots.Set("files", names, cache.DefaultExpiration)
	c.JSON(http.StatusOK, gin.H{"files": names, "cached": false})
}

func (a *Admin) transfers(c *gin.Context) {
	if a.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit log disabled"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := a.store.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transfers": records})
}

func (a *Admin) stats(c *gin.Context) {
	if a.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit log disabled"})
		return
	}

	count, bytes, err := a.store.Totals()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transfers": count, "bytes_sent": bytes})
}
