package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/fedipress/fedipress/activitypub"
	"github.com/fedipress/fedipress/domain"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const activityJSON = "application/activity+json; charset=utf-8"

// NewRouter assembles the federation HTTP surface: discovery, actor
// documents, inboxes, collections and feeds.
func NewRouter(rt *activitypub.Runtime) *gin.Engine {
	g := gin.New()
	g.Use(gin.Recovery())
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// Stricter rate limit for ActivityPub write endpoints: 5 req/sec per IP
	apLimiter := NewRateLimiter(rate.Limit(5), 10)

	// Max 1MB request body size for ActivityPub activities
	maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

	g.GET("/.well-known/webfinger", func(c *gin.Context) {
		resource := c.Query("resource")
		if resource == "" {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
			return
		}

		resp, err := activitypub.WebFinger(rt, resource)
		if err != nil {
			c.JSON(domain.StatusOf(err), gin.H{"detail": "Not Found"})
			return
		}
		c.Header("Content-Type", "application/jrd+json; charset=utf-8")
		c.JSON(http.StatusOK, resp)
	})

	g.GET("/.well-known/nodeinfo", func(c *gin.Context) {
		c.JSON(http.StatusOK, activitypub.BuildNodeInfoLinks(rt.Conf))
	})

	g.GET("/nodeinfo/:version", func(c *gin.Context) {
		info, err := activitypub.BuildNodeInfo(rt, c.Param("version"))
		if err != nil {
			c.JSON(domain.StatusOf(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	})

	g.POST("/inbox", RateLimitMiddleware(apLimiter), maxBodySize, func(c *gin.Context) {
		HandleSharedInbox(rt, c)
	})

	g.GET("/c/:handle", func(c *gin.Context) {
		err, group := activitypub.ReadGroup(rt, c.Param("handle"))
		if err != nil {
			c.JSON(domain.StatusOf(err), gin.H{"error": "Group not found"})
			return
		}
		c.Header("Content-Type", activityJSON)
		c.JSON(http.StatusOK, activitypub.BuildGroupDocument(rt, group))
	})

	g.GET("/feed/:handle", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		rss, err := GetRSS(rt, c.Param("handle"))
		if err != nil {
			c.String(http.StatusNotFound, "")
			return
		}
		c.String(http.StatusOK, "%s", rss)
	})

	g.GET("/feed/:handle/atom", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		atom, err := GetAtom(rt, c.Param("handle"))
		if err != nil {
			c.String(http.StatusNotFound, "")
			return
		}
		c.String(http.StatusOK, "%s", atom)
	})

	// Actor URIs live under /@{handle}, which gin's route tree cannot
	// express as a parameter; dispatch them from the fallback handler.
	g.NoRoute(RateLimitMiddleware(apLimiter), maxBodySize, func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/@") {
			handleActorRoutes(rt, c)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
	})

	return g
}

// handleActorRoutes serves /@{handle} and its sub-resources.
func handleActorRoutes(rt *activitypub.Runtime, c *gin.Context) {
	path := strings.TrimPrefix(c.Request.URL.Path, "/@")
	handle, rest, _ := strings.Cut(path, "/")
	if handle == "" {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
		return
	}

	switch {
	case rest == "" && c.Request.Method == http.MethodGet:
		HandleActorDocument(rt, c, handle)
	case rest == "inbox" && c.Request.Method == http.MethodPost:
		HandleActorInbox(rt, c, handle)
	case rest == "outbox" && c.Request.Method == http.MethodGet:
		HandleOutboxCollection(rt, c, handle)
	case rest == "followers" && c.Request.Method == http.MethodGet:
		HandleFollowersCollection(rt, c, handle)
	case rest == "following" && c.Request.Method == http.MethodGet:
		HandleFollowingCollection(rt, c, handle)
	case rest == "liked" && c.Request.Method == http.MethodGet:
		HandleLikedCollection(rt, c, handle)
	case rest == "featured" && c.Request.Method == http.MethodGet:
		HandleFeaturedCollection(rt, c, handle)
	default:
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
	}
}

// Run starts the server on the configured address.
func Run(rt *activitypub.Runtime) error {
	g := NewRouter(rt)
	addr := fmt.Sprintf("%s:%d", rt.Conf.Conf.Host, rt.Conf.Conf.HttpPort)
	rt.Log.Infof("Starting federation server on %s", addr)
	return g.Run(addr)
}
