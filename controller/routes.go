package controller

import (
	"net/http"
	"time"

	"github.com/didip/tollbooth"
	"github.com/didip/tollbooth/limiter"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Router struct {
	http.Handler

	ready bool
}

func (r *Router) Ready() {
	r.ready = true
}

// NewRouter serves the forum api. Requests above rateLimit per second and
// client address are rejected with 429.
func NewRouter(svc Forum, rateLimit float64) *Router {
	h := httprouter.New()
	h.RedirectTrailingSlash = false
	h.RedirectFixedPath = false

	lmt := tollbooth.NewLimiter(rateLimit, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})
	lmt.SetMessageContentType(ContentTypeJSON)
	lmt.SetMessage("{\"error\": \"too many requests\"}")

	r := &Router{
		Handler: tollbooth.LimitHandler(lmt, h),
	}

	h.GET("/api/v1/threads", Threads(svc))
	h.PUT("/api/v1/discussion/:id", SelectDiscussion(svc))

	h.POST("/api/v1/comments", PostComment(svc))
	h.POST("/api/v1/comments/:id/replies", ReplyToComment(svc))
	h.POST("/api/v1/comments/:id/spam", FlagSpam(svc))
	h.GET("/api/v1/comments/:id/score", CommentScore(svc))
	h.GET("/api/v1/spam/:id", SpamCount(svc))

	h.GET("/api/v1/profile", Profile(svc))
	h.POST("/api/v1/profile", CreateProfile(svc))
	h.GET("/api/v1/reputation/:tokenId", Reputation(svc))
	h.GET("/api/v1/links/:kind/:id", Link(svc))

	h.GET("/api/v1/verbosity", Verbosity())
	h.PUT("/api/v1/verbosity", SetVerbosity())

	h.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	h.GlobalOPTIONS = opts()

	r.ready = true

	return r
}
