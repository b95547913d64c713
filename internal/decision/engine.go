// Package decision implements the finite-state classification pipeline:
// S0 CIDR blacklist, S1 user-agent signatures, S2 third-party IP
// intelligence, S3 fail-open terminal. Stage order is load-bearing —
// reordering these checks changes outcomes and is not a refactor a
// caller should make lightly.
package decision

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/ignite/redirectgate/internal/blacklist"
	"github.com/ignite/redirectgate/internal/classify"
	"github.com/ignite/redirectgate/internal/domain"
	"github.com/ignite/redirectgate/internal/ipintel"
	"github.com/ignite/redirectgate/internal/pkg/logger"
)

// TrustLevel qualifies a HUMAN verdict for downstream consumers (not
// currently used to change dispatch behavior, only recorded).
type TrustLevel string

const (
	TrustHigh TrustLevel = "high"
	TrustLow  TrustLevel = "low"
)

// usage types that datacenter/hosting-class traffic reports; matches
// the auto-widening table in the blacklist package.
var convictUsageTypes = map[string]bool{
	"RSV": true, "SES": true, "DCH": true, "CDN": true,
}

// Persister durably records BOT convictions alongside the engine's
// in-memory structures, so a freshly started replica recovers them
// from shared storage instead of relearning every one from scratch.
// Satisfied by *writebehind.Logger; decision does not import
// writebehind directly to avoid the dependency running the other way.
type Persister interface {
	EnqueueCIDRRange(e blacklist.Entry)
	EnqueueIPCache(e domain.IPCacheEntry)
}

// Engine composes the blacklist, UA classifier, and IP intelligence
// client/cache into a single per-request classification.
type Engine struct {
	bl           *blacklist.Blacklist
	blStore      *blacklist.Store
	classifier   *classify.Classifier
	intelCache   *ipintel.Cache
	intel        *ipintel.Client
	persist      Persister
	stageTimeout time.Duration
}

// New builds a decision Engine. blStore and persist may both be nil if
// persistence is not wired (e.g. in tests).
func New(bl *blacklist.Blacklist, blStore *blacklist.Store, classifier *classify.Classifier, intelCache *ipintel.Cache, intel *ipintel.Client, persist Persister, stageTimeout time.Duration) *Engine {
	if stageTimeout <= 0 {
		stageTimeout = 5 * time.Second
	}
	return &Engine{bl: bl, blStore: blStore, classifier: classifier, intelCache: intelCache, intel: intel, persist: persist, stageTimeout: stageTimeout}
}

// Classify runs the full pipeline for one request.
func (e *Engine) Classify(ctx context.Context, ip net.IP, userAgent string) domain.Decision {
	// S0: CIDR blacklist.
	if entry, hit := e.bl.Contains(ip); hit {
		if e.blStore != nil {
			e.blStore.NoteHit(entry.HitCount)
		}
		return domain.Decision{
			Classification: domain.ClassificationBot,
			Stage:          domain.StageBlacklist,
			Reason:         "blacklist:" + entry.CIDR,
		}
	}

	// S1: user-agent signatures.
	uaResult := e.classifier.Classify(userAgent)
	if uaResult.IsBot {
		reason := string(uaResult.Category)
		e.convict(ip, reason, "UNKNOWN")
		cacheEntry := domain.IPCacheEntry{
			IP:             ip.String(),
			Classification: string(domain.ClassificationBot),
			Reason:         reason,
			UsageType:      "UNKNOWN",
		}
		e.intelCache.Put(cacheEntry)
		if e.persist != nil {
			e.persist.EnqueueIPCache(cacheEntry)
		}
		return domain.Decision{
			Classification: domain.ClassificationBot,
			Stage:          domain.StageUserAgent,
			Reason:         reason,
		}
	}

	// S2: IP intelligence, cache first.
	if cached, hit := e.intelCache.Get(ip.String()); hit {
		return domain.Decision{
			Classification: domain.ClassificationBot,
			Stage:          domain.StageIPIntel,
			Reason:         cached.Reason,
		}
	}

	stageCtx, cancel := context.WithTimeout(ctx, e.stageTimeout)
	defer cancel()

	resp, err := e.intel.Lookup(stageCtx, ip.String())
	if err != nil {
		logger.Warn("ip intelligence lookup failed, failing open", "ip", ip.String(), "error", err.Error())
		return domain.Decision{
			Classification: domain.ClassificationHuman,
			Stage:          domain.StageFailOpen,
			Reason:         "IP_LOOKUP_FAILED",
			Confidence:     int(trustScore(TrustLow)),
		}
	}

	if verdict, ok := e.applyOverrides(*resp); ok {
		return verdict
	}

	if reason, isBot := e.applyConvictions(*resp); isBot {
		e.convict(ip, reason, resp.UsageType)
		cacheEntry := domain.IPCacheEntry{
			IP:             ip.String(),
			Classification: string(domain.ClassificationBot),
			Reason:         reason,
			Country:        resp.CountryName,
			ISP:            resp.ISP,
			UsageType:      resp.UsageType,
		}
		e.intelCache.Put(cacheEntry)
		if e.persist != nil {
			e.persist.EnqueueIPCache(cacheEntry)
		}
		return domain.Decision{
			Classification: domain.ClassificationBot,
			Stage:          domain.StageIPIntel,
			Reason:         reason,
		}
	}

	return domain.Decision{
		Classification: domain.ClassificationHuman,
		Stage:          domain.StageIPIntel,
		Reason:         "OK",
		Confidence:     int(trustScore(TrustLow)),
	}
}

// applyOverrides evaluates the HUMAN override rules in strict,
// first-match-wins order.
func (e *Engine) applyOverrides(resp ipintel.Response) (domain.Decision, bool) {
	switch {
	case resp.IsConsumerPrivacyNetwork:
		return humanDecision("consumer_privacy_network", TrustHigh), true
	case strings.Contains(strings.ToLower(resp.ISP), "icloud private relay"):
		return humanDecision("icloud_private_relay", TrustHigh), true
	case resp.ProxyType == "RES":
		return humanDecision("residential_proxy_type", TrustHigh), true
	case resp.ResidentialProxy() && isConsumerUsage(resp.UsageType) && !resp.IsDataCenter && !resp.IsVPN:
		return humanDecision("residential_proxy", TrustLow), true
	}
	return domain.Decision{}, false
}

func isConsumerUsage(usageType string) bool {
	switch usageType {
	case "ISP", "MOB", "COM", "ORG", "EDU", "GOV", "MIL", "LIB":
		return true
	default:
		return false
	}
}

func humanDecision(reason string, trust TrustLevel) domain.Decision {
	return domain.Decision{
		Classification: domain.ClassificationHuman,
		Stage:          domain.StageIPIntel,
		Reason:         reason,
		Confidence:     int(trustScore(trust)),
	}
}

func trustScore(t TrustLevel) int {
	if t == TrustHigh {
		return 100
	}
	return 50
}

// applyConvictions evaluates the BOT conviction rules in strict,
// first-match-wins order.
func (e *Engine) applyConvictions(resp ipintel.Response) (string, bool) {
	if convictUsageTypes[resp.UsageType] {
		return "usage_type:" + resp.UsageType, true
	}
	if strings.EqualFold(resp.AdsCategoryName, "Data Centers") {
		return "ads_category:data_centers", true
	}
	switch {
	case resp.ProxyType == "DCH":
		return "proxy_type:DCH", true
	case resp.IsVPN:
		return "is_vpn", true
	case resp.IsDataCenter:
		return "is_data_center", true
	case resp.IsPublicProxy:
		return "is_public_proxy", true
	case resp.IsWebProxy:
		return "is_web_proxy", true
	case resp.IsWebCrawler:
		return "is_web_crawler", true
	case resp.IsScanner:
		return "is_scanner", true
	}
	return "", false
}

// convict records a BOT verdict against the CIDR blacklist; the callers
// write the matching IP cache entry themselves. A newly inserted range
// is also queued for durable storage so the conviction survives a
// restart.
func (e *Engine) convict(ip net.IP, reason, usageType string) {
	entry, created := e.bl.Add(ip, reason, usageType, "", "", "auto")
	if e.blStore != nil {
		e.blStore.NoteChange()
	}
	if created && e.persist != nil {
		e.persist.EnqueueCIDRRange(*entry)
	}
}
