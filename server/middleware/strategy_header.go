package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/godamri/helix-audit/pkg/contextx"
)

// TrustedHeaderStrategy accepts identity headers set by the API gateway, and
// only from gateway addresses.
type TrustedHeaderStrategy struct {
	trustedCIDRs []*net.IPNet
	logger       *slog.Logger

	headerUserID string
	headerRoles  string
	headerEmail  string
	optional     bool
}

type TrustedHeaderConfig struct {
	TrustedProxies []string `envconfig:"AUTH_TRUSTED_PROXIES" yaml:"trusted_proxies"` // e.g. ["127.0.0.1/32", "10.0.0.0/8"]
	HeaderUserID   string   `envconfig:"AUTH_HEADER_USER_ID" default:"X-Helix-User-ID" yaml:"header_user_id"`
	HeaderRoles    string   `envconfig:"AUTH_HEADER_ROLES" default:"X-Helix-Role" yaml:"header_roles"` // comma separated
	HeaderEmail    string   `envconfig:"AUTH_HEADER_EMAIL" default:"X-Helix-Email" yaml:"header_email"`
	// Optional lets requests without an identity header through anonymously.
	// Requests from untrusted addresses are still rejected.
	Optional bool `envconfig:"AUTH_OPTIONAL" default:"false" yaml:"optional"`
}

// userInfo is the snapshot stored as the audit userInfo.
type userInfo struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

func NewTrustedHeaderStrategy(cfg TrustedHeaderConfig, logger *slog.Logger) (*TrustedHeaderStrategy, error) {
	if len(cfg.TrustedProxies) == 0 {
		return nil, fmt.Errorf("security_risk: trusted_proxies list cannot be empty in gateway mode")
	}

	cidrs := make([]*net.IPNet, 0, len(cfg.TrustedProxies))
	for _, raw := range cfg.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if !strings.Contains(raw, "/") {
			ip := net.ParseIP(raw)
			if ip == nil {
				return nil, fmt.Errorf("invalid cidr configuration: %s", raw)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			raw = fmt.Sprintf("%s/%d", raw, bits)
		}
		_, ipNet, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid cidr configuration: %s", raw)
		}
		cidrs = append(cidrs, ipNet)
	}

	if cfg.HeaderUserID == "" {
		cfg.HeaderUserID = "X-Helix-User-ID"
	}
	if cfg.HeaderRoles == "" {
		cfg.HeaderRoles = "X-Helix-Role"
	}
	if cfg.HeaderEmail == "" {
		cfg.HeaderEmail = "X-Helix-Email"
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &TrustedHeaderStrategy{
		trustedCIDRs: cidrs,
		logger:       logger.With("component", "trusted_header_auth"),
		headerUserID: cfg.HeaderUserID,
		headerRoles:  cfg.HeaderRoles,
		headerEmail:  cfg.HeaderEmail,
		optional:     cfg.Optional,
	}, nil
}

func (s *TrustedHeaderStrategy) Authenticate(ctx context.Context, p AuthPayload) (context.Context, error) {
	host, _, err := net.SplitHostPort(p.RemoteAddr)
	if err != nil {
		host = p.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil || !s.trusted(ip) {
		s.logger.WarnContext(ctx, "untrusted address attempted to present gateway identity",
			"ip", host,
			"path", p.Path,
		)
		return nil, ErrForbiddenSource
	}

	userID := strings.TrimSpace(p.GetHeader(s.headerUserID))
	if userID == "" {
		if s.optional {
			return ctx, nil
		}
		return nil, fmt.Errorf("%w: missing identity header", ErrUnauthenticated)
	}

	ctx = contextx.WithAuthPrincipalID(ctx, userID)

	info := userInfo{Email: p.GetHeader(s.headerEmail), Roles: splitRoles(p.GetHeader(s.headerRoles))}
	if info.Email != "" || len(info.Roles) > 0 {
		if raw, err := json.Marshal(info); err == nil {
			ctx = contextx.WithUserInfo(ctx, string(raw))
		}
	}
	return ctx, nil
}

func (s *TrustedHeaderStrategy) trusted(ip net.IP) bool {
	for _, cidr := range s.trustedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

func splitRoles(raw string) []string {
	var roles []string
	for _, role := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(role); trimmed != "" {
			roles = append(roles, trimmed)
		}
	}
	return roles
}
