package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is hangar's complete startup configuration, loaded once from
// the environment.
type Config struct {
	ListenHost string
	ListenPort int
	PublicURL  string

	ControlPlaneDSN  string
	TenantDSN        string
	TenantPublicHost string
	TenantPublicPort int

	SessionSecret string
	SessionTTL    time.Duration
	TicketURL     string

	NamingPrefix string
	DomainSuffix string
	BaseImage    string

	GitHubAppID         int64
	GitHubPrivateKeyPEM []byte

	NetworkName         string
	TraefikEntrypoint   string
	TraefikCertResolver string

	ContainerMemoryMB int64
	ContainerCPUQuota int64

	ScannerEnabled       bool
	ScannerFailOnSeverity string

	MaxDBConns int

	TimeoutNormal  time.Duration
	TimeoutLong    time.Duration

	AdminUsers map[string]bool

	SecretsKey []byte
}

// Load reads and validates configuration from the environment. Any
// missing required value or malformed field aborts with a descriptive
// error before the caller constructs any component.
func Load() (*Config, error) {
	cfg := &Config{
		ListenHost: env("HANGAR_LISTEN_HOST", "0.0.0.0"),
		PublicURL:  strings.TrimRight(env("HANGAR_PUBLIC_URL", ""), "/"),

		ControlPlaneDSN:  env("HANGAR_CONTROL_PLANE_DSN", ""),
		TenantDSN:        env("HANGAR_TENANT_DSN", ""),
		TenantPublicHost: env("HANGAR_TENANT_PUBLIC_HOST", ""),

		SessionSecret: env("HANGAR_SESSION_SECRET", ""),
		TicketURL:     env("HANGAR_TICKET_VALIDATION_URL", ""),

		NamingPrefix: env("HANGAR_NAMING_PREFIX", "hangar"),
		DomainSuffix: env("HANGAR_DOMAIN_SUFFIX", ""),
		BaseImage:    env("HANGAR_BASE_IMAGE", ""),

		NetworkName:         env("HANGAR_NETWORK_NAME", ""),
		TraefikEntrypoint:   env("HANGAR_TRAEFIK_ENTRYPOINT", "websecure"),
		TraefikCertResolver: env("HANGAR_TRAEFIK_CERTRESOLVER", ""),

		ScannerFailOnSeverity: env("HANGAR_SCANNER_FAIL_ON_SEVERITY", "high"),

		AdminUsers: parseSet(env("HANGAR_ADMIN_USERS", "")),
	}

	var errs []string
	reqInt := func(key string, dst *int, required bool) {
		v := strings.TrimSpace(env(key, ""))
		if v == "" {
			if required {
				errs = append(errs, "missing "+key)
			}
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
			return
		}
		*dst = n
	}
	reqInt64 := func(key string, dst *int64, required bool) {
		v := strings.TrimSpace(env(key, ""))
		if v == "" {
			if required {
				errs = append(errs, "missing "+key)
			}
			return
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
			return
		}
		*dst = n
	}
	reqDuration := func(key string, def time.Duration, dst *time.Duration) {
		v := strings.TrimSpace(env(key, ""))
		if v == "" {
			*dst = def
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
			return
		}
		*dst = d
	}

	reqInt("HANGAR_LISTEN_PORT", &cfg.ListenPort, true)
	reqInt("HANGAR_TENANT_PUBLIC_PORT", &cfg.TenantPublicPort, true)
	reqInt64("HANGAR_CONTAINER_MEMORY_MB", &cfg.ContainerMemoryMB, true)
	reqInt64("HANGAR_CONTAINER_CPU_QUOTA", &cfg.ContainerCPUQuota, true)
	reqInt("HANGAR_MAX_DB_CONNS", &cfg.MaxDBConns, true)
	reqInt64("HANGAR_GITHUB_APP_ID", &cfg.GitHubAppID, true)

	reqDuration("HANGAR_SESSION_TTL", 24*time.Hour, &cfg.SessionTTL)
	reqDuration("HANGAR_TIMEOUT_NORMAL", 30*time.Second, &cfg.TimeoutNormal)
	reqDuration("HANGAR_TIMEOUT_LONG", 5*time.Minute, &cfg.TimeoutLong)

	cfg.ScannerEnabled = parseBool(env("HANGAR_SCANNER_ENABLED", "true"), true)

	if keyB64 := strings.TrimSpace(env("HANGAR_GITHUB_PRIVATE_KEY_B64", "")); keyB64 != "" {
		pem, err := base64.StdEncoding.DecodeString(keyB64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid HANGAR_GITHUB_PRIVATE_KEY_B64: %v", err))
		} else {
			cfg.GitHubPrivateKeyPEM = pem
		}
	} else {
		errs = append(errs, "missing HANGAR_GITHUB_PRIVATE_KEY_B64")
	}

	if keyHex := strings.TrimSpace(env("HANGAR_SECRETS_KEY", "")); keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid HANGAR_SECRETS_KEY: %v", err))
		} else if len(key) != 32 {
			errs = append(errs, "HANGAR_SECRETS_KEY must decode to exactly 32 bytes")
		} else {
			cfg.SecretsKey = key
		}
	} else {
		errs = append(errs, "missing HANGAR_SECRETS_KEY")
	}

	for key, val := range map[string]string{
		"HANGAR_PUBLIC_URL":             cfg.PublicURL,
		"HANGAR_CONTROL_PLANE_DSN":      cfg.ControlPlaneDSN,
		"HANGAR_TENANT_DSN":             cfg.TenantDSN,
		"HANGAR_TENANT_PUBLIC_HOST":     cfg.TenantPublicHost,
		"HANGAR_SESSION_SECRET":         cfg.SessionSecret,
		"HANGAR_TICKET_VALIDATION_URL":  cfg.TicketURL,
		"HANGAR_DOMAIN_SUFFIX":          cfg.DomainSuffix,
		"HANGAR_BASE_IMAGE":             cfg.BaseImage,
		"HANGAR_NETWORK_NAME":           cfg.NetworkName,
		"HANGAR_TRAEFIK_CERTRESOLVER":   cfg.TraefikCertResolver,
	} {
		if strings.TrimSpace(val) == "" {
			errs = append(errs, "missing "+key)
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

func env(key, def string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func parseBool(v string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func parseSet(csv string) map[string]bool {
	out := make(map[string]bool)
	for _, v := range strings.Split(csv, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out[v] = true
		}
	}
	return out
}
