package util

import (
	_ "embed"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const Name = "fedipress"
const ConfigFileName = "config.yaml"

// userConfigDir is where a seeded config lands when none exists yet,
// relative to the user's home directory.
const userConfigDir = ".config/fedipress"

// PublicAudience is the ActivityStreams sentinel for an unrestricted audience.
const PublicAudience = "https://www.w3.org/ns/activitystreams#Public"

//go:embed config_default.yaml
var embeddedConfig []byte

// ResolvedUser is what the external user resolver returns for a local handle.
type ResolvedUser struct {
	Handle      string
	DisplayName string
	Bio         string
	AvatarURL   string
}

type AppConfig struct {
	Conf struct {
		Host                         string `yaml:"host"`
		HttpPort                     int    `yaml:"httpPort"`
		SiteBaseUrl                  string `yaml:"siteBaseUrl"`
		FederationEnabled            bool   `yaml:"federationEnabled"`
		DefaultVisibility            string `yaml:"defaultVisibility"`
		AutoApproveFollows           bool   `yaml:"autoApproveFollows"`
		MaxDeliveryRetries           int    `yaml:"maxDeliveryRetries"`
		FederationTimeoutMs          int    `yaml:"federationTimeout"`
		SignatureVerificationEnabled bool   `yaml:"signatureVerificationEnabled"`
		ActorKeyCacheTtl             int    `yaml:"actorKeyCacheTtl"`
		MaxContentLength             int    `yaml:"maxContentLength"`
		MaxTags                      int    `yaml:"maxTags"`
		MaxMentions                  int    `yaml:"maxMentions"`
		MaxAttachments               int    `yaml:"maxAttachments"`
		MaxUploadSize                int64  `yaml:"maxUploadSize"`
		DefaultPageSize              int    `yaml:"defaultPageSize"`
		MaxPageSize                  int    `yaml:"maxPageSize"`
		ActivityPubDir               string `yaml:"activitypubDir"`
		StorageBackend               string `yaml:"storageBackend"`
	}

	// ResolveUser is the external user-resolution callback, injected by the
	// host application and never read from the config file. A nil return
	// means the handle is unknown.
	ResolveUser func(handle string) *ResolvedUser `yaml:"-"`
}

// DefaultConf returns a config populated with the documented defaults.
// siteBaseUrl has no default and must be provided before Validate.
func DefaultConf() *AppConfig {
	c := &AppConfig{}
	c.Conf.Host = "0.0.0.0"
	c.Conf.HttpPort = 8080
	c.Conf.FederationEnabled = true
	c.Conf.DefaultVisibility = "public"
	c.Conf.MaxDeliveryRetries = 3
	c.Conf.FederationTimeoutMs = 10000
	c.Conf.SignatureVerificationEnabled = true
	c.Conf.ActorKeyCacheTtl = 3600
	c.Conf.MaxContentLength = 500000
	c.Conf.MaxTags = 30
	c.Conf.MaxMentions = 50
	c.Conf.MaxAttachments = 16
	c.Conf.MaxUploadSize = 40 * 1024 * 1024
	c.Conf.DefaultPageSize = 20
	c.Conf.MaxPageSize = 100
	c.Conf.ActivityPubDir = ".activitypub"
	c.Conf.StorageBackend = "fs"
	return c
}

func ReadConf() (*AppConfig, error) {

	c := DefaultConf()

	buf := loadConfigFile()

	err := yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	applyEnvOverrides(c)

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// loadConfigFile reads config.yaml from the working directory first, then
// from ~/.config/fedipress. When neither exists the embedded defaults are
// used, and a copy is seeded into the user config directory so the operator
// has a file to edit.
func loadConfigFile() []byte {
	if buf, err := os.ReadFile(ConfigFileName); err == nil {
		return buf
	}

	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("Config file not found and no home directory, using embedded defaults")
		return embeddedConfig
	}

	userPath := filepath.Join(home, userConfigDir, ConfigFileName)
	if buf, err := os.ReadFile(userPath); err == nil {
		return buf
	}

	log.Printf("Config file not found at %s, using embedded defaults", userPath)
	if err := os.MkdirAll(filepath.Dir(userPath), 0755); err != nil {
		log.Printf("Warning: could not create config directory: %v", err)
	} else if err := os.WriteFile(userPath, embeddedConfig, 0644); err != nil {
		log.Printf("Warning: could not write default config to %s: %v", userPath, err)
	} else {
		log.Printf("Created default config file at %s", userPath)
	}

	return embeddedConfig
}

// ResolveDataDir resolves the ActivityPub state directory. Relative paths
// stay relative to the working directory, absolute paths are used verbatim.
// The directory is created if missing.
func ResolveDataDir(dir string) (string, error) {
	if dir == "" {
		dir = ".activitypub"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

func applyEnvOverrides(c *AppConfig) {
	if v := os.Getenv("FEDIPRESS_HOST"); v != "" {
		c.Conf.Host = v
	}

	if v := os.Getenv("FEDIPRESS_HTTPPORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			fmt.Println(err)
		} else {
			c.Conf.HttpPort = port
		}
	}

	if v := os.Getenv("FEDIPRESS_SITE_BASE_URL"); v != "" {
		c.Conf.SiteBaseUrl = v
	}

	if v := os.Getenv("FEDIPRESS_FEDERATION_ENABLED"); v != "" {
		c.Conf.FederationEnabled = v == "true"
	}

	if v := os.Getenv("FEDIPRESS_AUTO_APPROVE_FOLLOWS"); v == "true" {
		c.Conf.AutoApproveFollows = true
	}

	if v := os.Getenv("FEDIPRESS_ACTIVITYPUB_DIR"); v != "" {
		c.Conf.ActivityPubDir = v
	}

	if v := os.Getenv("FEDIPRESS_STORAGE_BACKEND"); v != "" {
		c.Conf.StorageBackend = v
	}
}

// Validate checks required options and normalizes the base URL.
func (c *AppConfig) Validate() error {
	if c.Conf.SiteBaseUrl == "" {
		return fmt.Errorf("siteBaseUrl is required")
	}
	c.Conf.SiteBaseUrl = strings.TrimSuffix(c.Conf.SiteBaseUrl, "/")

	parsed, err := url.Parse(c.Conf.SiteBaseUrl)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("siteBaseUrl %q is not a valid URL", c.Conf.SiteBaseUrl)
	}

	switch c.Conf.DefaultVisibility {
	case "public", "unlisted", "followers", "private", "direct":
	default:
		c.Conf.DefaultVisibility = "public"
	}

	return nil
}

// BaseUrl returns the normalized scheme+host prefix for all local URIs.
func (c *AppConfig) BaseUrl() string {
	return strings.TrimSuffix(c.Conf.SiteBaseUrl, "/")
}

// InstanceDomain returns the hostname (with port, if any) of the base URL.
func (c *AppConfig) InstanceDomain() string {
	parsed, err := url.Parse(c.BaseUrl())
	if err != nil {
		return ""
	}
	return parsed.Host
}

func (c *AppConfig) ActorUri(handle string) string {
	return fmt.Sprintf("%s/@%s", c.BaseUrl(), handle)
}

func (c *AppConfig) GroupUri(handle string) string {
	return fmt.Sprintf("%s/c/%s", c.BaseUrl(), handle)
}

func (c *AppConfig) InboxUri(handle string) string {
	return c.ActorUri(handle) + "/inbox"
}

func (c *AppConfig) OutboxUri(handle string) string {
	return c.ActorUri(handle) + "/outbox"
}

func (c *AppConfig) FollowersUri(handle string) string {
	return c.ActorUri(handle) + "/followers"
}

func (c *AppConfig) FollowingUri(handle string) string {
	return c.ActorUri(handle) + "/following"
}

func (c *AppConfig) LikedUri(handle string) string {
	return c.ActorUri(handle) + "/liked"
}

func (c *AppConfig) FeaturedUri(handle string) string {
	return c.ActorUri(handle) + "/featured"
}

func (c *AppConfig) SharedInboxUri() string {
	return c.BaseUrl() + "/inbox"
}

func (c *AppConfig) ProfileUrl(handle string) string {
	return fmt.Sprintf("%s/@%s", c.BaseUrl(), handle)
}

// WebFingerResource returns the acct: resource string for a local handle.
func (c *AppConfig) WebFingerResource(handle string) string {
	return fmt.Sprintf("acct:%s@%s", handle, c.InstanceDomain())
}

// IsLocalUri reports whether uri points at this instance.
func (c *AppConfig) IsLocalUri(uri string) bool {
	parsed, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return parsed.Host == c.InstanceDomain()
}

// ExtractHandleFromUri returns the local handle from an actor or group URI of
// this instance, or "" if the URI does not name a local actor.
func (c *AppConfig) ExtractHandleFromUri(uri string) string {
	if !c.IsLocalUri(uri) {
		return ""
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	path := strings.Trim(parsed.Path, "/")
	if h, ok := strings.CutPrefix(path, "@"); ok {
		if slash := strings.Index(h, "/"); slash > 0 {
			h = h[:slash]
		}
		return h
	}
	if h, ok := strings.CutPrefix(path, "c/"); ok {
		if slash := strings.Index(h, "/"); slash > 0 {
			h = h[:slash]
		}
		return h
	}
	return ""
}
