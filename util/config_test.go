package util

import (
	"testing"
)

func testConf(t *testing.T, base string) *AppConfig {
	t.Helper()
	c := DefaultConf()
	c.Conf.SiteBaseUrl = base
	if err := c.Validate(); err != nil {
		t.Fatalf("config invalid: %v", err)
	}
	return c
}

func TestDefaults(t *testing.T) {
	c := DefaultConf()

	if !c.Conf.FederationEnabled {
		t.Error("federation should default on")
	}
	if c.Conf.AutoApproveFollows {
		t.Error("autoApproveFollows should default off")
	}
	if c.Conf.MaxDeliveryRetries != 3 {
		t.Errorf("maxDeliveryRetries default: %d", c.Conf.MaxDeliveryRetries)
	}
	if c.Conf.FederationTimeoutMs != 10000 {
		t.Errorf("federationTimeout default: %d", c.Conf.FederationTimeoutMs)
	}
	if c.Conf.ActorKeyCacheTtl != 3600 {
		t.Errorf("actorKeyCacheTtl default: %d", c.Conf.ActorKeyCacheTtl)
	}
	if c.Conf.DefaultPageSize != 20 || c.Conf.MaxPageSize != 100 {
		t.Errorf("page size defaults: %d / %d", c.Conf.DefaultPageSize, c.Conf.MaxPageSize)
	}
	if c.Conf.DefaultVisibility != "public" {
		t.Errorf("defaultVisibility default: %s", c.Conf.DefaultVisibility)
	}
	if c.Conf.ActivityPubDir != ".activitypub" {
		t.Errorf("activitypubDir default: %s", c.Conf.ActivityPubDir)
	}
}

func TestValidateRequiresBaseUrl(t *testing.T) {
	c := DefaultConf()
	if err := c.Validate(); err == nil {
		t.Error("Expected error without siteBaseUrl")
	}

	c.Conf.SiteBaseUrl = "not a url"
	if err := c.Validate(); err == nil {
		t.Error("Expected error for invalid siteBaseUrl")
	}
}

func TestValidateStripsTrailingSlash(t *testing.T) {
	c := testConf(t, "https://example.com/")
	if c.BaseUrl() != "https://example.com" {
		t.Errorf("Trailing slash not stripped: %s", c.BaseUrl())
	}
}

func TestValidateNormalizesVisibility(t *testing.T) {
	c := DefaultConf()
	c.Conf.SiteBaseUrl = "https://example.com"
	c.Conf.DefaultVisibility = "everyone"
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if c.Conf.DefaultVisibility != "public" {
		t.Errorf("Unknown visibility should fall back to public, got %s", c.Conf.DefaultVisibility)
	}
}

func TestUriDerivation(t *testing.T) {
	c := testConf(t, "https://example.com")

	tests := []struct {
		got  string
		want string
	}{
		{c.ActorUri("alice"), "https://example.com/@alice"},
		{c.InboxUri("alice"), "https://example.com/@alice/inbox"},
		{c.OutboxUri("alice"), "https://example.com/@alice/outbox"},
		{c.FollowersUri("alice"), "https://example.com/@alice/followers"},
		{c.FollowingUri("alice"), "https://example.com/@alice/following"},
		{c.LikedUri("alice"), "https://example.com/@alice/liked"},
		{c.GroupUri("gardening"), "https://example.com/c/gardening"},
		{c.SharedInboxUri(), "https://example.com/inbox"},
		{c.WebFingerResource("alice"), "acct:alice@example.com"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %s want %s", tt.got, tt.want)
		}
	}
}

func TestInstanceDomain(t *testing.T) {
	c := testConf(t, "https://social.example.com:8443")
	if c.InstanceDomain() != "social.example.com:8443" {
		t.Errorf("Wrong domain: %s", c.InstanceDomain())
	}
}

func TestIsLocalUri(t *testing.T) {
	c := testConf(t, "https://example.com")

	tests := []struct {
		uri  string
		want bool
	}{
		{"https://example.com/@alice", true},
		{"https://example.com/ap/content/blog/x", true},
		{"https://mastodon.social/@bob", false},
		{"not a uri at all\x7f", false},
	}

	for _, tt := range tests {
		if got := c.IsLocalUri(tt.uri); got != tt.want {
			t.Errorf("IsLocalUri(%q) = %v, want %v", tt.uri, got, tt.want)
		}
	}
}

func TestExtractHandleFromUri(t *testing.T) {
	c := testConf(t, "https://example.com")

	tests := []struct {
		uri  string
		want string
	}{
		{"https://example.com/@alice", "alice"},
		{"https://example.com/@alice/followers", "alice"},
		{"https://example.com/c/gardening", "gardening"},
		{"https://example.com/somewhere", ""},
		{"https://mastodon.social/@bob", ""},
	}

	for _, tt := range tests {
		if got := c.ExtractHandleFromUri(tt.uri); got != tt.want {
			t.Errorf("ExtractHandleFromUri(%s) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FEDIPRESS_SITE_BASE_URL", "https://override.example")
	t.Setenv("FEDIPRESS_AUTO_APPROVE_FOLLOWS", "true")
	t.Setenv("FEDIPRESS_HTTPPORT", "9999")

	c := DefaultConf()
	applyEnvOverrides(c)

	if c.Conf.SiteBaseUrl != "https://override.example" {
		t.Errorf("siteBaseUrl override lost: %s", c.Conf.SiteBaseUrl)
	}
	if !c.Conf.AutoApproveFollows {
		t.Error("autoApproveFollows override lost")
	}
	if c.Conf.HttpPort != 9999 {
		t.Errorf("httpPort override lost: %d", c.Conf.HttpPort)
	}
}
