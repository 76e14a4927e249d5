package activitypub

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/fedipress/fedipress/domain"
	"github.com/fedipress/fedipress/util"
)

func TestEnsureActorCreatesKeypairOnce(t *testing.T) {
	rt := newTestRuntime(t, nil)

	err, first := EnsureActor(rt, "alice")
	if err != nil {
		t.Fatalf("EnsureActor failed: %v", err)
	}

	if first.PublicKeyId != "https://example.com/@alice#main-key" {
		t.Errorf("Wrong publicKeyId: %s", first.PublicKeyId)
	}
	if !strings.Contains(first.PrivateKeyPem, "PRIVATE KEY") {
		t.Error("Missing private key PEM")
	}
	if !strings.Contains(first.PublicKeyPem, "PUBLIC KEY") {
		t.Error("Missing public key PEM")
	}

	// keys survive a second call
	err, second := EnsureActor(rt, "alice")
	if err != nil {
		t.Fatalf("Second EnsureActor failed: %v", err)
	}
	if second.PrivateKeyPem != first.PrivateKeyPem {
		t.Error("Existing keys must be reused")
	}

	// and survive profile edits
	err, edited := UpdateActorProfile(rt, "alice", func(a *domain.StoredActor) {
		a.DisplayName = "Alice"
	})
	if err != nil {
		t.Fatalf("UpdateActorProfile failed: %v", err)
	}
	if edited.PrivateKeyPem != first.PrivateKeyPem {
		t.Error("Profile edits must not rotate keys")
	}
	if edited.DisplayName != "Alice" {
		t.Error("Profile edit lost")
	}
}

func TestEnsureActorUnknownUserWithResolver(t *testing.T) {
	rt := newTestRuntime(t, func(conf *util.AppConfig) {
		conf.ResolveUser = func(handle string) *util.ResolvedUser { return nil }
	})

	err, _ := EnsureActor(rt, "ghost")
	if !domain.IsKind(err, domain.KindNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

func TestBuildActorDocument(t *testing.T) {
	rt := newTestRuntime(t, nil)

	err, stored := EnsureActor(rt, "alice")
	if err != nil {
		t.Fatalf("EnsureActor failed: %v", err)
	}
	stored.DisplayName = "Alice"
	stored.Bio = "writes things"
	stored.Links = domain.SocialLinks{Github: "alice", Mastodon: "https://mastodon.social/@alice"}

	actor := BuildActorDocument(rt, stored)

	if actor.Id != "https://example.com/@alice" {
		t.Errorf("Wrong id: %s", actor.Id)
	}
	if actor.PublicKey == nil {
		t.Fatal("Actor document must carry the public key")
	}
	if actor.PublicKey.Owner != actor.Id {
		t.Errorf("publicKey.owner must equal actor id, got %s", actor.PublicKey.Owner)
	}
	if actor.PublicKey.Id != actor.Id+"#main-key" {
		t.Errorf("Wrong key id: %s", actor.PublicKey.Id)
	}
	if actor.Inbox != "https://example.com/@alice/inbox" || actor.Outbox != "https://example.com/@alice/outbox" {
		t.Errorf("Wrong endpoints: %s / %s", actor.Inbox, actor.Outbox)
	}
	if actor.Endpoints == nil || actor.Endpoints.SharedInbox != "https://example.com/inbox" {
		t.Errorf("Wrong shared inbox: %+v", actor.Endpoints)
	}

	// the JSON-LD context carries AS, security and the toot terms
	ctx, ok := actor.Context.([]interface{})
	if !ok || len(ctx) != 3 {
		t.Fatalf("Wrong context shape: %v", actor.Context)
	}
	if ctx[0] != domain.ContextActivityStreams || ctx[1] != domain.ContextSecurity {
		t.Errorf("Missing context namespaces: %v", ctx)
	}

	// the private key must never serialize into the public document
	serialized, err := json.Marshal(actor)
	if err != nil {
		t.Fatalf("Failed to marshal actor: %v", err)
	}
	if strings.Contains(string(serialized), "PRIVATE KEY") {
		t.Error("Private key leaked into the actor document")
	}

	// social links render as PropertyValue attachments
	if len(actor.Attachment) != 2 {
		t.Fatalf("Expected two attachments, got %d", len(actor.Attachment))
	}
	if actor.Attachment[0].Type != "PropertyValue" {
		t.Errorf("Wrong attachment type: %s", actor.Attachment[0].Type)
	}
	if !strings.Contains(actor.Attachment[0].Value, `href="https://github.com/alice"`) {
		t.Errorf("GitHub handle not expanded: %s", actor.Attachment[0].Value)
	}
	if !strings.Contains(actor.Attachment[0].Value, `rel="me nofollow noreferrer"`) {
		t.Errorf("Missing rel attributes: %s", actor.Attachment[0].Value)
	}
	if !strings.Contains(actor.Attachment[1].Value, `href="https://mastodon.social/@alice"`) {
		t.Errorf("Mastodon URL must be used verbatim: %s", actor.Attachment[1].Value)
	}
}

func TestEnsureGroupAndDocument(t *testing.T) {
	rt := newTestRuntime(t, nil)

	err, group := EnsureGroup(rt, "gardening")
	if err != nil {
		t.Fatalf("EnsureGroup failed: %v", err)
	}
	if group.PublicKeyId != "https://example.com/c/gardening#main-key" {
		t.Errorf("Wrong group key id: %s", group.PublicKeyId)
	}

	group.ModeratorHandles = []string{"alice"}
	group.PostingRestrictedToMods = true

	doc := BuildGroupDocument(rt, group)
	if doc.Type != "Group" {
		t.Errorf("Expected Group, got %s", doc.Type)
	}
	if doc.Id != "https://example.com/c/gardening" {
		t.Errorf("Wrong group id: %s", doc.Id)
	}
	if len(doc.Moderators) != 1 || doc.Moderators[0] != "https://example.com/@alice" {
		t.Errorf("Moderator handles must become actor URIs: %v", doc.Moderators)
	}
	if doc.PostingRestrictedToMods == nil || !*doc.PostingRestrictedToMods {
		t.Error("postingRestrictedToMods lost")
	}

	// group keys are distinct from any user keypair
	err, alice := EnsureActor(rt, "gardening")
	if err != nil {
		t.Fatalf("EnsureActor failed: %v", err)
	}
	if alice.PublicKeyPem == group.PublicKeyPem {
		t.Error("Groups must have their own keypair")
	}
}

func TestExtractHandle(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"https://example.com/users/alice", "alice"},
		{"https://example.com/@alice", "alice"},
		{"https://example.com/@alice/", "alice"},
		{"https://example.com", ""},
	}
	for _, tt := range tests {
		if got := ExtractHandle(tt.uri); got != tt.want {
			t.Errorf("ExtractHandle(%s): got %q want %q", tt.uri, got, tt.want)
		}
	}
}
