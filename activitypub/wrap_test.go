package activitypub

import (
	"testing"
	"time"

	"github.com/fedipress/fedipress/domain"
	"github.com/fedipress/fedipress/util"
)

func TestWrapInCreateActivity(t *testing.T) {
	rt := newTestRuntime(t, nil)

	published := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	content := &domain.Content{
		Slug:         "test-post",
		Type:         "blog",
		Content:      "Hello",
		Visibility:   "public",
		PublishedAt:  &published,
		AuthorHandle: "alice",
		Frontmatter:  domain.Frontmatter{Title: "Test Post"},
	}

	obj := ConvertContentToObject(rt, content)
	activity := WrapInCreateActivity(rt, content, obj)

	if activity.Type != "Create" {
		t.Errorf("Expected Create, got %s", activity.Type)
	}
	if activity.ActorUri() != "https://example.com/@alice" {
		t.Errorf("Wrong actor: %s", activity.ActorUri())
	}
	if activity.Context != domain.ContextActivityStreams {
		t.Errorf("Missing AS context: %v", activity.Context)
	}
	if activity.Id == "" || activity.ObjectUri() != obj.Id {
		t.Errorf("Wrong ids: %s / %s", activity.Id, activity.ObjectUri())
	}
	if !equalStrings(activity.To, obj.To) || !equalStrings(activity.Cc, obj.Cc) {
		t.Errorf("Addressing not mirrored from object")
	}
}

func TestWrapInUpdateActivityUsesUpdatedTime(t *testing.T) {
	rt := newTestRuntime(t, nil)

	published := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	content := &domain.Content{
		Slug:         "test-post",
		Type:         "blog",
		Visibility:   "public",
		PublishedAt:  &published,
		UpdatedAt:    &updated,
		AuthorHandle: "alice",
	}

	obj := ConvertContentToObject(rt, content)
	activity := WrapInUpdateActivity(rt, content, obj)

	if activity.Type != "Update" {
		t.Errorf("Expected Update, got %s", activity.Type)
	}
	if activity.Published != "2024-02-01T00:00:00Z" {
		t.Errorf("Expected updated timestamp, got %s", activity.Published)
	}
}

func TestBuildDeleteActivityCarriesTombstone(t *testing.T) {
	rt := newTestRuntime(t, nil)

	activity := BuildDeleteActivity(rt, "alice", "test-post", "blog")

	if activity.Type != "Delete" {
		t.Errorf("Expected Delete, got %s", activity.Type)
	}

	obj, ok := activity.Object.(*domain.ASObject)
	if !ok {
		t.Fatalf("Expected embedded Tombstone, got %T", activity.Object)
	}
	if obj.Type != "Tombstone" || obj.FormerType != "Article" {
		t.Errorf("Wrong tombstone: %+v", obj)
	}
	if obj.Id != "https://example.com/ap/content/blog/test-post" {
		t.Errorf("Wrong tombstone id: %s", obj.Id)
	}
	if !equalStrings(activity.To, []string{util.PublicAudience}) {
		t.Errorf("Delete should be public: %v", activity.To)
	}
	if !equalStrings(activity.Cc, []string{"https://example.com/@alice/followers"}) {
		t.Errorf("Delete should cc followers: %v", activity.Cc)
	}
}

func TestBuildAcceptActivity(t *testing.T) {
	rt := newTestRuntime(t, nil)

	follow := &domain.Activity{
		Id:     "https://mastodon.social/activities/f1",
		Type:   "Follow",
		Actor:  "https://mastodon.social/@bob",
		Object: "https://example.com/@alice",
	}

	accept := BuildAcceptActivity(rt, "alice", follow)

	if accept.Type != "Accept" {
		t.Errorf("Expected Accept, got %s", accept.Type)
	}
	if accept.ActorUri() != "https://example.com/@alice" {
		t.Errorf("Wrong actor: %s", accept.ActorUri())
	}
	if !equalStrings(accept.To, []string{"https://mastodon.social/@bob"}) {
		t.Errorf("Accept must address the follower: %v", accept.To)
	}

	obj := accept.EmbeddedObject()
	if obj == nil {
		t.Fatal("Accept must embed the Follow")
	}
	if obj["id"] != follow.Id || obj["type"] != "Follow" {
		t.Errorf("Embedded follow mismatch: %v", obj)
	}
}

func TestBuildUndoActivity(t *testing.T) {
	rt := newTestRuntime(t, nil)

	like := BuildLikeActivity(rt, "alice", "https://remote.example/notes/1")
	undo := BuildUndoActivity(rt, "alice", like)

	if undo.Type != "Undo" {
		t.Errorf("Expected Undo, got %s", undo.Type)
	}
	obj := undo.EmbeddedObject()
	if obj == nil || obj["id"] != like.Id || obj["type"] != "Like" {
		t.Errorf("Undo must reference the original activity: %v", obj)
	}
}

func TestLikeAndAnnounceAddressing(t *testing.T) {
	rt := newTestRuntime(t, nil)

	for _, build := range []func(*Runtime, string, string) *domain.Activity{BuildLikeActivity, BuildAnnounceActivity} {
		activity := build(rt, "alice", "https://remote.example/notes/1")
		if !equalStrings(activity.To, []string{util.PublicAudience}) {
			t.Errorf("%s should be public: %v", activity.Type, activity.To)
		}
		if !equalStrings(activity.Cc, []string{"https://example.com/@alice/followers"}) {
			t.Errorf("%s should cc followers: %v", activity.Type, activity.Cc)
		}
		if activity.ObjectUri() != "https://remote.example/notes/1" {
			t.Errorf("%s wrong object: %s", activity.Type, activity.ObjectUri())
		}
	}
}
