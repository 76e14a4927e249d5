package activitypub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fedipress/fedipress/domain"
	"github.com/fedipress/fedipress/store"
	"github.com/fedipress/fedipress/util"
)

func TestShouldFederateContent(t *testing.T) {
	conf := util.DefaultConf()
	conf.Conf.SiteBaseUrl = "https://example.com"

	published := time.Now()

	tests := []struct {
		name    string
		content domain.Content
		want    bool
	}{
		{"public published", domain.Content{Type: "blog", Visibility: "public", PublishedAt: &published}, true},
		{"private", domain.Content{Type: "blog", Visibility: "private", PublishedAt: &published}, false},
		{"direct", domain.Content{Type: "note", Visibility: "direct", PublishedAt: &published}, false},
		{"noFederate", domain.Content{Type: "blog", Visibility: "public", PublishedAt: &published,
			Frontmatter: domain.Frontmatter{NoFederate: true}}, false},
		{"unpublished", domain.Content{Type: "blog", Visibility: "public"}, false},
		{"unpublished profile", domain.Content{Type: "profile", Visibility: "public"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldFederateContent(conf, &tt.content); got != tt.want {
				t.Errorf("ShouldFederateContent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFederateContentQueuesForRemoteFollowers(t *testing.T) {
	rt := newTestRuntime(t, nil)

	UpsertFollower(rt, "alice", domain.Follower{
		ActorUri: "https://mastodon.social/@bob",
		Status:   domain.FollowAccepted,
	})
	// pending followers and local followers do not receive deliveries
	UpsertFollower(rt, "alice", domain.Follower{
		ActorUri: "https://pleroma.example/@carol",
		Status:   domain.FollowPending,
	})
	UpsertFollower(rt, "alice", domain.Follower{
		ActorUri: "https://example.com/@dave",
		Status:   domain.FollowAccepted,
	})

	published := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	task, err := FederateContent(rt, &domain.Content{
		Slug:         "test-post",
		Type:         "blog",
		Content:      "Hello",
		Visibility:   "public",
		PublishedAt:  &published,
		AuthorHandle: "alice",
		Frontmatter:  domain.Frontmatter{Title: "Test Post"},
	})
	if err != nil {
		t.Fatalf("FederateContent failed: %v", err)
	}
	if task == nil {
		t.Fatal("Expected a queued task")
	}

	if len(task.Recipients) != 1 || task.Recipients[0].Url != "https://mastodon.social/@bob" {
		t.Errorf("Wrong recipients: %+v", task.Recipients)
	}

	var activity domain.Activity
	if err := json.Unmarshal(task.Activity, &activity); err != nil {
		t.Fatalf("Queued activity unparseable: %v", err)
	}
	if activity.Type != "Create" {
		t.Errorf("Expected Create, got %s", activity.Type)
	}
	if activity.ActorUri() != "https://example.com/@alice" {
		t.Errorf("Wrong actor: %s", activity.ActorUri())
	}

	// the activity landed in the outbox as well
	err, entries := GetOutbox(rt, "alice")
	if err != nil || len(entries) != 1 {
		t.Fatalf("Expected one outbox entry, got %v / %v", entries, err)
	}
	if entries[0].Type != "Create" || entries[0].ObjectType != "Article" {
		t.Errorf("Wrong outbox entry: %+v", entries[0])
	}
}

func TestFederateContentMentionsAddTargets(t *testing.T) {
	rt := newTestRuntime(t, nil)

	published := time.Now()
	task, err := FederateContent(rt, &domain.Content{
		Slug:         "n1",
		Type:         "note",
		Content:      "hi @bob@mastodon.social",
		Visibility:   "public",
		PublishedAt:  &published,
		AuthorHandle: "alice",
	})
	if err != nil {
		t.Fatalf("FederateContent failed: %v", err)
	}
	if task == nil {
		t.Fatal("Expected a task for the mentioned remote actor")
	}
	if len(task.Recipients) != 1 || task.Recipients[0].Url != "https://mastodon.social/@bob" {
		t.Errorf("Wrong recipients: %+v", task.Recipients)
	}
}

func TestFederateContentNoRemoteTargets(t *testing.T) {
	rt := newTestRuntime(t, nil)

	published := time.Now()
	task, err := FederateContent(rt, &domain.Content{
		Slug:         "quiet",
		Type:         "blog",
		Visibility:   "public",
		PublishedAt:  &published,
		AuthorHandle: "alice",
	})
	if err != nil {
		t.Fatalf("FederateContent failed: %v", err)
	}
	if task != nil {
		t.Error("No delivery should be queued without remote targets")
	}

	// it still lands in the outbox
	err, entries := GetOutbox(rt, "alice")
	if err != nil || len(entries) != 1 {
		t.Errorf("Expected outbox entry even without targets: %v", entries)
	}

	ids, _ := rt.Store.List(store.NsDeliveryQueue)
	if len(ids) != 0 {
		t.Error("Queue should be empty")
	}
}

func TestFederateContentGateSkipsPrivate(t *testing.T) {
	rt := newTestRuntime(t, nil)

	published := time.Now()
	task, err := FederateContent(rt, &domain.Content{
		Slug:         "secret",
		Type:         "note",
		Visibility:   "private",
		PublishedAt:  &published,
		AuthorHandle: "alice",
	})
	if err != nil || task != nil {
		t.Errorf("Private content must not federate: %v / %v", task, err)
	}

	err, entries := GetOutbox(rt, "alice")
	if err != nil || len(entries) != 0 {
		t.Errorf("Private content must not reach the outbox: %v", entries)
	}
}

func TestDeleteFederatedContent(t *testing.T) {
	rt := newTestRuntime(t, nil)

	UpsertFollower(rt, "alice", domain.Follower{
		ActorUri: "https://mastodon.social/@bob",
		Status:   domain.FollowAccepted,
	})

	task, err := DeleteFederatedContent(rt, "alice", "test-post", "blog")
	if err != nil {
		t.Fatalf("DeleteFederatedContent failed: %v", err)
	}
	if task == nil {
		t.Fatal("Expected a queued Delete")
	}

	var activity domain.Activity
	json.Unmarshal(task.Activity, &activity)
	if activity.Type != "Delete" {
		t.Errorf("Expected Delete, got %s", activity.Type)
	}
	obj := activity.EmbeddedObject()
	if obj == nil || obj["type"] != "Tombstone" {
		t.Errorf("Delete must carry a Tombstone: %v", obj)
	}
}

func TestAnnounceContent(t *testing.T) {
	rt := newTestRuntime(t, nil)

	UpsertFollower(rt, "alice", domain.Follower{
		ActorUri: "https://mastodon.social/@bob",
		Status:   domain.FollowAccepted,
	})

	task, err := AnnounceContent(rt, "alice", "https://pleroma.example/notes/9", "https://pleroma.example/@eve")
	if err != nil {
		t.Fatalf("AnnounceContent failed: %v", err)
	}
	if task == nil || len(task.Recipients) != 2 {
		t.Fatalf("Expected followers plus author as targets: %+v", task)
	}

	var activity domain.Activity
	json.Unmarshal(task.Activity, &activity)
	if activity.Type != "Announce" || activity.ObjectUri() != "https://pleroma.example/notes/9" {
		t.Errorf("Wrong announce: %+v", activity)
	}
}

func TestSendFollowTracksPendingRow(t *testing.T) {
	rt := newTestRuntime(t, nil)

	task, err := SendFollow(rt, "alice", "https://mastodon.social/@bob")
	if err != nil {
		t.Fatalf("SendFollow failed: %v", err)
	}
	if task == nil {
		t.Fatal("Expected a queued Follow")
	}

	err, row := FindFollowing(rt, "alice", "https://mastodon.social/@bob")
	if err != nil || row == nil {
		t.Fatalf("Following row missing: %v", err)
	}
	if row.Status != domain.FollowPending {
		t.Errorf("Outbound follow starts pending, got %s", row.Status)
	}
	if row.ActivityId == "" {
		t.Error("Following row must remember the Follow activity id")
	}
}

func TestLikeAndUndoLikeRemoteObject(t *testing.T) {
	rt := newTestRuntime(t, nil)

	objectUri := "https://pleroma.example/notes/9"
	task, err := LikeRemoteObject(rt, "alice", objectUri)
	if err != nil || task == nil {
		t.Fatalf("LikeRemoteObject failed: %v", err)
	}

	err, outgoing := FindOutgoingLike(rt, "alice", objectUri)
	if err != nil || outgoing == nil {
		t.Fatalf("Outgoing like not recorded: %v", err)
	}

	undoTask, err := UndoLikeRemoteObject(rt, "alice", objectUri)
	if err != nil || undoTask == nil {
		t.Fatalf("UndoLikeRemoteObject failed: %v", err)
	}

	var undo domain.Activity
	json.Unmarshal(undoTask.Activity, &undo)
	if undo.Type != "Undo" {
		t.Errorf("Expected Undo, got %s", undo.Type)
	}
	obj := undo.EmbeddedObject()
	if obj == nil || obj["id"] != outgoing.ActivityId {
		t.Errorf("Undo must reference the original Like id: %v", obj)
	}

	_, outgoing = FindOutgoingLike(rt, "alice", objectUri)
	if outgoing != nil {
		t.Error("Outgoing like must be forgotten after Undo")
	}

	// undoing again is a no-op
	again, err := UndoLikeRemoteObject(rt, "alice", objectUri)
	if err != nil || again != nil {
		t.Errorf("Second undo must be a no-op: %v / %v", again, err)
	}

	if _, err := LikeRemoteObject(rt, "alice", "https://example.com/@alice/notes/n"); err == nil {
		t.Error("Liking local content must not federate")
	}
}
