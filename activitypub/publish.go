package activitypub

import (
	"fmt"

	"github.com/fedipress/fedipress/domain"
	"github.com/fedipress/fedipress/store"
	"github.com/fedipress/fedipress/util"
)

// The publish hook: local content changes become addressed activities,
// recorded in the author's outbox and queued for delivery to every remote
// target (accepted followers plus mentioned remote actors). Local fan-out is
// a no-op.

// ShouldFederateContent is the publish gate: private and direct content
// stays local, as does anything flagged noFederate or never published.
// Profiles federate without a publish date.
func ShouldFederateContent(conf *util.AppConfig, content *domain.Content) bool {
	switch content.Visibility {
	case "private", "direct":
		return false
	}
	if content.Frontmatter.NoFederate {
		return false
	}
	if content.PublishedAt == nil && content.Type != "profile" {
		return false
	}
	return true
}

// deliveryTargets computes the remote recipients: accepted followers plus
// mentioned remote actors, local hostnames filtered out.
func deliveryTargets(rt *Runtime, handle string, mentions []util.Mention) ([]string, error) {
	err, followerUris := GetFollowerUris(rt, handle, domain.FollowAccepted)
	if err != nil {
		return nil, err
	}

	targets := followerUris
	for _, m := range mentions {
		if m.Domain == "" {
			continue
		}
		targets = append(targets, MentionHref(rt.Conf, m))
	}

	var remote []string
	seen := make(map[string]bool)
	for _, uri := range targets {
		if uri == "" || seen[uri] || rt.Conf.IsLocalUri(uri) {
			continue
		}
		seen[uri] = true
		remote = append(remote, uri)
	}
	return remote, nil
}

// appendOutbox records a published activity in the author's outbox, newest
// first.
func appendOutbox(rt *Runtime, handle string, entry domain.OutboxEntry) error {
	unlock := rt.Locks.Lock(store.NsOutbox, handle)
	defer unlock()

	var entries []domain.OutboxEntry
	err := rt.Store.Get(store.NsOutbox, handle, &entries)
	if err != nil && err != store.ErrNotFound {
		return err
	}

	for _, e := range entries {
		if e.ActivityId == entry.ActivityId {
			return nil
		}
	}

	entries = append([]domain.OutboxEntry{entry}, entries...)
	return rt.Store.Put(store.NsOutbox, handle, entries)
}

// GetOutbox returns an actor's published activities, newest first.
func GetOutbox(rt *Runtime, handle string) (error, []domain.OutboxEntry) {
	var entries []domain.OutboxEntry
	err := rt.Store.Get(store.NsOutbox, handle, &entries)
	if err != nil && err != store.ErrNotFound {
		return err, nil
	}
	return nil, entries
}

func publishActivity(rt *Runtime, handle string, activity *domain.Activity, obj *domain.ASObject, mentions []util.Mention) (*domain.DeliveryTask, error) {
	entry := domain.OutboxEntry{
		ActivityId: activity.Id,
		Type:       activity.Type,
		Published:  rt.Now(),
		Raw:        domain.MustMarshal(activity),
	}
	if obj != nil {
		entry.ObjectId = obj.Id
		entry.ObjectType = obj.Type
		entry.Name = obj.Name
		entry.Content = obj.Content
	}
	if err := appendOutbox(rt, handle, entry); err != nil {
		rt.Log.Errorf("Outbox: Failed to record activity %s: %v", activity.Id, err)
	}

	targets, err := deliveryTargets(rt, handle, mentions)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		rt.Log.Infof("Outbox: No remote targets for %s, skipping delivery", activity.Id)
		return nil, nil
	}

	return rt.Queue.QueueForDelivery(activity, targets, handle)
}

// FederateContent publishes new local content as a Create.
func FederateContent(rt *Runtime, content *domain.Content) (*domain.DeliveryTask, error) {
	if !ShouldFederateContent(rt.Conf, content) {
		rt.Log.Infof("Outbox: Content %s is not federated", content.Slug)
		return nil, nil
	}

	if err, _ := EnsureActor(rt, content.AuthorHandle); err != nil {
		return nil, err
	}

	obj := ConvertContentToObject(rt, content)
	activity := WrapInCreateActivity(rt, content, obj)
	mentions := util.ParseMentions(content.Content)

	rt.Log.Infof("Outbox: Publishing %s as %s", content.Slug, activity.Id)
	return publishActivity(rt, content.AuthorHandle, activity, obj, mentions)
}

// UpdateFederatedContent publishes an edit as an Update.
func UpdateFederatedContent(rt *Runtime, content *domain.Content) (*domain.DeliveryTask, error) {
	if !ShouldFederateContent(rt.Conf, content) {
		return nil, nil
	}

	if err, _ := EnsureActor(rt, content.AuthorHandle); err != nil {
		return nil, err
	}

	obj := ConvertContentToObject(rt, content)
	activity := WrapInUpdateActivity(rt, content, obj)
	mentions := util.ParseMentions(content.Content)

	return publishActivity(rt, content.AuthorHandle, activity, obj, mentions)
}

// DeleteFederatedContent publishes a removal as a Delete with a Tombstone.
func DeleteFederatedContent(rt *Runtime, authorHandle, slug, contentType string) (*domain.DeliveryTask, error) {
	activity := BuildDeleteActivity(rt, authorHandle, slug, contentType)
	return publishActivity(rt, authorHandle, activity, nil, nil)
}

// AnnounceContent boosts a URL to the sender's followers and, when known,
// the remote author.
func AnnounceContent(rt *Runtime, handle, contentUrl, remoteAuthorUri string) (*domain.DeliveryTask, error) {
	activity := BuildAnnounceActivity(rt, handle, contentUrl)

	if err := RecordOutgoingAnnounce(rt, handle, domain.OutgoingAnnounce{
		ActivityId: activity.Id,
		ObjectId:   contentUrl,
		At:         rt.Now(),
	}); err != nil {
		rt.Log.Errorf("Outbox: Failed to record outgoing announce: %v", err)
	}

	err, followerUris := GetFollowerUris(rt, handle, domain.FollowAccepted)
	if err != nil {
		return nil, err
	}
	targets := followerUris
	if remoteAuthorUri != "" && !rt.Conf.IsLocalUri(remoteAuthorUri) {
		targets = append(targets, remoteAuthorUri)
	}

	entry := domain.OutboxEntry{
		ActivityId: activity.Id,
		Type:       "Announce",
		ObjectId:   contentUrl,
		Published:  rt.Now(),
		Raw:        domain.MustMarshal(activity),
	}
	if err := appendOutbox(rt, handle, entry); err != nil {
		rt.Log.Errorf("Outbox: Failed to record announce %s: %v", activity.Id, err)
	}

	return rt.Queue.QueueForDelivery(activity, targets, handle)
}

// LikeRemoteObject sends a Like of a remote object. The object URI doubles
// as the delivery target; inbox resolution falls back to the origin's shared
// inbox when the URI is not an actor.
func LikeRemoteObject(rt *Runtime, handle, objectUri string) (*domain.DeliveryTask, error) {
	if rt.Conf.IsLocalUri(objectUri) {
		return nil, domain.BadRequestError("cannot federate a like of local object %s", objectUri)
	}

	activity := BuildLikeActivity(rt, handle, objectUri)

	if err := RecordOutgoingLike(rt, handle, domain.OutgoingLike{
		ActivityId: activity.Id,
		ObjectId:   objectUri,
		At:         rt.Now(),
	}); err != nil {
		rt.Log.Errorf("Outbox: Failed to record outgoing like: %v", err)
	}

	return rt.Queue.QueueForDelivery(activity, []string{objectUri}, handle)
}

// UndoLikeRemoteObject retracts a previously sent Like.
func UndoLikeRemoteObject(rt *Runtime, handle, objectUri string) (*domain.DeliveryTask, error) {
	err, outgoing := FindOutgoingLike(rt, handle, objectUri)
	if err != nil {
		return nil, err
	}
	if outgoing == nil {
		return nil, nil
	}

	original := BuildLikeActivity(rt, handle, objectUri)
	original.Id = outgoing.ActivityId
	undo := BuildUndoActivity(rt, handle, original)

	if err := RemoveOutgoingLike(rt, handle, objectUri); err != nil {
		rt.Log.Errorf("Outbox: Failed to forget outgoing like: %v", err)
	}

	return rt.Queue.QueueForDelivery(undo, []string{objectUri}, handle)
}

// SendFollow asks to follow a remote actor; the row stays pending until the
// remote Accepts.
func SendFollow(rt *Runtime, handle, remoteActorUri string) (*domain.DeliveryTask, error) {
	if err, _ := EnsureActor(rt, handle); err != nil {
		return nil, err
	}

	activity := BuildFollowActivity(rt, handle, remoteActorUri)

	remoteDomain, err := ExtractDomain(remoteActorUri)
	if err != nil {
		return nil, domain.BadRequestError("invalid remote actor URI %s", remoteActorUri)
	}

	if err := UpsertFollowing(rt, handle, domain.Following{
		ActorUri:   remoteActorUri,
		Handle:     ExtractHandle(remoteActorUri),
		Domain:     remoteDomain,
		FollowedAt: rt.Now(),
		Status:     domain.FollowPending,
		ActivityId: activity.Id,
	}); err != nil {
		return nil, fmt.Errorf("failed to store follow: %w", err)
	}

	rt.Log.Infof("Outbox: Following %s as %s", remoteActorUri, handle)
	return rt.Queue.QueueForDelivery(activity, []string{remoteActorUri}, handle)
}

// UndoFollow retracts a follow and drops the local row.
func UndoFollow(rt *Runtime, handle, remoteActorUri string) (*domain.DeliveryTask, error) {
	err, row := FindFollowing(rt, handle, remoteActorUri)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}

	original := BuildFollowActivity(rt, handle, remoteActorUri)
	original.Id = row.ActivityId
	undo := BuildUndoActivity(rt, handle, original)

	if err := RemoveFollowing(rt, handle, remoteActorUri); err != nil {
		return nil, err
	}

	return rt.Queue.QueueForDelivery(undo, []string{remoteActorUri}, handle)
}
