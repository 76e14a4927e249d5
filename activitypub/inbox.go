package activitypub

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fedipress/fedipress/domain"
	"github.com/k3a/html2text"
)

// Inbound processing: authenticate the request, parse the envelope, then
// dispatch by activity type. Handlers mutate the follower graph, the
// like/announce stores, the remote-content mirror and the notification
// lists, and may enqueue an Accept/Reject for delivery.

const excerptLength = 200

// HandleInbox is the entry point the route layer calls with the raw inbound
// request. Errors carry the kind that maps to the HTTP status.
func HandleInbox(rt *Runtime, handle string, req *http.Request, body []byte) error {
	if rt.Conf.Conf.SignatureVerificationEnabled {
		if req.Header.Get("Signature") == "" {
			return domain.UnauthorizedError("missing signature header")
		}
		signerUri, err := VerifyRequest(rt, req, body)
		if err != nil {
			return err
		}
		rt.Log.Debugf("Inbox: Verified signature from %s", signerUri)
	}

	activity, err := domain.ParseActivity(body)
	if err != nil {
		return err
	}

	return ProcessActivity(rt, handle, activity)
}

// ProcessActivity dispatches an already-authenticated envelope. Unknown
// activity types are logged and ignored.
func ProcessActivity(rt *Runtime, handle string, activity *domain.Activity) error {
	rt.Log.Infof("Inbox: Received %s from %s", activity.Type, activity.ActorUri())

	switch activity.Type {
	case "Follow":
		return handleFollow(rt, handle, activity)
	case "Accept":
		return handleAccept(rt, handle, activity)
	case "Reject":
		return handleReject(rt, handle, activity)
	case "Undo":
		return handleUndo(rt, handle, activity)
	case "Like":
		return handleLike(rt, handle, activity)
	case "Announce":
		return handleAnnounce(rt, handle, activity)
	case "Create":
		return handleCreate(rt, handle, activity)
	case "Update":
		return handleUpdate(rt, handle, activity)
	case "Delete":
		return handleDelete(rt, handle, activity)
	default:
		rt.Log.Infof("Inbox: Ignoring unsupported activity type %s", activity.Type)
		return nil
	}
}

// remoteActorDetails fetches display details for notifications, best-effort.
func remoteActorDetails(rt *Runtime, actorUri string) (handle, domainName, displayName, avatar string) {
	domainName, _ = ExtractDomain(actorUri)
	handle = ExtractHandle(actorUri)

	actor, err := FetchRemoteActor(rt, actorUri)
	if err != nil {
		return
	}
	if actor.PreferredUsername != "" {
		handle = actor.PreferredUsername
	}
	displayName = actor.Name
	if actor.Icon != nil {
		avatar = actor.Icon.Url
	}
	return
}

func handleFollow(rt *Runtime, handle string, activity *domain.Activity) error {
	actorUri := activity.ActorUri()

	err, existing := FindFollower(rt, handle, actorUri)
	if err != nil {
		return err
	}
	if existing != nil {
		switch existing.Status {
		case domain.FollowRejected, domain.FollowBlocked:
			rt.Log.Infof("Inbox: Ignoring Follow from %s %s actor", actorUri, existing.Status)
			return nil
		case domain.FollowAccepted:
			// replayed Follow; nothing to change
			return nil
		}
	}

	remoteHandle, remoteDomain, displayName, avatar := remoteActorDetails(rt, actorUri)

	follower := domain.Follower{
		ActorUri:    actorUri,
		Handle:      remoteHandle,
		Domain:      remoteDomain,
		DisplayName: displayName,
		AvatarUrl:   avatar,
		FollowedAt:  rt.Now(),
		Status:      domain.FollowPending,
		ActivityId:  activity.Id,
	}

	if rt.Conf.Conf.AutoApproveFollows {
		follower.Status = domain.FollowAccepted
	}

	if err := UpsertFollower(rt, handle, follower); err != nil {
		return err
	}

	notify(rt, handle, domain.Notification{
		Type:        domain.NotifyFollow,
		ActorUri:    actorUri,
		ActorHandle: remoteHandle,
		ActorName:   displayName,
		ActorAvatar: avatar,
		TargetUri:   rt.Conf.ActorUri(handle),
		ActivityId:  activity.Id,
	})

	if rt.Conf.Conf.AutoApproveFollows {
		accept := BuildAcceptActivity(rt, handle, activity)
		if _, err := rt.Queue.QueueForDelivery(accept, []string{actorUri}, handle); err != nil {
			rt.Log.Errorf("Inbox: Failed to enqueue Accept for %s: %v", actorUri, err)
		}
		rt.Log.Infof("Inbox: Auto-accepted follow from %s", actorUri)
	}

	return nil
}

// embeddedFollow digs the Follow reference out of an Accept/Reject object.
func embeddedFollow(activity *domain.Activity) (followId, followTarget string) {
	if obj := activity.EmbeddedObject(); obj != nil {
		if t, ok := obj["type"].(string); ok && t != "Follow" {
			return "", ""
		}
		followId, _ = obj["id"].(string)
		followTarget = refUriFromMap(obj, "object")
		return
	}
	if uri, ok := activity.Object.(string); ok {
		return uri, ""
	}
	return "", ""
}

func refUriFromMap(m map[string]interface{}, field string) string {
	switch v := m[field].(type) {
	case string:
		return v
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			return id
		}
	}
	return ""
}

func handleAccept(rt *Runtime, handle string, activity *domain.Activity) error {
	actorUri := activity.ActorUri()

	followId, followTarget := embeddedFollow(activity)
	if followId == "" && followTarget == "" {
		return domain.BadRequestError("Accept does not reference a Follow")
	}
	if followTarget != "" && followTarget != actorUri {
		return domain.BadRequestError("Accept references a Follow of %s, sent by %s", followTarget, actorUri)
	}

	if err := AcceptFollowing(rt, handle, actorUri); err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			rt.Log.Infof("Inbox: Accept from %s matches no pending follow", actorUri)
			return nil
		}
		return err
	}

	remoteHandle, _, displayName, avatar := remoteActorDetails(rt, actorUri)
	notify(rt, handle, domain.Notification{
		Type:        domain.NotifyFollowAccepted,
		ActorUri:    actorUri,
		ActorHandle: remoteHandle,
		ActorName:   displayName,
		ActorAvatar: avatar,
		ActivityId:  activity.Id,
	})

	rt.Log.Infof("Inbox: Follow of %s was accepted", actorUri)
	return nil
}

func handleReject(rt *Runtime, handle string, activity *domain.Activity) error {
	actorUri := activity.ActorUri()

	if err := RemoveFollowing(rt, handle, actorUri); err != nil {
		return err
	}

	remoteHandle, _, displayName, avatar := remoteActorDetails(rt, actorUri)
	notify(rt, handle, domain.Notification{
		Type:        domain.NotifyFollowRejected,
		ActorUri:    actorUri,
		ActorHandle: remoteHandle,
		ActorName:   displayName,
		ActorAvatar: avatar,
		ActivityId:  activity.Id,
	})

	rt.Log.Infof("Inbox: Follow of %s was rejected", actorUri)
	return nil
}

func handleUndo(rt *Runtime, handle string, activity *domain.Activity) error {
	obj := activity.EmbeddedObject()
	if obj == nil {
		return domain.BadRequestError("Undo requires an embedded object")
	}

	objType, _ := obj["type"].(string)
	objId, _ := obj["id"].(string)
	actorUri := activity.ActorUri()

	switch objType {
	case "Follow":
		rt.Log.Infof("Inbox: Removing follower %s", actorUri)
		return RemoveFollower(rt, handle, actorUri)
	case "Like":
		return DeleteLike(rt, objId, actorUri)
	case "Announce":
		return DeleteAnnounce(rt, objId, actorUri)
	default:
		rt.Log.Infof("Inbox: Ignoring Undo of %s", objType)
		return nil
	}
}

func handleLike(rt *Runtime, handle string, activity *domain.Activity) error {
	objectId, ok := activity.Object.(string)
	if !ok || objectId == "" {
		return domain.BadRequestError("Like object must be a URI string")
	}

	actorUri := activity.ActorUri()
	remoteHandle, _, displayName, avatar := remoteActorDetails(rt, actorUri)

	inserted, err := RecordLike(rt, domain.LikeRecord{
		ActivityId:  activity.Id,
		ActorUri:    actorUri,
		ActorHandle: remoteHandle,
		ObjectId:    objectId,
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	notify(rt, handle, domain.Notification{
		Type:        domain.NotifyLike,
		ActorUri:    actorUri,
		ActorHandle: remoteHandle,
		ActorName:   displayName,
		ActorAvatar: avatar,
		TargetUri:   objectId,
		ActivityId:  activity.Id,
	})
	return nil
}

func handleAnnounce(rt *Runtime, handle string, activity *domain.Activity) error {
	objectId, ok := activity.Object.(string)
	if !ok || objectId == "" {
		return domain.BadRequestError("Announce object must be a URI string")
	}

	actorUri := activity.ActorUri()
	remoteHandle, _, displayName, avatar := remoteActorDetails(rt, actorUri)

	inserted, err := RecordAnnounce(rt, domain.AnnounceRecord{
		ActivityId:  activity.Id,
		ActorUri:    actorUri,
		ActorHandle: remoteHandle,
		ObjectId:    objectId,
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	notify(rt, handle, domain.Notification{
		Type:        domain.NotifyAnnounce,
		ActorUri:    actorUri,
		ActorHandle: remoteHandle,
		ActorName:   displayName,
		ActorAvatar: avatar,
		TargetUri:   objectId,
		ActivityId:  activity.Id,
	})
	return nil
}

// excerpt reduces an HTML content field to a short plain-text preview.
func excerpt(content string) string {
	text := strings.TrimSpace(html2text.HTML2Text(content))
	if len(text) > excerptLength {
		text = text[:excerptLength]
	}
	return text
}

func handleCreate(rt *Runtime, handle string, activity *domain.Activity) error {
	obj := activity.EmbeddedObject()
	if obj == nil {
		return domain.BadRequestError("Create requires an embedded object")
	}

	objectId, _ := obj["id"].(string)
	objectType, _ := obj["type"].(string)
	published, _ := obj["published"].(string)
	content, _ := obj["content"].(string)
	actorUri := activity.ActorUri()
	remoteHandle := ExtractHandle(actorUri)

	rawObject, err := json.Marshal(obj)
	if err != nil {
		return domain.BadRequestError("unserializable Create object: %v", err)
	}

	inserted, err := StoreRemoteContent(rt, handle, domain.RemoteContent{
		ActivityId:  activity.Id,
		ObjectId:    objectId,
		ObjectType:  objectType,
		ActorUri:    actorUri,
		ActorHandle: remoteHandle,
		Object:      rawObject,
		Published:   published,
	})
	if err != nil {
		rt.Log.Errorf("Inbox: Failed to mirror Create %s: %v", activity.Id, err)
		return nil // best-effort; the activity is still acknowledged
	}
	if !inserted {
		rt.Log.Infof("Inbox: Create %s already mirrored, skipping", activity.Id)
		return nil
	}

	// Mentions of local actors become notifications for the mentioned user;
	// a reply to local content notifies the inbox owner.
	if tags, ok := obj["tag"].([]interface{}); ok {
		for _, raw := range tags {
			tag, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			if t, _ := tag["type"].(string); t != "Mention" {
				continue
			}
			href, _ := tag["href"].(string)
			mentioned := rt.Conf.ExtractHandleFromUri(href)
			if mentioned == "" {
				continue
			}
			notify(rt, mentioned, domain.Notification{
				Type:        domain.NotifyMention,
				ActorUri:    actorUri,
				ActorHandle: remoteHandle,
				TargetUri:   objectId,
				ActivityId:  activity.Id,
				Content:     excerpt(content),
			})
		}
	}

	if inReplyTo, _ := obj["inReplyTo"].(string); inReplyTo != "" && rt.Conf.IsLocalUri(inReplyTo) {
		notify(rt, handle, domain.Notification{
			Type:        domain.NotifyReply,
			ActorUri:    actorUri,
			ActorHandle: remoteHandle,
			TargetUri:   inReplyTo,
			ActivityId:  activity.Id,
			Content:     excerpt(content),
		})
	}

	return nil
}

func handleUpdate(rt *Runtime, handle string, activity *domain.Activity) error {
	obj := activity.EmbeddedObject()
	if obj == nil {
		return domain.BadRequestError("Update requires an embedded object")
	}

	objectId, _ := obj["id"].(string)
	if objectId == "" {
		return domain.BadRequestError("Update object missing id")
	}

	rawObject, err := json.Marshal(obj)
	if err != nil {
		return domain.BadRequestError("unserializable Update object: %v", err)
	}

	if err := UpdateRemoteContent(rt, handle, objectId, activity.Id, rawObject); err != nil {
		rt.Log.Errorf("Inbox: Failed to apply Update for %s: %v", objectId, err)
	}
	return nil
}

func handleDelete(rt *Runtime, handle string, activity *domain.Activity) error {
	objectUri := activity.ObjectUri()
	if objectUri == "" {
		return domain.BadRequestError("Delete without a resolvable object")
	}

	actorUri := activity.ActorUri()
	if objectUri == actorUri {
		// actor deletion: drop the relationship both ways
		rt.Log.Infof("Inbox: Actor %s deleted their account", actorUri)
		if err := RemoveFollower(rt, handle, actorUri); err != nil {
			rt.Log.Errorf("Inbox: Failed to drop follower %s: %v", actorUri, err)
		}
		if err := RemoveFollowing(rt, handle, actorUri); err != nil {
			rt.Log.Errorf("Inbox: Failed to drop following %s: %v", actorUri, err)
		}
		return nil
	}

	if err := DeleteRemoteContent(rt, handle, objectUri); err != nil {
		rt.Log.Errorf("Inbox: Failed to tombstone %s: %v", objectUri, err)
	}
	return nil
}

// notify records a notification; failures are logged, never propagated.
func notify(rt *Runtime, handle string, n domain.Notification) {
	if err := AddNotification(rt, handle, n); err != nil {
		rt.Log.Errorf("Inbox: Failed to store %s notification for %s: %v", n.Type, handle, err)
	}
}
