package activitypub

import (
	"time"

	"github.com/fedipress/fedipress/domain"
	"github.com/fedipress/fedipress/util"
)

// Activity envelope builders. Every top-level envelope carries the
// ActivityStreams context; to/cc mirror the wrapped object where one exists.

// WrapInCreateActivity wraps an object in a Create envelope.
func WrapInCreateActivity(rt *Runtime, content *domain.Content, obj *domain.ASObject) *domain.Activity {
	return &domain.Activity{
		Context:   domain.ContextActivityStreams,
		Id:        ActivityUri(rt.Conf, "Create", content.Slug, rt.Now()),
		Type:      "Create",
		Actor:     rt.Conf.ActorUri(content.AuthorHandle),
		Object:    obj,
		Published: obj.Published,
		To:        obj.To,
		Cc:        obj.Cc,
	}
}

// WrapInUpdateActivity wraps an edited object in an Update envelope.
func WrapInUpdateActivity(rt *Runtime, content *domain.Content, obj *domain.ASObject) *domain.Activity {
	published := obj.Updated
	if published == "" {
		published = obj.Published
	}
	return &domain.Activity{
		Context:   domain.ContextActivityStreams,
		Id:        ActivityUri(rt.Conf, "Update", content.Slug, rt.Now()),
		Type:      "Update",
		Actor:     rt.Conf.ActorUri(content.AuthorHandle),
		Object:    obj,
		Published: published,
		To:        obj.To,
		Cc:        obj.Cc,
	}
}

// BuildDeleteActivity builds a Delete with a Tombstone in place of the
// object, addressed publicly so peers drop their copies.
func BuildDeleteActivity(rt *Runtime, authorHandle, slug, contentType string) *domain.Activity {
	now := rt.Now()
	objectId := ObjectUri(rt.Conf, contentType, slug)

	return &domain.Activity{
		Context:   domain.ContextActivityStreams,
		Id:        ActivityUri(rt.Conf, "Delete", slug, now),
		Type:      "Delete",
		Actor:     rt.Conf.ActorUri(authorHandle),
		Object:    domain.Tombstone(objectId, asType(contentType), now.UTC().Format(time.RFC3339)),
		Published: now.UTC().Format(time.RFC3339),
		To:        []string{util.PublicAudience},
		Cc:        []string{rt.Conf.FollowersUri(authorHandle)},
	}
}

// BuildFollowActivity builds an outbound Follow of a remote actor.
func BuildFollowActivity(rt *Runtime, handle, remoteActorUri string) *domain.Activity {
	now := rt.Now()
	return &domain.Activity{
		Context:   domain.ContextActivityStreams,
		Id:        ActivityUri(rt.Conf, "Follow", handle, now),
		Type:      "Follow",
		Actor:     rt.Conf.ActorUri(handle),
		Object:    remoteActorUri,
		Published: now.UTC().Format(time.RFC3339),
	}
}

// BuildLikeActivity builds an outbound Like of a remote object.
func BuildLikeActivity(rt *Runtime, handle, objectUri string) *domain.Activity {
	now := rt.Now()
	actorUri := rt.Conf.ActorUri(handle)
	return &domain.Activity{
		Context:   domain.ContextActivityStreams,
		Id:        ActivityUri(rt.Conf, "Like", handle, now),
		Type:      "Like",
		Actor:     actorUri,
		Object:    objectUri,
		Published: now.UTC().Format(time.RFC3339),
		To:        []string{util.PublicAudience},
		Cc:        []string{rt.Conf.FollowersUri(handle)},
	}
}

// BuildAnnounceActivity builds an outbound Announce (boost) of an object.
func BuildAnnounceActivity(rt *Runtime, handle, objectUri string) *domain.Activity {
	now := rt.Now()
	actorUri := rt.Conf.ActorUri(handle)
	return &domain.Activity{
		Context:   domain.ContextActivityStreams,
		Id:        ActivityUri(rt.Conf, "Announce", handle, now),
		Type:      "Announce",
		Actor:     actorUri,
		Object:    objectUri,
		Published: now.UTC().Format(time.RFC3339),
		To:        []string{util.PublicAudience},
		Cc:        []string{rt.Conf.FollowersUri(handle)},
	}
}

// BuildUndoActivity wraps a previously sent activity in an Undo. The object
// is the original envelope in reference form.
func BuildUndoActivity(rt *Runtime, handle string, original *domain.Activity) *domain.Activity {
	now := rt.Now()
	return &domain.Activity{
		Context: domain.ContextActivityStreams,
		Id:      ActivityUri(rt.Conf, "Undo", handle, now),
		Type:    "Undo",
		Actor:   rt.Conf.ActorUri(handle),
		Object: map[string]interface{}{
			"id":     original.Id,
			"type":   original.Type,
			"actor":  original.ActorUri(),
			"object": original.Object,
		},
		Published: now.UTC().Format(time.RFC3339),
		To:        original.To,
		Cc:        original.Cc,
	}
}

// BuildAcceptActivity builds an Accept of an inbound Follow, addressed to
// the follower.
func BuildAcceptActivity(rt *Runtime, handle string, follow *domain.Activity) *domain.Activity {
	now := rt.Now()
	return &domain.Activity{
		Context: domain.ContextActivityStreams,
		Id:      ActivityUri(rt.Conf, "Accept", handle, now),
		Type:    "Accept",
		Actor:   rt.Conf.ActorUri(handle),
		Object: map[string]interface{}{
			"id":     follow.Id,
			"type":   follow.Type,
			"actor":  follow.ActorUri(),
			"object": follow.Object,
		},
		Published: now.UTC().Format(time.RFC3339),
		To:        []string{follow.ActorUri()},
	}
}

// BuildRejectActivity builds a Reject of an inbound Follow.
func BuildRejectActivity(rt *Runtime, handle string, follow *domain.Activity) *domain.Activity {
	now := rt.Now()
	return &domain.Activity{
		Context: domain.ContextActivityStreams,
		Id:      ActivityUri(rt.Conf, "Reject", handle, now),
		Type:    "Reject",
		Actor:   rt.Conf.ActorUri(handle),
		Object: map[string]interface{}{
			"id":     follow.Id,
			"type":   follow.Type,
			"actor":  follow.ActorUri(),
			"object": follow.Object,
		},
		Published: now.UTC().Format(time.RFC3339),
		To:        []string{follow.ActorUri()},
	}
}
