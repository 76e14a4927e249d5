package web

import (
	"io"
	"net/http"

	"github.com/fedipress/fedipress/activitypub"
	"github.com/fedipress/fedipress/domain"
	"github.com/gin-gonic/gin"
)

// HandleActorDocument serves the actor JSON-LD document. Browsers asking for
// text/html belong to the UI layer, which is not part of this core.
func HandleActorDocument(rt *activitypub.Runtime, c *gin.Context, handle string) {
	err, stored := activitypub.EnsureActor(rt, handle)
	if err != nil {
		c.JSON(domain.StatusOf(err), gin.H{"error": "Actor not found"})
		return
	}

	c.Header("Content-Type", activityJSON)
	c.JSON(http.StatusOK, activitypub.BuildActorDocument(rt, stored))
}

// HandleActorInbox receives a federated activity for one local actor.
// 202 on success, 401/403 on authentication failures, 400 on bad envelopes.
func HandleActorInbox(rt *activitypub.Runtime, c *gin.Context, handle string) {
	if !activitypub.LocalUserExists(rt, handle) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Actor not found"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		rt.Log.Warnf("Inbox: Failed to read body: %v", err)
		c.Status(http.StatusBadRequest)
		return
	}

	if err := activitypub.HandleInbox(rt, handle, c.Request, body); err != nil {
		rt.Log.Warnf("Inbox: Rejected activity for %s: %v", handle, err)
		c.JSON(domain.StatusOf(err), gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusAccepted)
}

// HandleSharedInbox receives an activity on the shared inbox and routes it
// to the local actor it addresses.
func HandleSharedInbox(rt *activitypub.Runtime, c *gin.Context) {
	rt.Log.Info("POST /inbox (shared inbox)")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		rt.Log.Warnf("Shared inbox: Failed to read body: %v", err)
		c.Status(http.StatusBadRequest)
		return
	}

	activity, parseErr := domain.ParseActivity(body)
	if parseErr != nil {
		c.JSON(domain.StatusOf(parseErr), gin.H{"error": parseErr.Error()})
		return
	}

	handle := resolveSharedInboxTarget(rt, activity)
	if handle == "" {
		rt.Log.Warnf("Shared inbox: Could not determine target for %s activity", activity.Type)
		// Accept anyway to be nice; peers treat non-2xx as retryable.
		c.Status(http.StatusAccepted)
		return
	}

	rt.Log.Infof("Shared inbox: Routing to user %s", handle)
	if err := activitypub.HandleInbox(rt, handle, c.Request, body); err != nil {
		c.JSON(domain.StatusOf(err), gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusAccepted)
}

// resolveSharedInboxTarget finds the local handle an activity addresses:
// first in to/cc, then the object (Follow), finally any local actor that
// follows the sender (Create/Update/Delete fan-out).
func resolveSharedInboxTarget(rt *activitypub.Runtime, activity *domain.Activity) string {
	for _, uri := range append(append([]string{}, activity.To...), activity.Cc...) {
		if handle := rt.Conf.ExtractHandleFromUri(uri); handle != "" {
			return handle
		}
	}

	if handle := rt.Conf.ExtractHandleFromUri(activity.ObjectUri()); handle != "" {
		return handle
	}

	actorUri := activity.ActorUri()
	err, handles := activitypub.ListLocalActorHandles(rt)
	if err != nil {
		return ""
	}
	for _, handle := range handles {
		if activitypub.IsFollowing(rt, handle, actorUri) {
			return handle
		}
	}
	return ""
}
