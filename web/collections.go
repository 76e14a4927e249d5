package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fedipress/fedipress/activitypub"
	"github.com/fedipress/fedipress/domain"
	"github.com/gin-gonic/gin"
)

// OrderedCollection endpoints. Without a page parameter the collection
// envelope is served with totalItems and a first link; ?page=N serves one
// page of defaultPageSize items (capped at maxPageSize).

func pageParams(rt *activitypub.Runtime, c *gin.Context) (page, size int) {
	size = rt.Conf.Conf.DefaultPageSize
	if size <= 0 {
		size = 20
	}
	if max := rt.Conf.Conf.MaxPageSize; max > 0 && size > max {
		size = max
	}

	if p := c.Query("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}
	return page, size
}

func serveCollection(rt *activitypub.Runtime, c *gin.Context, collectionUri string, items []interface{}) {
	page, size := pageParams(rt, c)
	c.Header("Content-Type", activityJSON)

	if page == 0 {
		collection := domain.OrderedCollection{
			Context:    domain.ContextActivityStreams,
			Id:         collectionUri,
			Type:       "OrderedCollection",
			TotalItems: len(items),
		}
		if len(items) > 0 {
			collection.First = collectionUri + "?page=1"
		}
		c.JSON(http.StatusOK, collection)
		return
	}

	start := (page - 1) * size
	if start > len(items) {
		start = len(items)
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}

	pageDoc := domain.OrderedCollectionPage{
		Context:      domain.ContextActivityStreams,
		Id:           fmt.Sprintf("%s?page=%d", collectionUri, page),
		Type:         "OrderedCollectionPage",
		PartOf:       collectionUri,
		OrderedItems: items[start:end],
	}
	if end < len(items) {
		pageDoc.Next = fmt.Sprintf("%s?page=%d", collectionUri, page+1)
	}
	if page > 1 {
		pageDoc.Prev = fmt.Sprintf("%s?page=%d", collectionUri, page-1)
	}

	c.JSON(http.StatusOK, pageDoc)
}

// HandleOutboxCollection serves the actor's published activities.
func HandleOutboxCollection(rt *activitypub.Runtime, c *gin.Context, handle string) {
	err, entries := activitypub.GetOutbox(rt, handle)
	if err != nil {
		c.JSON(domain.StatusOf(err), gin.H{"error": err.Error()})
		return
	}

	items := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		items = append(items, json.RawMessage(entry.Raw))
	}
	serveCollection(rt, c, rt.Conf.OutboxUri(handle), items)
}

// HandleFollowersCollection serves accepted follower URIs.
func HandleFollowersCollection(rt *activitypub.Runtime, c *gin.Context, handle string) {
	err, uris := activitypub.GetFollowerUris(rt, handle, domain.FollowAccepted)
	if err != nil {
		c.JSON(domain.StatusOf(err), gin.H{"error": err.Error()})
		return
	}

	items := make([]interface{}, 0, len(uris))
	for _, uri := range uris {
		items = append(items, uri)
	}
	serveCollection(rt, c, rt.Conf.FollowersUri(handle), items)
}

// HandleFollowingCollection serves the URIs the actor follows.
func HandleFollowingCollection(rt *activitypub.Runtime, c *gin.Context, handle string) {
	err, rows := activitypub.GetFollowing(rt, handle)
	if err != nil {
		c.JSON(domain.StatusOf(err), gin.H{"error": err.Error()})
		return
	}

	items := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		if row.Status == domain.FollowAccepted {
			items = append(items, row.ActorUri)
		}
	}
	serveCollection(rt, c, rt.Conf.FollowingUri(handle), items)
}

// HandleLikedCollection serves object URIs the actor has liked.
func HandleLikedCollection(rt *activitypub.Runtime, c *gin.Context, handle string) {
	items := []interface{}{}
	if err, likes := activitypub.GetOutgoingLikes(rt, handle); err == nil {
		for _, like := range likes {
			items = append(items, like.ObjectId)
		}
	}
	serveCollection(rt, c, rt.Conf.LikedUri(handle), items)
}

// HandleFeaturedCollection serves pinned objects; the core keeps none, so
// the collection is empty but well-formed.
func HandleFeaturedCollection(rt *activitypub.Runtime, c *gin.Context, handle string) {
	serveCollection(rt, c, rt.Conf.FeaturedUri(handle), []interface{}{})
}
