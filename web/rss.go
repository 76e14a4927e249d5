package web

import (
	"errors"
	"fmt"
	"time"

	"github.com/fedipress/fedipress/activitypub"
	"github.com/fedipress/fedipress/util"
	"github.com/gorilla/feeds"
)

// RSS/Atom feeds of an actor's published content, built from the outbox.
// NodeInfo advertises these as the outbound services.

func buildFeed(rt *activitypub.Runtime, handle string) (*feeds.Feed, error) {
	if !activitypub.LocalUserExists(rt, handle) {
		return nil, errors.New("unknown user")
	}

	err, entries := activitypub.GetOutbox(rt, handle)
	if err != nil {
		return nil, err
	}

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s - %s", util.Name, handle),
		Link:        &feeds.Link{Href: rt.Conf.ProfileUrl(handle)},
		Description: fmt.Sprintf("posts by %s", handle),
		Author:      &feeds.Author{Name: handle, Email: fmt.Sprintf("%s@%s", handle, rt.Conf.InstanceDomain())},
		Created:     time.Now(),
	}

	var feedItems []*feeds.Item
	for _, entry := range entries {
		if entry.Type != "Create" {
			continue
		}
		title := entry.Name
		if title == "" {
			title = entry.Published.Format("2006-01-02 15:04:05")
		}
		feedItems = append(feedItems,
			&feeds.Item{
				Id:      entry.ObjectId,
				Title:   title,
				Link:    &feeds.Link{Href: entry.ObjectId},
				Content: entry.Content,
				Author:  feed.Author,
				Created: entry.Published,
			})
	}

	feed.Items = feedItems
	return feed, nil
}

// GetRSS renders an actor's outbox as RSS 2.0.
func GetRSS(rt *activitypub.Runtime, handle string) (string, error) {
	feed, err := buildFeed(rt, handle)
	if err != nil {
		rt.Log.Warnf("Feed: Could not build feed for %s: %v", handle, err)
		return "", err
	}
	return feed.ToRss()
}

// GetAtom renders an actor's outbox as Atom 1.0.
func GetAtom(rt *activitypub.Runtime, handle string) (string, error) {
	feed, err := buildFeed(rt, handle)
	if err != nil {
		rt.Log.Warnf("Feed: Could not build feed for %s: %v", handle, err)
		return "", err
	}
	return feed.ToAtom()
}
