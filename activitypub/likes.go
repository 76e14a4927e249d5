package activitypub

import (
	"fmt"

	"github.com/fedipress/fedipress/domain"
	"github.com/fedipress/fedipress/store"
	"github.com/google/uuid"
)

// Inbound Like/Announce records are keyed by the activity id, so a replayed
// activity is a no-op. Counters are scans filtered by objectId.

// RecordLike persists an inbound Like once. Returns false when the activity
// id was already recorded.
func RecordLike(rt *Runtime, like domain.LikeRecord) (bool, error) {
	var existing domain.LikeRecord
	if err := rt.Store.Get(store.NsLikes, like.ActivityId, &existing); err == nil {
		return false, nil
	}

	if like.Id == "" {
		like.Id = uuid.New().String()
	}
	if like.At.IsZero() {
		like.At = rt.Now()
	}

	if err := rt.Store.Put(store.NsLikes, like.ActivityId, &like); err != nil {
		return false, fmt.Errorf("failed to store like %s: %w", like.ActivityId, err)
	}
	return true, nil
}

// DeleteLike removes a Like by the original activity id (Undo Like). The
// delete only applies when actorUri matches the stored record.
func DeleteLike(rt *Runtime, activityId, actorUri string) error {
	var existing domain.LikeRecord
	if err := rt.Store.Get(store.NsLikes, activityId, &existing); err != nil {
		return nil // already gone, Undo is idempotent
	}
	if actorUri != "" && existing.ActorUri != actorUri {
		return nil
	}
	return rt.Store.Delete(store.NsLikes, activityId)
}

// GetLikeCount counts likes of an object.
func GetLikeCount(rt *Runtime, objectId string) (int, error) {
	keys, err := rt.Store.List(store.NsLikes)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, key := range keys {
		var like domain.LikeRecord
		if err := rt.Store.Get(store.NsLikes, key, &like); err != nil {
			continue
		}
		if like.ObjectId == objectId {
			count++
		}
	}
	return count, nil
}

// RecordAnnounce persists an inbound Announce once.
func RecordAnnounce(rt *Runtime, announce domain.AnnounceRecord) (bool, error) {
	var existing domain.AnnounceRecord
	if err := rt.Store.Get(store.NsAnnounces, announce.ActivityId, &existing); err == nil {
		return false, nil
	}

	if announce.Id == "" {
		announce.Id = uuid.New().String()
	}
	if announce.At.IsZero() {
		announce.At = rt.Now()
	}

	if err := rt.Store.Put(store.NsAnnounces, announce.ActivityId, &announce); err != nil {
		return false, fmt.Errorf("failed to store announce %s: %w", announce.ActivityId, err)
	}
	return true, nil
}

// DeleteAnnounce removes an Announce by the original activity id.
func DeleteAnnounce(rt *Runtime, activityId, actorUri string) error {
	var existing domain.AnnounceRecord
	if err := rt.Store.Get(store.NsAnnounces, activityId, &existing); err != nil {
		return nil
	}
	if actorUri != "" && existing.ActorUri != actorUri {
		return nil
	}
	return rt.Store.Delete(store.NsAnnounces, activityId)
}

// GetAnnounceCount counts boosts of an object.
func GetAnnounceCount(rt *Runtime, objectId string) (int, error) {
	keys, err := rt.Store.List(store.NsAnnounces)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, key := range keys {
		var announce domain.AnnounceRecord
		if err := rt.Store.Get(store.NsAnnounces, key, &announce); err != nil {
			continue
		}
		if announce.ObjectId == objectId {
			count++
		}
	}
	return count, nil
}

// RecordOutgoingLike remembers a Like this instance sent, per sender.
func RecordOutgoingLike(rt *Runtime, handle string, like domain.OutgoingLike) error {
	unlock := rt.Locks.Lock(store.NsOutgoingLikes, handle)
	defer unlock()

	var likes []domain.OutgoingLike
	err := rt.Store.Get(store.NsOutgoingLikes, handle, &likes)
	if err != nil && err != store.ErrNotFound {
		return err
	}

	for _, l := range likes {
		if l.ObjectId == like.ObjectId {
			return nil
		}
	}
	likes = append(likes, like)
	return rt.Store.Put(store.NsOutgoingLikes, handle, likes)
}

// GetOutgoingLikes returns every Like a sender has sent.
func GetOutgoingLikes(rt *Runtime, handle string) (error, []domain.OutgoingLike) {
	var likes []domain.OutgoingLike
	err := rt.Store.Get(store.NsOutgoingLikes, handle, &likes)
	if err != nil && err != store.ErrNotFound {
		return err, nil
	}
	return nil, likes
}

// FindOutgoingLike returns the outgoing Like of an object, or nil.
func FindOutgoingLike(rt *Runtime, handle, objectId string) (error, *domain.OutgoingLike) {
	var likes []domain.OutgoingLike
	err := rt.Store.Get(store.NsOutgoingLikes, handle, &likes)
	if err != nil && err != store.ErrNotFound {
		return err, nil
	}
	for i := range likes {
		if likes[i].ObjectId == objectId {
			return nil, &likes[i]
		}
	}
	return nil, nil
}

// RemoveOutgoingLike forgets an outgoing Like (after Undo).
func RemoveOutgoingLike(rt *Runtime, handle, objectId string) error {
	unlock := rt.Locks.Lock(store.NsOutgoingLikes, handle)
	defer unlock()

	var likes []domain.OutgoingLike
	err := rt.Store.Get(store.NsOutgoingLikes, handle, &likes)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return err
	}

	kept := likes[:0]
	for _, l := range likes {
		if l.ObjectId != objectId {
			kept = append(kept, l)
		}
	}
	return rt.Store.Put(store.NsOutgoingLikes, handle, kept)
}

// RecordOutgoingAnnounce remembers an Announce this instance sent.
func RecordOutgoingAnnounce(rt *Runtime, handle string, announce domain.OutgoingAnnounce) error {
	unlock := rt.Locks.Lock(store.NsOutgoingAnnounces, handle)
	defer unlock()

	var announces []domain.OutgoingAnnounce
	err := rt.Store.Get(store.NsOutgoingAnnounces, handle, &announces)
	if err != nil && err != store.ErrNotFound {
		return err
	}

	for _, a := range announces {
		if a.ObjectId == announce.ObjectId {
			return nil
		}
	}
	announces = append(announces, announce)
	return rt.Store.Put(store.NsOutgoingAnnounces, handle, announces)
}

// RemoveOutgoingAnnounce forgets an outgoing Announce (after Undo).
func RemoveOutgoingAnnounce(rt *Runtime, handle, objectId string) error {
	unlock := rt.Locks.Lock(store.NsOutgoingAnnounces, handle)
	defer unlock()

	var announces []domain.OutgoingAnnounce
	err := rt.Store.Get(store.NsOutgoingAnnounces, handle, &announces)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return err
	}

	kept := announces[:0]
	for _, a := range announces {
		if a.ObjectId != objectId {
			kept = append(kept, a)
		}
	}
	return rt.Store.Put(store.NsOutgoingAnnounces, handle, kept)
}
