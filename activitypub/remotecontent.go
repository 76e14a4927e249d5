package activitypub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fedipress/fedipress/domain"
	"github.com/fedipress/fedipress/store"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

// The remote-content mirror keeps a per-local-actor copy of objects
// delivered via Create. Update rewrites the object in place; Delete
// soft-deletes it behind a Tombstone, keeping the row.

var contentPolicy = bluemonday.UGCPolicy()

func remoteContentNs(handle string) string {
	return store.NsRemoteContent + "/" + handle
}

// sanitizeObjectContent runs the object's HTML content and summary through
// the UGC sanitizer before the object is stored.
func sanitizeObjectContent(raw json.RawMessage) json.RawMessage {
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw
	}

	changed := false
	if content, ok := obj["content"].(string); ok {
		obj["content"] = contentPolicy.Sanitize(content)
		changed = true
	}
	if summary, ok := obj["summary"].(string); ok {
		obj["summary"] = contentPolicy.Sanitize(summary)
		changed = true
	}
	if !changed {
		return raw
	}

	cleaned, err := json.Marshal(obj)
	if err != nil {
		return raw
	}
	return cleaned
}

// StoreRemoteContent persists a mirrored object. Returns false when the
// Create activity was already mirrored; the per-actor lock keeps a replayed
// delivery from racing the dedupe scan.
func StoreRemoteContent(rt *Runtime, handle string, record domain.RemoteContent) (bool, error) {
	unlock := rt.Locks.Lock(store.NsRemoteContent, handle)
	defer unlock()

	ns := remoteContentNs(handle)

	keys, err := rt.Store.List(ns)
	if err != nil {
		return false, err
	}
	for _, key := range keys {
		var existing domain.RemoteContent
		if err := rt.Store.Get(ns, key, &existing); err != nil {
			continue
		}
		if existing.ActivityId == record.ActivityId {
			return false, nil
		}
	}

	if record.Id == "" {
		record.Id = uuid.New().String()
	}
	if record.ReceivedAt.IsZero() {
		record.ReceivedAt = rt.Now()
	}
	record.Object = sanitizeObjectContent(record.Object)

	if err := rt.Store.Put(ns, record.Id, &record); err != nil {
		return false, fmt.Errorf("failed to mirror remote content %s: %w", record.ObjectId, err)
	}
	return true, nil
}

// FindRemoteContent locates a mirrored record by objectId, or nil.
func FindRemoteContent(rt *Runtime, handle, objectId string) (error, *domain.RemoteContent) {
	ns := remoteContentNs(handle)

	keys, err := rt.Store.List(ns)
	if err != nil {
		return err, nil
	}
	for _, key := range keys {
		var record domain.RemoteContent
		if err := rt.Store.Get(ns, key, &record); err != nil {
			continue
		}
		if record.ObjectId == objectId {
			return nil, &record
		}
	}
	return nil, nil
}

// ListRemoteContent returns all mirrored records for a local actor.
func ListRemoteContent(rt *Runtime, handle string) (error, []domain.RemoteContent) {
	ns := remoteContentNs(handle)

	keys, err := rt.Store.List(ns)
	if err != nil {
		return err, nil
	}

	var records []domain.RemoteContent
	for _, key := range keys {
		var record domain.RemoteContent
		if err := rt.Store.Get(ns, key, &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return nil, records
}

// UpdateRemoteContent replaces a mirrored object after an inbound Update.
// No-op when the object was never mirrored.
func UpdateRemoteContent(rt *Runtime, handle, objectId, updateActivityId string, object json.RawMessage) error {
	unlock := rt.Locks.Lock(store.NsRemoteContent, handle)
	defer unlock()

	err, record := FindRemoteContent(rt, handle, objectId)
	if err != nil || record == nil {
		return err
	}

	now := rt.Now()
	record.Object = sanitizeObjectContent(object)
	record.UpdatedAt = &now
	record.UpdateActivityId = updateActivityId

	return rt.Store.Put(remoteContentNs(handle), record.Id, record)
}

// DeleteRemoteContent soft-deletes a mirrored object: the row stays, marked
// deleted, with the object replaced by a Tombstone carrying formerType.
func DeleteRemoteContent(rt *Runtime, handle, objectId string) error {
	unlock := rt.Locks.Lock(store.NsRemoteContent, handle)
	defer unlock()

	err, record := FindRemoteContent(rt, handle, objectId)
	if err != nil || record == nil {
		return err
	}
	if record.Deleted {
		return nil
	}

	now := rt.Now()
	tombstone := domain.Tombstone(objectId, record.ObjectType, now.UTC().Format(time.RFC3339))

	record.Deleted = true
	record.DeletedAt = &now
	record.Object = domain.MustMarshal(tombstone)

	return rt.Store.Put(remoteContentNs(handle), record.Id, record)
}
