package activitypub

import (
	"fmt"

	"github.com/fedipress/fedipress/domain"
	"github.com/fedipress/fedipress/store"
	"github.com/google/uuid"
)

// Notifications are one list per local actor, newest first, capped at
// domain.NotificationCap. Older entries fall off the tail.

// AddNotification prepends a notification to an actor's list.
func AddNotification(rt *Runtime, handle string, n domain.Notification) error {
	unlock := rt.Locks.Lock(store.NsNotifications, handle)
	defer unlock()

	if n.Id == "" {
		n.Id = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = rt.Now()
	}

	var notifications []domain.Notification
	err := rt.Store.Get(store.NsNotifications, handle, &notifications)
	if err != nil && err != store.ErrNotFound {
		return err
	}

	notifications = append([]domain.Notification{n}, notifications...)
	if len(notifications) > domain.NotificationCap {
		notifications = notifications[:domain.NotificationCap]
	}

	if err := rt.Store.Put(store.NsNotifications, handle, notifications); err != nil {
		return fmt.Errorf("failed to store notifications of %s: %w", handle, err)
	}
	return nil
}

// GetNotifications returns an actor's notifications, newest first.
func GetNotifications(rt *Runtime, handle string) (error, []domain.Notification) {
	var notifications []domain.Notification
	err := rt.Store.Get(store.NsNotifications, handle, &notifications)
	if err != nil && err != store.ErrNotFound {
		return err, nil
	}
	return nil, notifications
}

// MarkNotificationsRead flags all of an actor's notifications read.
func MarkNotificationsRead(rt *Runtime, handle string) error {
	unlock := rt.Locks.Lock(store.NsNotifications, handle)
	defer unlock()

	var notifications []domain.Notification
	err := rt.Store.Get(store.NsNotifications, handle, &notifications)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return err
	}

	for i := range notifications {
		notifications[i].Read = true
	}
	return rt.Store.Put(store.NsNotifications, handle, notifications)
}
