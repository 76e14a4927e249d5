package activitypub

import (
	"fmt"

	"github.com/fedipress/fedipress/domain"
	"github.com/fedipress/fedipress/store"
)

// Follower / following lists are one JSON document per local actor, mutated
// read-modify-write under the per-actor lock. Insertion is an upsert by
// actorUri; (localActor, remoteActorUri) stays unique.

func readFollowers(rt *Runtime, handle string) (error, []domain.Follower) {
	var followers []domain.Follower
	err := rt.Store.Get(store.NsFollowers, handle, &followers)
	if err != nil && err != store.ErrNotFound {
		return err, nil
	}
	return nil, followers
}

func readFollowing(rt *Runtime, handle string) (error, []domain.Following) {
	var following []domain.Following
	err := rt.Store.Get(store.NsFollowing, handle, &following)
	if err != nil && err != store.ErrNotFound {
		return err, nil
	}
	return nil, following
}

// GetFollowers returns a local actor's follower rows.
func GetFollowers(rt *Runtime, handle string) (error, []domain.Follower) {
	return readFollowers(rt, handle)
}

// GetFollowing returns the remotes a local actor follows.
func GetFollowing(rt *Runtime, handle string) (error, []domain.Following) {
	return readFollowing(rt, handle)
}

// UpsertFollower inserts or replaces a follower row by actorUri.
func UpsertFollower(rt *Runtime, handle string, follower domain.Follower) error {
	unlock := rt.Locks.Lock(store.NsFollowers, handle)
	defer unlock()

	err, followers := readFollowers(rt, handle)
	if err != nil {
		return err
	}

	replaced := false
	for i := range followers {
		if followers[i].ActorUri == follower.ActorUri {
			followers[i] = follower
			replaced = true
			break
		}
	}
	if !replaced {
		followers = append(followers, follower)
	}

	if err := rt.Store.Put(store.NsFollowers, handle, followers); err != nil {
		return fmt.Errorf("failed to store followers of %s: %w", handle, err)
	}
	return nil
}

// FindFollower returns the follower row for a remote actor URI, or nil.
func FindFollower(rt *Runtime, handle, actorUri string) (error, *domain.Follower) {
	err, followers := readFollowers(rt, handle)
	if err != nil {
		return err, nil
	}
	for i := range followers {
		if followers[i].ActorUri == actorUri {
			return nil, &followers[i]
		}
	}
	return nil, nil
}

func setFollowerStatus(rt *Runtime, handle, actorUri, status string) error {
	unlock := rt.Locks.Lock(store.NsFollowers, handle)
	defer unlock()

	err, followers := readFollowers(rt, handle)
	if err != nil {
		return err
	}

	for i := range followers {
		if followers[i].ActorUri == actorUri {
			followers[i].Status = status
			return rt.Store.Put(store.NsFollowers, handle, followers)
		}
	}
	return domain.NotFoundError("no follower %s for %s", actorUri, handle)
}

// AcceptFollowRequest flips a pending follower to accepted.
func AcceptFollowRequest(rt *Runtime, handle, actorUri string) error {
	return setFollowerStatus(rt, handle, actorUri, domain.FollowAccepted)
}

// RejectFollowRequest flips a follower to rejected. The row is kept so later
// Follow attempts from the same URI stay blocked.
func RejectFollowRequest(rt *Runtime, handle, actorUri string) error {
	return setFollowerStatus(rt, handle, actorUri, domain.FollowRejected)
}

// BlockFollower marks a follower blocked.
func BlockFollower(rt *Runtime, handle, actorUri string) error {
	return setFollowerStatus(rt, handle, actorUri, domain.FollowBlocked)
}

// RemoveFollower deletes a follower row (Undo Follow).
func RemoveFollower(rt *Runtime, handle, actorUri string) error {
	unlock := rt.Locks.Lock(store.NsFollowers, handle)
	defer unlock()

	err, followers := readFollowers(rt, handle)
	if err != nil {
		return err
	}

	kept := followers[:0]
	for _, f := range followers {
		if f.ActorUri != actorUri {
			kept = append(kept, f)
		}
	}
	if len(kept) == len(followers) {
		return nil
	}

	return rt.Store.Put(store.NsFollowers, handle, kept)
}

// GetFollowerUris returns follower actor URIs with the given status, for
// delivery fan-out. Status defaults to accepted.
func GetFollowerUris(rt *Runtime, handle, status string) (error, []string) {
	if status == "" {
		status = domain.FollowAccepted
	}

	err, followers := readFollowers(rt, handle)
	if err != nil {
		return err, nil
	}

	var uris []string
	for _, f := range followers {
		if f.Status == status {
			uris = append(uris, f.ActorUri)
		}
	}
	return nil, uris
}

// UpsertFollowing inserts or replaces a following row by actorUri.
func UpsertFollowing(rt *Runtime, handle string, following domain.Following) error {
	unlock := rt.Locks.Lock(store.NsFollowing, handle)
	defer unlock()

	err, rows := readFollowing(rt, handle)
	if err != nil {
		return err
	}

	replaced := false
	for i := range rows {
		if rows[i].ActorUri == following.ActorUri {
			rows[i] = following
			replaced = true
			break
		}
	}
	if !replaced {
		rows = append(rows, following)
	}

	if err := rt.Store.Put(store.NsFollowing, handle, rows); err != nil {
		return fmt.Errorf("failed to store following of %s: %w", handle, err)
	}
	return nil
}

// AcceptFollowing marks our outbound follow of a remote as accepted.
func AcceptFollowing(rt *Runtime, handle, actorUri string) error {
	unlock := rt.Locks.Lock(store.NsFollowing, handle)
	defer unlock()

	err, rows := readFollowing(rt, handle)
	if err != nil {
		return err
	}

	for i := range rows {
		if rows[i].ActorUri == actorUri {
			rows[i].Status = domain.FollowAccepted
			return rt.Store.Put(store.NsFollowing, handle, rows)
		}
	}
	return domain.NotFoundError("no following row %s for %s", actorUri, handle)
}

// RemoveFollowing deletes a following row (Reject, or our own Undo Follow).
func RemoveFollowing(rt *Runtime, handle, actorUri string) error {
	unlock := rt.Locks.Lock(store.NsFollowing, handle)
	defer unlock()

	err, rows := readFollowing(rt, handle)
	if err != nil {
		return err
	}

	kept := rows[:0]
	for _, f := range rows {
		if f.ActorUri != actorUri {
			kept = append(kept, f)
		}
	}
	if len(kept) == len(rows) {
		return nil
	}

	return rt.Store.Put(store.NsFollowing, handle, kept)
}

// FindFollowing returns the following row for a remote actor URI, or nil.
func FindFollowing(rt *Runtime, handle, actorUri string) (error, *domain.Following) {
	err, rows := readFollowing(rt, handle)
	if err != nil {
		return err, nil
	}
	for i := range rows {
		if rows[i].ActorUri == actorUri {
			return nil, &rows[i]
		}
	}
	return nil, nil
}

// IsFollowing reports whether handle follows the remote actor with an
// accepted status.
func IsFollowing(rt *Runtime, handle, actorUri string) bool {
	err, row := FindFollowing(rt, handle, actorUri)
	return err == nil && row != nil && row.Status == domain.FollowAccepted
}
