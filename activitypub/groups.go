package activitypub

import (
	"fmt"

	"github.com/fedipress/fedipress/domain"
	"github.com/fedipress/fedipress/store"
	"github.com/fedipress/fedipress/util"
)

// Group actors live under {base}/c/{handle} and carry the Lemmy moderation
// extensions so Lemmy instances can federate with them.

func groupContext() []interface{} {
	return []interface{}{
		domain.ContextActivityStreams,
		domain.ContextSecurity,
		map[string]interface{}{
			"lemmy":                   "https://join-lemmy.org/ns#",
			"postingRestrictedToMods": "lemmy:postingRestrictedToMods",
			"moderators":              "lemmy:moderators",
			"sensitive":               "as:sensitive",
		},
	}
}

// EnsureGroup returns the stored group record for a handle, creating it with
// its own keypair on first use.
func EnsureGroup(rt *Runtime, handle string) (error, *domain.StoredGroup) {
	unlock := rt.Locks.Lock(store.NsGroups, handle)
	defer unlock()

	var stored domain.StoredGroup
	err := rt.Store.Get(store.NsGroups, handle, &stored)
	if err == nil {
		return nil, &stored
	}
	if err != store.ErrNotFound {
		return fmt.Errorf("failed to read group %s: %w", handle, err), nil
	}

	keypair, err := util.GeneratePemKeypair()
	if err != nil {
		return fmt.Errorf("failed to generate keypair for group %s: %w", handle, err), nil
	}

	now := rt.Now()
	stored = domain.StoredGroup{
		Handle:        handle,
		PublicKeyId:   rt.Conf.GroupUri(handle) + "#main-key",
		PublicKeyPem:  keypair.Public,
		PrivateKeyPem: keypair.Private,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := rt.Store.Put(store.NsGroups, handle, &stored); err != nil {
		return fmt.Errorf("failed to store group %s: %w", handle, err), nil
	}

	rt.Log.Infof("Actors: Created group %s with key %s", handle, stored.PublicKeyId)
	return nil, &stored
}

// ReadGroup reads a stored group without creating one.
func ReadGroup(rt *Runtime, handle string) (error, *domain.StoredGroup) {
	var stored domain.StoredGroup
	if err := rt.Store.Get(store.NsGroups, handle, &stored); err != nil {
		if err == store.ErrNotFound {
			return domain.NotFoundError("unknown group %s", handle), nil
		}
		return err, nil
	}
	return nil, &stored
}

// BuildGroupDocument renders the public Group actor document.
func BuildGroupDocument(rt *Runtime, stored *domain.StoredGroup) *domain.Actor {
	handle := stored.Handle
	groupUri := rt.Conf.GroupUri(handle)

	name := stored.DisplayName
	if name == "" {
		name = handle
	}

	moderators := make([]string, 0, len(stored.ModeratorHandles))
	for _, mod := range stored.ModeratorHandles {
		moderators = append(moderators, rt.Conf.ActorUri(mod))
	}

	restricted := stored.PostingRestrictedToMods
	nsfw := stored.Nsfw

	return &domain.Actor{
		Context:                   groupContext(),
		Id:                        groupUri,
		Type:                      "Group",
		PreferredUsername:         handle,
		Name:                      name,
		Summary:                   stored.Summary,
		Inbox:                     groupUri + "/inbox",
		Outbox:                    groupUri + "/outbox",
		Followers:                 groupUri + "/followers",
		Url:                       groupUri,
		Discoverable:              true,
		ManuallyApprovesFollowers: false,
		Endpoints:                 &domain.Endpoints{SharedInbox: rt.Conf.SharedInboxUri()},
		PublicKey: &domain.PublicKey{
			Id:           stored.PublicKeyId,
			Owner:        groupUri,
			PublicKeyPem: stored.PublicKeyPem,
		},
		PostingRestrictedToMods: &restricted,
		Moderators:              moderators,
		GroupSensitive:          &nsfw,
	}
}
