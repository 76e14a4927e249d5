package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/fedipress/fedipress/domain"
	"github.com/fedipress/fedipress/store"
	"github.com/fedipress/fedipress/util"
)

// actorContext is the JSON-LD context of every actor document this instance
// serves. The toot/schema terms cover the Mastodon profile extensions.
func actorContext() []interface{} {
	return []interface{}{
		domain.ContextActivityStreams,
		domain.ContextSecurity,
		map[string]interface{}{
			"toot":                      "http://joinmastodon.org/ns#",
			"discoverable":              "toot:discoverable",
			"indexable":                 "toot:indexable",
			"featured":                  "toot:featured",
			"manuallyApprovesFollowers": "as:manuallyApprovesFollowers",
			"PropertyValue":             "schema:PropertyValue",
			"schema":                    "http://schema.org/#",
		},
	}
}

// EnsureActor returns the stored record for a local handle, creating it with
// a fresh keypair on first use. Existing records are returned unchanged, so
// keys are always reused; profile fields are taken from the resolveUser
// callback only when the record is first created.
func EnsureActor(rt *Runtime, handle string) (error, *domain.StoredActor) {
	unlock := rt.Locks.Lock(store.NsActors, handle)
	defer unlock()

	var stored domain.StoredActor
	err := rt.Store.Get(store.NsActors, handle, &stored)
	if err == nil {
		return nil, &stored
	}
	if err != store.ErrNotFound {
		return fmt.Errorf("failed to read actor %s: %w", handle, err), nil
	}

	var resolved *util.ResolvedUser
	if rt.Conf.ResolveUser != nil {
		resolved = rt.Conf.ResolveUser(handle)
		if resolved == nil {
			return domain.NotFoundError("unknown user %s", handle), nil
		}
	}

	keypair, err := util.GeneratePemKeypair()
	if err != nil {
		return fmt.Errorf("failed to generate keypair for %s: %w", handle, err), nil
	}

	now := rt.Now()
	stored = domain.StoredActor{
		Handle:        handle,
		Discoverable:  true,
		ActorType:     "Person",
		PublicKeyId:   rt.Conf.ActorUri(handle) + "#main-key",
		PublicKeyPem:  keypair.Public,
		PrivateKeyPem: keypair.Private,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if resolved != nil {
		stored.DisplayName = resolved.DisplayName
		stored.Bio = resolved.Bio
		stored.AvatarUrl = resolved.AvatarURL
	}

	if err := rt.Store.Put(store.NsActors, handle, &stored); err != nil {
		return fmt.Errorf("failed to store actor %s: %w", handle, err), nil
	}

	rt.Log.Infof("Actors: Created actor %s with key %s", handle, stored.PublicKeyId)
	return nil, &stored
}

// ReadActor reads a stored local actor, without creating one.
func ReadActor(rt *Runtime, handle string) (error, *domain.StoredActor) {
	var stored domain.StoredActor
	if err := rt.Store.Get(store.NsActors, handle, &stored); err != nil {
		if err == store.ErrNotFound {
			return domain.NotFoundError("unknown user %s", handle), nil
		}
		return err, nil
	}
	return nil, &stored
}

// UpdateActorProfile applies profile edits, keeping the existing key pair.
func UpdateActorProfile(rt *Runtime, handle string, mutate func(*domain.StoredActor)) (error, *domain.StoredActor) {
	err, stored := EnsureActor(rt, handle)
	if err != nil {
		return err, nil
	}

	unlock := rt.Locks.Lock(store.NsActors, handle)
	defer unlock()

	mutate(stored)
	stored.Handle = handle
	stored.UpdatedAt = rt.Now()

	if err := rt.Store.Put(store.NsActors, handle, stored); err != nil {
		return fmt.Errorf("failed to update actor %s: %w", handle, err), nil
	}
	return nil, stored
}

// ListLocalActorHandles returns the handles of all stored local actors.
func ListLocalActorHandles(rt *Runtime) (error, []string) {
	handles, err := rt.Store.List(store.NsActors)
	if err != nil {
		return err, nil
	}
	return nil, handles
}

// LocalUserExists reports whether a handle is known, consulting the actor
// store first and the resolveUser callback second.
func LocalUserExists(rt *Runtime, handle string) bool {
	var stored domain.StoredActor
	if err := rt.Store.Get(store.NsActors, handle, &stored); err == nil {
		return true
	}
	if rt.Conf.ResolveUser != nil {
		return rt.Conf.ResolveUser(handle) != nil
	}
	return false
}

// BuildActorDocument renders the public JSON-LD document for a stored actor.
// The private key never appears here.
func BuildActorDocument(rt *Runtime, stored *domain.StoredActor) *domain.Actor {
	handle := stored.Handle
	actorUri := rt.Conf.ActorUri(handle)

	actorType := stored.ActorType
	if actorType == "" {
		actorType = "Person"
	}

	name := stored.DisplayName
	if name == "" {
		name = handle
	}

	actor := &domain.Actor{
		Context:                   actorContext(),
		Id:                        actorUri,
		Type:                      actorType,
		PreferredUsername:         handle,
		Name:                      name,
		Summary:                   stored.Bio,
		Inbox:                     rt.Conf.InboxUri(handle),
		Outbox:                    rt.Conf.OutboxUri(handle),
		Following:                 rt.Conf.FollowingUri(handle),
		Followers:                 rt.Conf.FollowersUri(handle),
		Liked:                     rt.Conf.LikedUri(handle),
		Featured:                  rt.Conf.FeaturedUri(handle),
		Url:                       rt.Conf.ProfileUrl(handle),
		Discoverable:              stored.Discoverable,
		Indexable:                 stored.Discoverable,
		ManuallyApprovesFollowers: !rt.Conf.Conf.AutoApproveFollows,
		Attachment:                propertyValueAttachments(stored.Links),
		Endpoints:                 &domain.Endpoints{SharedInbox: rt.Conf.SharedInboxUri()},
		PublicKey: &domain.PublicKey{
			Id:           stored.PublicKeyId,
			Owner:        actorUri,
			PublicKeyPem: stored.PublicKeyPem,
		},
	}

	if stored.AvatarUrl != "" {
		actor.Icon = &domain.Image{Type: "Image", Url: stored.AvatarUrl}
	}
	if stored.BannerUrl != "" {
		actor.ImageField = &domain.Image{Type: "Image", Url: stored.BannerUrl}
	}

	return actor
}

func propertyValue(name, href string) domain.Attachment {
	return domain.Attachment{
		Type:  "PropertyValue",
		Name:  name,
		Value: fmt.Sprintf(`<a href="%s" rel="me nofollow noreferrer" target="_blank">%s</a>`, href, href),
	}
}

// propertyValueAttachments renders social links as Mastodon-style profile
// fields. Twitter/GitHub/LinkedIn take bare handles; Mastodon and Website
// take full URLs.
func propertyValueAttachments(links domain.SocialLinks) []domain.Attachment {
	var attachments []domain.Attachment

	if links.Twitter != "" {
		attachments = append(attachments, propertyValue("Twitter", "https://twitter.com/"+links.Twitter))
	}
	if links.Github != "" {
		attachments = append(attachments, propertyValue("GitHub", "https://github.com/"+links.Github))
	}
	if links.Linkedin != "" {
		attachments = append(attachments, propertyValue("LinkedIn", "https://www.linkedin.com/in/"+links.Linkedin))
	}
	if links.Mastodon != "" {
		attachments = append(attachments, propertyValue("Mastodon", links.Mastodon))
	}
	if links.Website != "" {
		attachments = append(attachments, propertyValue("Website", links.Website))
	}

	return attachments
}

// FetchRemoteActor dereferences a remote actor document.
func FetchRemoteActor(rt *Runtime, actorUri string) (*domain.Actor, error) {
	req, err := http.NewRequest(http.MethodGet, actorUri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", `application/activity+json, application/ld+json; profile="https://www.w3.org/ns/activitystreams"`)
	req.Header.Set("User-Agent", util.UserAgent())

	resp, err := rt.Client.Do(req)
	if err != nil {
		return nil, domain.DeliveryError("actor fetch failed for %s: %v", actorUri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.DeliveryError("actor fetch for %s returned status %d", actorUri, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var actor domain.Actor
	if err := json.Unmarshal(body, &actor); err != nil {
		return nil, fmt.Errorf("failed to parse actor JSON: %w", err)
	}

	if actor.Id == "" || actor.Inbox == "" {
		return nil, domain.BadRequestError("actor document %s missing required fields", actorUri)
	}

	return &actor, nil
}

// ResolveInbox resolves the inbox URL for a recipient URI. When the
// recipient is not a dereferenceable actor, the conventional shared inbox at
// the recipient's origin is used instead.
func ResolveInbox(rt *Runtime, recipientUri string) (string, error) {
	actor, err := FetchRemoteActor(rt, recipientUri)
	if err == nil {
		return actor.Inbox, nil
	}

	parsed, parseErr := url.Parse(recipientUri)
	if parseErr != nil || parsed.Host == "" {
		return "", err
	}
	return fmt.Sprintf("%s://%s/inbox", parsed.Scheme, parsed.Host), nil
}

// ExtractDomain returns the hostname of an actor URI.
func ExtractDomain(actorUri string) (string, error) {
	parsed, err := url.Parse(actorUri)
	if err != nil {
		return "", fmt.Errorf("invalid actor URI: %w", err)
	}
	return parsed.Host, nil
}

// ExtractHandle guesses the preferred username from common actor URI shapes
// like /users/alice or /@alice.
func ExtractHandle(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	path := parsed.Path
	for len(path) > 0 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	idx := len(path) - 1
	for idx >= 0 && path[idx] != '/' {
		idx--
	}
	segment := path[idx+1:]
	if len(segment) > 0 && segment[0] == '@' {
		segment = segment[1:]
	}
	return segment
}
