package domain

import (
	"encoding/json"
	"time"
)

// Records persisted by this instance. One JSON document per record, laid out
// under the activitypubDir (or one row per record on the sqlite backend).

// SocialLinks are the profile links rendered as PropertyValue attachments.
type SocialLinks struct {
	Twitter  string `json:"twitter,omitempty"`
	Github   string `json:"github,omitempty"`
	Linkedin string `json:"linkedin,omitempty"`
	Mastodon string `json:"mastodon,omitempty"` // full URL
	Website  string `json:"website,omitempty"`
}

// StoredActor is the private, server-side record of a local actor. The
// private key never leaves this record.
type StoredActor struct {
	Handle        string      `json:"handle"`
	DisplayName   string      `json:"displayName,omitempty"`
	Bio           string      `json:"bio,omitempty"`
	AvatarUrl     string      `json:"avatarUrl,omitempty"`
	BannerUrl     string      `json:"bannerUrl,omitempty"`
	Links         SocialLinks `json:"links,omitempty"`
	Discoverable  bool        `json:"discoverable"`
	ActorType     string      `json:"actorType,omitempty"` // Person unless set
	PublicKeyId   string      `json:"publicKeyId"`
	PublicKeyPem  string      `json:"publicKeyPem"`
	PrivateKeyPem string      `json:"privateKeyPem"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// StoredGroup is the Group actor variant, carrying the Lemmy moderation
// extensions.
type StoredGroup struct {
	Handle                  string    `json:"handle"`
	DisplayName             string    `json:"displayName,omitempty"`
	Summary                 string    `json:"summary,omitempty"`
	Nsfw                    bool      `json:"nsfw"`
	PostingRestrictedToMods bool      `json:"postingRestrictedToMods"`
	ModeratorHandles        []string  `json:"moderatorHandles,omitempty"`
	PublicKeyId             string    `json:"publicKeyId"`
	PublicKeyPem            string    `json:"publicKeyPem"`
	PrivateKeyPem           string    `json:"privateKeyPem"`
	CreatedAt               time.Time `json:"createdAt"`
	UpdatedAt               time.Time `json:"updatedAt"`
}

// Follow status values. Following rows only ever hold pending or accepted.
const (
	FollowPending  = "pending"
	FollowAccepted = "accepted"
	FollowRejected = "rejected"
	FollowBlocked  = "blocked"
)

// Follower is a remote actor following a local one.
type Follower struct {
	ActorUri    string    `json:"actorUri"`
	Handle      string    `json:"handle"`
	Domain      string    `json:"domain"`
	DisplayName string    `json:"displayName,omitempty"`
	AvatarUrl   string    `json:"avatarUrl,omitempty"`
	FollowedAt  time.Time `json:"followedAt"`
	Status      string    `json:"status"`
	ActivityId  string    `json:"activityId,omitempty"` // the Follow that created the row
}

// Following is a remote actor a local one follows.
type Following struct {
	ActorUri   string    `json:"actorUri"`
	Handle     string    `json:"handle"`
	Domain     string    `json:"domain"`
	FollowedAt time.Time `json:"followedAt"`
	Status     string    `json:"status"`
	ActivityId string    `json:"activityId,omitempty"` // our outbound Follow
}

// LikeRecord is an inbound Like, keyed by the Like activity id.
type LikeRecord struct {
	Id          string    `json:"id"`
	ActivityId  string    `json:"activityId"`
	ActorUri    string    `json:"actorUri"`
	ActorHandle string    `json:"actorHandle,omitempty"`
	ObjectId    string    `json:"objectId"`
	At          time.Time `json:"at"`
}

// AnnounceRecord is an inbound Announce (boost), keyed by activity id.
type AnnounceRecord struct {
	Id          string    `json:"id"`
	ActivityId  string    `json:"activityId"`
	ActorUri    string    `json:"actorUri"`
	ActorHandle string    `json:"actorHandle,omitempty"`
	ObjectId    string    `json:"objectId"`
	At          time.Time `json:"at"`
}

// OutgoingLike remembers a Like this instance sent, so it can be undone.
type OutgoingLike struct {
	ActivityId string    `json:"activityId"`
	ObjectId   string    `json:"objectId"`
	At         time.Time `json:"at"`
}

// OutgoingAnnounce remembers an Announce this instance sent.
type OutgoingAnnounce struct {
	ActivityId string    `json:"activityId"`
	ObjectId   string    `json:"objectId"`
	At         time.Time `json:"at"`
}

// Notification types.
const (
	NotifyFollow         = "follow"
	NotifyFollowAccepted = "follow_accepted"
	NotifyFollowRejected = "follow_rejected"
	NotifyLike           = "like"
	NotifyAnnounce       = "announce"
	NotifyMention        = "mention"
	NotifyReply          = "reply"
)

// NotificationCap bounds the per-actor notification list; older entries are
// dropped from the tail.
const NotificationCap = 100

// Notification is a per-local-actor event entry, newest first.
type Notification struct {
	Id          string    `json:"id"`
	Type        string    `json:"type"`
	ActorUri    string    `json:"actorUri"`
	ActorHandle string    `json:"actorHandle,omitempty"`
	ActorName   string    `json:"actorName,omitempty"`
	ActorAvatar string    `json:"actorAvatar,omitempty"`
	TargetUri   string    `json:"targetUri,omitempty"`
	ActivityId  string    `json:"activityId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	Read        bool      `json:"read"`
	Content     string    `json:"content,omitempty"`
}

// RemoteContent mirrors a remote object delivered via Create. Delete marks it
// soft-deleted and swaps the object for a Tombstone; Update replaces the
// object in place.
type RemoteContent struct {
	Id               string          `json:"id"`
	ActivityId       string          `json:"activityId"`
	ObjectId         string          `json:"objectId"`
	ObjectType       string          `json:"objectType"`
	ActorUri         string          `json:"actorUri"`
	ActorHandle      string          `json:"actorHandle,omitempty"`
	Object           json.RawMessage `json:"object"`
	ReceivedAt       time.Time       `json:"receivedAt"`
	Published        string          `json:"published,omitempty"`
	UpdatedAt        *time.Time      `json:"updatedAt,omitempty"`
	UpdateActivityId string          `json:"updateActivityId,omitempty"`
	Deleted          bool            `json:"deleted,omitempty"`
	DeletedAt        *time.Time      `json:"deletedAt,omitempty"`
}

// Delivery task statuses.
const (
	DeliveryPending    = "pending"
	DeliveryDelivering = "delivering"
	DeliveryDelivered  = "delivered"
	DeliveryFailed     = "failed"
)

// DeliveryRecipient is the per-recipient slice of a task. Delivered
// recipients are not re-POSTed on retry.
type DeliveryRecipient struct {
	Url       string `json:"url"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// DeliveryTask is one queued outbound activity.
type DeliveryTask struct {
	Id           string              `json:"id"`
	Activity     json.RawMessage     `json:"activity"`
	Recipients   []DeliveryRecipient `json:"recipients"`
	RetryCount   int                 `json:"retryCount"`
	NextRetryAt  time.Time           `json:"nextRetryAt"`
	Status       string              `json:"status"`
	Error        string              `json:"error,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
	SenderHandle string              `json:"senderHandle,omitempty"`
}

// CachedKey is a fetched remote public key with its expiry window.
type CachedKey struct {
	Id           string    `json:"id"` // full keyId URI
	Owner        string    `json:"owner"`
	PublicKeyPem string    `json:"publicKeyPem"`
	CachedAt     time.Time `json:"cachedAt"`
	TtlSeconds   int       `json:"ttl"`
}

// Expired reports whether the entry has outlived its ttl at the given time.
func (k *CachedKey) Expired(now time.Time) bool {
	return now.Sub(k.CachedAt) > time.Duration(k.TtlSeconds)*time.Second
}

// OutboxEntry is one activity in a local actor's outbox, newest first.
type OutboxEntry struct {
	ActivityId string          `json:"activityId"`
	Type       string          `json:"type"`
	ObjectId   string          `json:"objectId,omitempty"`
	ObjectType string          `json:"objectType,omitempty"`
	Name       string          `json:"name,omitempty"`
	Content    string          `json:"content,omitempty"`
	Published  time.Time       `json:"published"`
	Raw        json.RawMessage `json:"raw"`
}

// Content is the internal content record handed over by the content store
// for conversion to ActivityStreams.
type Content struct {
	Slug         string      `json:"slug"`
	Type         string      `json:"type"` // blog, note, product, profile, event, program, video, image, document
	Content      string      `json:"content,omitempty"`
	Visibility   string      `json:"visibility,omitempty"`
	PublishedAt  *time.Time  `json:"publishedAt,omitempty"`
	UpdatedAt    *time.Time  `json:"updatedAt,omitempty"`
	AuthorHandle string      `json:"authorHandle"`
	Frontmatter  Frontmatter `json:"frontmatter,omitempty"`

	// note extras
	SpoilerText string `json:"spoilerText,omitempty"`
	Sensitive   bool   `json:"sensitive,omitempty"`
	InReplyTo   string `json:"inReplyTo,omitempty"`

	// event extras
	StartDateTime string `json:"startDateTime,omitempty"`
	StartDate     string `json:"startDate,omitempty"`
	Date          string `json:"date,omitempty"`
	EndDateTime   string `json:"endDateTime,omitempty"`
	LocationName  string `json:"locationName,omitempty"`

	// video extras
	Url          string `json:"url,omitempty"`
	EmbedUrl     string `json:"embedUrl,omitempty"`
	DurationSecs int    `json:"durationSecs,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	ThumbnailUrl string `json:"thumbnailUrl,omitempty"`
}

// Frontmatter is the parsed metadata block of a content record.
type Frontmatter struct {
	Title         string   `json:"title,omitempty"`
	Excerpt       string   `json:"excerpt,omitempty"`
	Description   string   `json:"description,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	FeaturedImage string   `json:"featuredImage,omitempty"`
	NoFederate    bool     `json:"noFederate,omitempty"`
}
