package domain

import (
	"encoding/json"
	"fmt"
)

// ActivityStreams / ActivityPub wire types. Top-level documents always carry
// @context; nested objects omit it.

const (
	ContextActivityStreams = "https://www.w3.org/ns/activitystreams"
	ContextSecurity        = "https://w3id.org/security/v1"
)

// Activity is the immutable envelope every federated message travels in.
// Object is either a URI string, an embedded object, or a list.
type Activity struct {
	Context    interface{} `json:"@context,omitempty"`
	Id         string      `json:"id"`
	Type       string      `json:"type"`
	Actor      interface{} `json:"actor"`
	Object     interface{} `json:"object,omitempty"`
	Target     interface{} `json:"target,omitempty"`
	Origin     interface{} `json:"origin,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	Instrument interface{} `json:"instrument,omitempty"`
	Published  string      `json:"published,omitempty"`
	To         []string    `json:"to,omitempty"`
	Cc         []string    `json:"cc,omitempty"`
	Bto        []string    `json:"bto,omitempty"`
	Bcc        []string    `json:"bcc,omitempty"`
}

// ActorUri returns the actor reference as a URI, unwrapping an embedded
// actor object to its id.
func (a *Activity) ActorUri() string {
	switch actor := a.Actor.(type) {
	case string:
		return actor
	case map[string]interface{}:
		if id, ok := actor["id"].(string); ok {
			return id
		}
	}
	return ""
}

// ObjectUri returns the object reference as a URI. Embedded objects are
// unwrapped to their id; lists yield the first resolvable entry.
func (a *Activity) ObjectUri() string {
	return refUri(a.Object)
}

// EmbeddedObject returns the object as a generic map when it is embedded,
// nil when it is a bare URI reference.
func (a *Activity) EmbeddedObject() map[string]interface{} {
	if obj, ok := a.Object.(map[string]interface{}); ok {
		return obj
	}
	return nil
}

func refUri(ref interface{}) string {
	switch v := ref.(type) {
	case string:
		return v
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			return id
		}
	case []interface{}:
		for _, entry := range v {
			if uri := refUri(entry); uri != "" {
				return uri
			}
		}
	}
	return ""
}

// activity types that cannot stand without an object
var objectRequired = map[string]bool{
	"Create":   true,
	"Update":   true,
	"Delete":   true,
	"Like":     true,
	"Announce": true,
	"Follow":   true,
	"Accept":   true,
	"Reject":   true,
	"Undo":     true,
}

// ParseActivity decodes and validates an inbound envelope. Missing id, type
// or actor, or a missing object where the type requires one, yields a
// BadRequest error.
func ParseActivity(body []byte) (*Activity, error) {
	var activity Activity
	if err := json.Unmarshal(body, &activity); err != nil {
		return nil, BadRequestError("malformed activity JSON: %v", err)
	}

	if activity.Id == "" || activity.Type == "" || activity.ActorUri() == "" {
		return nil, BadRequestError("activity missing id, type or actor")
	}

	if objectRequired[activity.Type] && activity.Object == nil {
		return nil, BadRequestError("%s activity missing object", activity.Type)
	}

	return &activity, nil
}

// Tag is a Hashtag or Mention entry in an object's tag list.
type Tag struct {
	Type string `json:"type"`
	Href string `json:"href,omitempty"`
	Name string `json:"name,omitempty"`
}

// Attachment covers both media attachments and PropertyValue profile fields.
type Attachment struct {
	Type      string `json:"type"`
	MediaType string `json:"mediaType,omitempty"`
	Url       string `json:"url,omitempty"`
	Name      string `json:"name,omitempty"`
	Value     string `json:"value,omitempty"`
}

// Place is the location of an Event.
type Place struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// ASObject is the common shape of the objects this instance publishes and
// mirrors: Note, Article, Page, Event, Image, Video, Audio, Document,
// Tombstone, Profile.
type ASObject struct {
	Context      interface{}  `json:"@context,omitempty"`
	Id           string       `json:"id"`
	Type         string       `json:"type"`
	AttributedTo string       `json:"attributedTo,omitempty"`
	Published    string       `json:"published,omitempty"`
	Updated      string       `json:"updated,omitempty"`
	To           []string     `json:"to,omitempty"`
	Cc           []string     `json:"cc,omitempty"`
	Url          string       `json:"url,omitempty"`
	Tag          []Tag        `json:"tag,omitempty"`
	Attachment   []Attachment `json:"attachment,omitempty"`
	Content      string       `json:"content,omitempty"`
	Summary      string       `json:"summary,omitempty"`
	Name         string       `json:"name,omitempty"`
	Sensitive    bool         `json:"sensitive,omitempty"`
	InReplyTo    string       `json:"inReplyTo,omitempty"`

	// Event
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
	Location  *Place `json:"location,omitempty"`

	// Video
	Duration string `json:"duration,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`

	// Tombstone
	FormerType string `json:"formerType,omitempty"`
	Deleted    string `json:"deleted,omitempty"`
}

// Tombstone builds the placeholder left behind by a Delete.
func Tombstone(objectId, formerType, deletedAt string) *ASObject {
	return &ASObject{
		Id:         objectId,
		Type:       "Tombstone",
		FormerType: formerType,
		Deleted:    deletedAt,
	}
}

// PublicKey is the actor-attached signing key document.
type PublicKey struct {
	Id           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// Endpoints carries the optional sharedInbox.
type Endpoints struct {
	SharedInbox string `json:"sharedInbox,omitempty"`
}

// Image is an icon or header image on an actor document.
type Image struct {
	Type      string `json:"type"`
	MediaType string `json:"mediaType,omitempty"`
	Url       string `json:"url"`
}

// Actor is the public JSON-LD document of a Person, Group, Organization,
// Application or Service.
type Actor struct {
	Context                   interface{}  `json:"@context,omitempty"`
	Id                        string       `json:"id"`
	Type                      string       `json:"type"`
	PreferredUsername         string       `json:"preferredUsername"`
	Name                      string       `json:"name,omitempty"`
	Summary                   string       `json:"summary,omitempty"`
	Inbox                     string       `json:"inbox"`
	Outbox                    string       `json:"outbox"`
	Following                 string       `json:"following,omitempty"`
	Followers                 string       `json:"followers,omitempty"`
	Liked                     string       `json:"liked,omitempty"`
	Featured                  string       `json:"featured,omitempty"`
	Url                       string       `json:"url,omitempty"`
	Icon                      *Image       `json:"icon,omitempty"`
	ImageField                *Image       `json:"image,omitempty"`
	Discoverable              bool         `json:"discoverable"`
	Indexable                 bool         `json:"indexable"`
	ManuallyApprovesFollowers bool         `json:"manuallyApprovesFollowers"`
	Attachment                []Attachment `json:"attachment,omitempty"`
	Endpoints                 *Endpoints   `json:"endpoints,omitempty"`
	PublicKey                 *PublicKey   `json:"publicKey,omitempty"`

	// Lemmy group extensions
	PostingRestrictedToMods *bool    `json:"postingRestrictedToMods,omitempty"`
	Moderators              []string `json:"moderators,omitempty"`
	GroupSensitive          *bool    `json:"sensitive,omitempty"`
}

// OrderedCollection is the collection envelope for outbox/followers/etc.
type OrderedCollection struct {
	Context      interface{}   `json:"@context,omitempty"`
	Id           string        `json:"id"`
	Type         string        `json:"type"`
	TotalItems   int           `json:"totalItems"`
	First        string        `json:"first,omitempty"`
	OrderedItems []interface{} `json:"orderedItems,omitempty"`
}

// OrderedCollectionPage is one page of an OrderedCollection.
type OrderedCollectionPage struct {
	Context      interface{}   `json:"@context,omitempty"`
	Id           string        `json:"id"`
	Type         string        `json:"type"`
	PartOf       string        `json:"partOf"`
	Next         string        `json:"next,omitempty"`
	Prev         string        `json:"prev,omitempty"`
	OrderedItems []interface{} `json:"orderedItems"`
}

// MustMarshal marshals v to JSON, panicking on error. Only used for values
// built from our own types, which cannot fail to marshal.
func MustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal: %v", err))
	}
	return b
}
