package activitypub

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fedipress/fedipress/domain"
	"github.com/fedipress/fedipress/util"
)

// Conversion from internal content records to ActivityStreams objects, plus
// the addressing and tag rules that go with it.

// asType maps internal content types to ActivityStreams object types.
func asType(contentType string) string {
	switch contentType {
	case "blog", "blog-post":
		return "Article"
	case "note":
		return "Note"
	case "product":
		return "Page"
	case "profile":
		return "Person"
	case "event", "program":
		return "Event"
	case "video":
		return "Video"
	case "image":
		return "Image"
	case "document":
		return "Document"
	default:
		return "Object"
	}
}

// typePath maps internal content types to the URI path segment of the
// object id.
func typePath(contentType string) string {
	switch contentType {
	case "blog", "blog-post":
		return "blog"
	case "note":
		return "notes"
	case "product":
		return "products"
	case "event":
		return "events"
	case "program":
		return "programs"
	case "video":
		return "videos"
	case "profile":
		return "profiles"
	case "image":
		return "images"
	case "document":
		return "docs"
	default:
		return "content"
	}
}

// ObjectUri derives the canonical object id for a content record.
func ObjectUri(conf *util.AppConfig, contentType, slug string) string {
	return fmt.Sprintf("%s/ap/content/%s/%s", conf.BaseUrl(), typePath(contentType), slug)
}

// ActivityUri derives a fresh activity id for a content slug; the epoch-ms
// suffix keeps ids monotone per slug.
func ActivityUri(conf *util.AppConfig, activityType, slug string, now time.Time) string {
	return fmt.Sprintf("%s/ap/activities/%s/%s-%d",
		conf.BaseUrl(), strings.ToLower(activityType), slug, now.UnixMilli())
}

// GetAddressingForVisibility returns the to/cc lists for a visibility level.
// Unknown values fall back to public. Mentioned recipients are appended by
// the caller.
func GetAddressingForVisibility(visibility, actorUri, followersUri string) (to, cc []string) {
	switch visibility {
	case "unlisted":
		return []string{followersUri}, []string{util.PublicAudience}
	case "followers":
		return []string{followersUri}, []string{}
	case "private":
		return []string{actorUri}, []string{}
	case "direct":
		return []string{}, []string{}
	default: // public
		return []string{util.PublicAudience}, []string{followersUri}
	}
}

// MentionHref resolves a mention to an actor URL: local handles to this
// instance, remote ones to the conventional https://domain/@handle.
func MentionHref(conf *util.AppConfig, m util.Mention) string {
	if m.Domain == "" || m.Domain == conf.InstanceDomain() {
		return conf.ActorUri(m.Handle)
	}
	return fmt.Sprintf("https://%s/@%s", m.Domain, m.Handle)
}

// BuildHashtagTags renders hashtag strings as Hashtag tag objects.
func BuildHashtagTags(tags []string) []domain.Tag {
	var result []domain.Tag
	for _, tag := range tags {
		result = append(result, domain.Tag{
			Type: "Hashtag",
			Href: "/tags/" + url.PathEscape(strings.ToLower(tag)),
			Name: "#" + tag,
		})
	}
	return result
}

// BuildMentionTags renders parsed mentions as Mention tag objects.
func BuildMentionTags(conf *util.AppConfig, mentions []util.Mention) []domain.Tag {
	var result []domain.Tag
	for _, m := range mentions {
		result = append(result, domain.Tag{
			Type: "Mention",
			Href: MentionHref(conf, m),
			Name: m.String(),
		})
	}
	return result
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// isoDuration renders a duration in seconds as ISO-8601 (PT#H#M#S).
func isoDuration(secs int) string {
	if secs <= 0 {
		return ""
	}
	d := "PT"
	if h := secs / 3600; h > 0 {
		d += fmt.Sprintf("%dH", h)
	}
	if m := (secs % 3600) / 60; m > 0 {
		d += fmt.Sprintf("%dM", m)
	}
	if s := secs % 60; s > 0 || d == "PT" {
		d += fmt.Sprintf("%dS", s)
	}
	return d
}

// ConvertContentToObject maps an internal content record to its
// ActivityStreams object, with addressing for its visibility and tags built
// from frontmatter and inline mentions/hashtags.
func ConvertContentToObject(rt *Runtime, content *domain.Content) *domain.ASObject {
	conf := rt.Conf

	visibility := content.Visibility
	if visibility == "" {
		visibility = conf.Conf.DefaultVisibility
	}

	actorUri := conf.ActorUri(content.AuthorHandle)
	followersUri := conf.FollowersUri(content.AuthorHandle)
	to, cc := GetAddressingForVisibility(visibility, actorUri, followersUri)

	mentions := util.ParseMentions(content.Content)
	if max := conf.Conf.MaxMentions; max > 0 && len(mentions) > max {
		mentions = mentions[:max]
	}

	// Mentioned actors join the audience: to for followers and direct, cc for
	// every other visibility (public, unlisted, private).
	for _, m := range mentions {
		href := MentionHref(conf, m)
		switch visibility {
		case "followers", "direct":
			to = append(to, href)
		default:
			cc = append(cc, href)
		}
	}

	obj := &domain.ASObject{
		Id:           ObjectUri(conf, content.Type, content.Slug),
		Type:         asType(content.Type),
		AttributedTo: actorUri,
		Published:    formatTime(content.PublishedAt),
		Updated:      formatTime(content.UpdatedAt),
		To:           to,
		Cc:           cc,
	}

	fm := content.Frontmatter
	hashtags := append([]string{}, fm.Tags...)
	hashtags = append(hashtags, fm.Categories...)
	hashtags = append(hashtags, util.ParseHashtags(content.Content)...)
	hashtags = dedupeTags(hashtags, conf.Conf.MaxTags)

	switch obj.Type {
	case "Article", "Page", "Document", "Image":
		obj.Name = fm.Title
		if obj.Name == "" {
			obj.Name = content.Slug
		}
		obj.Summary = fm.Excerpt
		if obj.Summary == "" {
			obj.Summary = fm.Description
		}
		obj.Content = content.Content
		obj.Url = obj.Id
		if fm.FeaturedImage != "" {
			obj.Attachment = []domain.Attachment{{Type: "Image", Url: fm.FeaturedImage}}
		}
		obj.Tag = BuildHashtagTags(hashtags)

	case "Note":
		obj.Content = util.LinkifyContent(content.Content,
			func(m util.Mention) string { return MentionHref(conf, m) },
			func(tag string) string { return "/tags/" + url.PathEscape(tag) })
		obj.Sensitive = content.Sensitive
		obj.Summary = content.SpoilerText
		obj.InReplyTo = content.InReplyTo
		obj.Tag = append(BuildHashtagTags(hashtags), BuildMentionTags(conf, mentions)...)

	case "Event":
		obj.Name = fm.Title
		obj.Content = content.Content
		obj.StartTime = firstNonEmpty(content.StartDateTime, content.StartDate, content.Date, formatTime(content.PublishedAt))
		obj.EndTime = content.EndDateTime
		if content.LocationName != "" {
			obj.Location = &domain.Place{Type: "Place", Name: content.LocationName}
		}
		obj.Tag = BuildHashtagTags(hashtags)

	case "Video":
		obj.Name = fm.Title
		obj.Content = content.Content
		obj.Url = firstNonEmpty(content.Url, content.EmbedUrl)
		obj.Duration = isoDuration(content.DurationSecs)
		obj.Width = content.Width
		obj.Height = content.Height
		if content.ThumbnailUrl != "" {
			obj.Attachment = []domain.Attachment{{Type: "Image", Url: content.ThumbnailUrl, Name: "thumbnail"}}
		}
		obj.Tag = BuildHashtagTags(hashtags)

	default:
		obj.Name = fm.Title
		obj.Content = content.Content
		obj.Tag = BuildHashtagTags(hashtags)
	}

	return obj
}

// ConvertProfileToActor renders a profile content record as the full Person
// document (the actor store remains the source of the key material).
func ConvertProfileToActor(rt *Runtime, handle string) (error, *domain.Actor) {
	err, stored := EnsureActor(rt, handle)
	if err != nil {
		return err, nil
	}
	actor := BuildActorDocument(rt, stored)
	actor.Discoverable = true
	actor.ManuallyApprovesFollowers = false
	return nil, actor
}

func dedupeTags(tags []string, max int) []string {
	seen := make(map[string]bool)
	var result []string
	for _, tag := range tags {
		key := strings.ToLower(tag)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, tag)
		if max > 0 && len(result) >= max {
			break
		}
	}
	return result
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
