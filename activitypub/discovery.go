package activitypub

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/fedipress/fedipress/domain"
	"github.com/fedipress/fedipress/store"
	"github.com/fedipress/fedipress/util"
)

// WebFinger (RFC 7033) and NodeInfo discovery documents.

var handleRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// WebFingerLink is one entry of a WebFinger descriptor's links array.
type WebFingerLink struct {
	Rel      string `json:"rel"`
	Type     string `json:"type,omitempty"`
	Href     string `json:"href,omitempty"`
	Template string `json:"template,omitempty"`
}

// WebFingerResponse is the JRD document served for a resolved resource.
type WebFingerResponse struct {
	Subject string          `json:"subject"`
	Aliases []string        `json:"aliases"`
	Links   []WebFingerLink `json:"links"`
}

// parseWebFingerResource accepts acct:handle@domain and https://domain/@handle
// forms, returning handle and domain.
func parseWebFingerResource(resource string) (handle, domainName string, err error) {
	if acct, ok := strings.CutPrefix(resource, "acct:"); ok {
		handle, domainName, ok = strings.Cut(acct, "@")
		if !ok || handle == "" || domainName == "" {
			return "", "", domain.BadRequestError("malformed acct resource %q", resource)
		}
		return handle, domainName, nil
	}

	if strings.HasPrefix(resource, "https://") || strings.HasPrefix(resource, "http://") {
		parsed, parseErr := url.Parse(resource)
		if parseErr != nil {
			return "", "", domain.BadRequestError("malformed resource URL %q", resource)
		}
		path := strings.Trim(parsed.Path, "/")
		if h, ok := strings.CutPrefix(path, "@"); ok && h != "" {
			return h, parsed.Host, nil
		}
		return "", "", domain.BadRequestError("resource URL %q does not name an actor", resource)
	}

	return "", "", domain.BadRequestError("unsupported resource %q", resource)
}

// WebFinger resolves a resource parameter to its descriptor. Unknown users
// and foreign domains yield NotFound.
func WebFinger(rt *Runtime, resource string) (*WebFingerResponse, error) {
	handle, domainName, err := parseWebFingerResource(resource)
	if err != nil {
		return nil, err
	}

	if domainName != rt.Conf.InstanceDomain() {
		return nil, domain.NotFoundError("resource domain %s is not served here", domainName)
	}
	if !handleRe.MatchString(handle) {
		return nil, domain.BadRequestError("invalid handle %q", handle)
	}
	if !LocalUserExists(rt, handle) {
		return nil, domain.NotFoundError("unknown user %s", handle)
	}

	actorUri := rt.Conf.ActorUri(handle)
	profileUrl := rt.Conf.ProfileUrl(handle)

	return &WebFingerResponse{
		Subject: rt.Conf.WebFingerResource(handle),
		Aliases: []string{actorUri, profileUrl},
		Links: []WebFingerLink{
			{Rel: "self", Type: "application/activity+json", Href: actorUri},
			{Rel: "http://webfinger.net/rel/profile-page", Type: "text/html", Href: profileUrl},
			{Rel: "http://ostatus.org/schema/1.0/subscribe", Template: rt.Conf.BaseUrl() + "/authorize_interaction?uri={uri}"},
		},
	}, nil
}

// NodeInfoLinks is the /.well-known/nodeinfo document.
type NodeInfoLinks struct {
	Links []WebFingerLink `json:"links"`
}

// BuildNodeInfoLinks lists the supported NodeInfo schema versions.
func BuildNodeInfoLinks(conf *util.AppConfig) *NodeInfoLinks {
	return &NodeInfoLinks{
		Links: []WebFingerLink{
			{Rel: "http://nodeinfo.diaspora.software/ns/schema/2.0", Href: conf.BaseUrl() + "/nodeinfo/2.0"},
			{Rel: "http://nodeinfo.diaspora.software/ns/schema/2.1", Href: conf.BaseUrl() + "/nodeinfo/2.1"},
		},
	}
}

// NodeInfo is the 2.x instance descriptor.
type NodeInfo struct {
	Version   string                 `json:"version"`
	Software  NodeInfoSoftware       `json:"software"`
	Protocols []string               `json:"protocols"`
	Services  NodeInfoServices       `json:"services"`
	OpenRegs  bool                   `json:"openRegistrations"`
	Usage     NodeInfoUsage          `json:"usage"`
	Metadata  map[string]interface{} `json:"metadata"`
}

type NodeInfoSoftware struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type NodeInfoServices struct {
	Inbound  []string `json:"inbound"`
	Outbound []string `json:"outbound"`
}

type NodeInfoUsage struct {
	Users         NodeInfoUsers `json:"users"`
	LocalPosts    int           `json:"localPosts"`
	LocalComments int           `json:"localComments"`
}

type NodeInfoUsers struct {
	Total          int  `json:"total"`
	ActiveHalfyear *int `json:"activeHalfyear"`
	ActiveMonth    *int `json:"activeMonth"`
}

// BuildNodeInfo assembles the instance descriptor with live usage counts.
func BuildNodeInfo(rt *Runtime, version string) (*NodeInfo, error) {
	if version != "2.0" && version != "2.1" {
		return nil, domain.NotFoundError("unsupported nodeinfo version %s", version)
	}

	actorKeys, err := rt.Store.List(store.NsActors)
	if err != nil {
		return nil, fmt.Errorf("failed to count actors: %w", err)
	}

	localPosts := 0
	for _, handle := range actorKeys {
		err, entries := GetOutbox(rt, handle)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.Type == "Create" {
				localPosts++
			}
		}
	}

	return &NodeInfo{
		Version: version,
		Software: NodeInfoSoftware{
			Name:    util.Name,
			Version: util.GetVersion(),
		},
		Protocols: []string{"activitypub"},
		Services: NodeInfoServices{
			Inbound:  []string{},
			Outbound: []string{"atom1.0", "rss2.0"},
		},
		OpenRegs: false,
		Usage: NodeInfoUsage{
			Users:         NodeInfoUsers{Total: len(actorKeys)},
			LocalPosts:    localPosts,
			LocalComments: 0,
		},
		Metadata: map[string]interface{}{
			"federation": map[string]interface{}{
				"enabled":   rt.Conf.Conf.FederationEnabled,
				"allowList": nil,
				"blockList": []string{},
			},
			"features":     []string{"activitypub", "webfinger", "http-signatures", "mastodon-api-compat"},
			"contentTypes": []string{"Article", "Note", "Image", "Video", "Page", "Event"},
		},
	}, nil
}
