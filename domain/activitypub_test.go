package domain

import (
	"testing"
)

func TestParseActivityValid(t *testing.T) {
	body := []byte(`{
		"id": "https://remote.example/activities/1",
		"type": "Follow",
		"actor": "https://remote.example/@bob",
		"object": "https://example.com/@alice"
	}`)

	activity, err := ParseActivity(body)
	if err != nil {
		t.Fatalf("ParseActivity failed: %v", err)
	}
	if activity.Type != "Follow" {
		t.Errorf("Wrong type: %s", activity.Type)
	}
	if activity.ActorUri() != "https://remote.example/@bob" {
		t.Errorf("Wrong actor: %s", activity.ActorUri())
	}
	if activity.ObjectUri() != "https://example.com/@alice" {
		t.Errorf("Wrong object: %s", activity.ObjectUri())
	}
}

func TestParseActivityEmbeddedActor(t *testing.T) {
	body := []byte(`{
		"id": "x",
		"type": "Like",
		"actor": {"id": "https://remote.example/@bob", "type": "Person"},
		"object": "https://example.com/notes/1"
	}`)

	activity, err := ParseActivity(body)
	if err != nil {
		t.Fatalf("ParseActivity failed: %v", err)
	}
	if activity.ActorUri() != "https://remote.example/@bob" {
		t.Errorf("Embedded actor not unwrapped: %s", activity.ActorUri())
	}
}

func TestParseActivityRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing id", `{"type":"Follow","actor":"a","object":"b"}`},
		{"missing type", `{"id":"x","actor":"a","object":"b"}`},
		{"missing actor", `{"id":"x","type":"Follow","object":"b"}`},
		{"create without object", `{"id":"x","type":"Create","actor":"a"}`},
		{"undo without object", `{"id":"x","type":"Undo","actor":"a"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseActivity([]byte(tt.body))
			if !IsKind(err, KindBadRequest) {
				t.Errorf("Expected BadRequest, got %v", err)
			}
		})
	}
}

func TestParseActivityObjectlessTypesAllowed(t *testing.T) {
	body := []byte(`{"id":"x","type":"Arrive","actor":"https://a.example/@a"}`)
	if _, err := ParseActivity(body); err != nil {
		t.Errorf("Objectless non-core types must parse: %v", err)
	}
}

func TestObjectUriVariants(t *testing.T) {
	tests := []struct {
		name   string
		object interface{}
		want   string
	}{
		{"string", "https://x.example/1", "https://x.example/1"},
		{"embedded", map[string]interface{}{"id": "https://x.example/2"}, "https://x.example/2"},
		{"list", []interface{}{map[string]interface{}{"id": "https://x.example/3"}}, "https://x.example/3"},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Activity{Object: tt.object}
			if got := a.ObjectUri(); got != tt.want {
				t.Errorf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestTombstone(t *testing.T) {
	tomb := Tombstone("https://example.com/notes/1", "Note", "2024-01-01T00:00:00Z")

	if tomb.Type != "Tombstone" {
		t.Errorf("Wrong type: %s", tomb.Type)
	}
	if tomb.FormerType != "Note" {
		t.Errorf("Wrong formerType: %s", tomb.FormerType)
	}
	if tomb.Id != "https://example.com/notes/1" || tomb.Deleted == "" {
		t.Errorf("Wrong tombstone: %+v", tomb)
	}
}
