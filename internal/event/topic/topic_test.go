package topic

import "testing"

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		topic   Topic
		pattern Topic
		want    bool
	}{
		{"plughost.poll.voted", "plughost.poll.voted", true},
		{"plughost.poll.voted", "plughost.*.voted", true},
		{"plughost.poll.voted", "plughost.*", false},
		{"plughost.poll.voted", "plughost.**", true},
		{"plughost", "plughost.**", true},
		{"plughost.poll", "**", true},
		{"other.poll", "plughost.**", false},
		{"plughost.poll.voted", "plughost.poll", false},
	}

	for _, tt := range tests {
		if got := tt.topic.Matches(tt.pattern); got != tt.want {
			t.Errorf("%q.Matches(%q) = %v, want %v", tt.topic, tt.pattern, got, tt.want)
		}
	}
}

func TestTopicPrefix(t *testing.T) {
	tp := Topic("plughost.poll.voted")

	if !tp.HasPrefix("plughost") {
		t.Error("HasPrefix(plughost) = false, want true")
	}
	if tp.HasPrefix("plug") {
		t.Error("HasPrefix(plug) = true, want false (not a segment boundary)")
	}
	if got := tp.TrimPrefix("plughost"); got != "poll.voted" {
		t.Errorf("TrimPrefix() = %q, want %q", got, "poll.voted")
	}
	if got := tp.TrimPrefix("other"); got != tp {
		t.Errorf("TrimPrefix(other) = %q, want unchanged", got)
	}
}

func TestTopicIsValid(t *testing.T) {
	valid := []Topic{"a", "a.b", "plughost.poll.voted"}
	invalid := []Topic{"", ".a", "a.", "a..b"}

	for _, tp := range valid {
		if !tp.IsValid() {
			t.Errorf("%q.IsValid() = false, want true", tp)
		}
	}
	for _, tp := range invalid {
		if tp.IsValid() {
			t.Errorf("%q.IsValid() = true, want false", tp)
		}
	}
}

func TestJoinAndChild(t *testing.T) {
	if got := Join("a", "b", "c"); got != "a.b.c" {
		t.Errorf("Join() = %q", got)
	}
	if got := Topic("").Child("a"); got != "a" {
		t.Errorf("Child() on empty = %q", got)
	}
	if got := Topic("a").Child("b"); got != "a.b" {
		t.Errorf("Child() = %q", got)
	}
}
