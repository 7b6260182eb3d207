package plugin

import (
	"errors"
	"testing"
)

func TestParseCapability(t *testing.T) {
	tests := []struct {
		in      string
		want    Capability
		wantErr bool
	}{
		{"feed", CapabilityFeed, false},
		{"composer", CapabilityComposer, false},
		{"item-actions", CapabilityItemActions, false},
		{" Routes ", CapabilityRoutes, false},
		{"modals", CapabilityModals, false},
		{"menu", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseCapability(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownCapability) {
				t.Errorf("ParseCapability(%q) error = %v, want ErrUnknownCapability", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCapability(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCapability(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCapabilitySet(t *testing.T) {
	s := NewCapabilitySet(CapabilityFeed, CapabilityRoutes, Capability("bogus"))

	if !s.Has(CapabilityFeed) || !s.Has(CapabilityRoutes) {
		t.Errorf("set %q missing members", s)
	}
	if s.Has(CapabilityModals) {
		t.Error("set should not contain modals")
	}
	if s.Has(Capability("bogus")) {
		t.Error("unknown capability should never be a member")
	}
	if got := s.String(); got != "feed,routes" {
		t.Errorf("String() = %q, want %q", got, "feed,routes")
	}
	if !CapabilitySet(0).IsEmpty() {
		t.Error("zero set should be empty")
	}
}

func TestParseCapabilitySet(t *testing.T) {
	s, err := ParseCapabilitySet([]string{"feed", "modals"})
	if err != nil {
		t.Fatalf("ParseCapabilitySet: %v", err)
	}
	if s != NewCapabilitySet(CapabilityFeed, CapabilityModals) {
		t.Errorf("got %q", s)
	}

	if _, err := ParseCapabilitySet([]string{"feed", "wallet"}); !errors.Is(err, ErrUnknownCapability) {
		t.Errorf("expected ErrUnknownCapability, got %v", err)
	}
}

func TestAllowed(t *testing.T) {
	all := NewCapabilitySet(AllCapabilities()...)
	feed := NewCapabilitySet(CapabilityFeed)
	routes := NewCapabilitySet(CapabilityRoutes)

	tests := []struct {
		name    string
		claimed CapabilitySet
		allow   CapabilitySet
		want    CapabilitySet
	}{
		{"empty allow list permits claims", all, 0, all},
		{"intersection", all, feed, feed},
		{"disjoint", routes, feed, 0},
		{"nothing claimed", 0, feed, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Allowed(tt.claimed, tt.allow); got != tt.want {
				t.Errorf("Allowed(%q, %q) = %q, want %q", tt.claimed, tt.allow, got, tt.want)
			}
		})
	}
}

func TestCapabilityInfo(t *testing.T) {
	for _, c := range AllCapabilities() {
		info, ok := Info(c)
		if !ok {
			t.Errorf("Info(%q) missing", c)
			continue
		}
		if info.Name != c || info.DisplayName == "" {
			t.Errorf("Info(%q) = %+v", c, info)
		}
	}
	if _, ok := Info("menu"); ok {
		t.Error("menu is not a capability")
	}
	if RiskHigh.String() != "high" {
		t.Errorf("RiskHigh.String() = %q", RiskHigh.String())
	}
}

func TestDescriptorCompatible(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"1.0", true},
		{"1.12.3", true},
		{"2.0", false},
		{"1", false},
		{"", false},
		{"v1.0", false},
	}
	for _, tt := range tests {
		d := Define(Descriptor{ID: "x", APIVersion: tt.version})
		if got := d.Compatible(); got != tt.want {
			t.Errorf("Compatible(%q) = %v, want %v", tt.version, got, tt.want)
		}
	}
}
