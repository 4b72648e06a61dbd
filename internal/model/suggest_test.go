package model

import (
	"testing"
)

func TestSuggest(t *testing.T) {
	s := NewStore()
	s.Add(
		makeDecl(KindFunction, "app::parseConfig", "a.cc"),
		makeDecl(KindFunction, "app::parseConfigs", "a.cc"),
		makeDecl(KindFunction, "app::shutdown", "a.cc"),
	)

	got := s.Suggest("parseConfg", 5)
	if len(got) < 2 || got[0] != "parseConfig" {
		t.Errorf("Suggest(parseConfg) = %v, want parseConfig first", got)
	}
	for _, name := range got {
		if name == "shutdown" {
			t.Errorf("Suggest returned unrelated name %q", name)
		}
	}

	if got := s.Suggest("app::parseConfg", 1); len(got) != 1 || got[0] != "app::parseConfig" {
		t.Errorf("qualified Suggest = %v, want [app::parseConfig]", got)
	}
	if got := s.Suggest("", 3); got != nil {
		t.Errorf("Suggest(\"\") = %v, want nil", got)
	}
}
