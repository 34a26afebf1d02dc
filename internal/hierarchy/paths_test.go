package hierarchy_test

import (
	"errors"
	"testing"

	"github.com/pagemill/pagemill/internal/hierarchy"
	"github.com/pagemill/pagemill/pages"
)

// exampleTree builds:
//
//	root → section → {child-a, child-b}
//	root → leaf-at-root
//	standalone
func exampleTree(t *testing.T) *hierarchy.Tree {
	t.Helper()
	tree, err := hierarchy.BuildFromRelation([]*pages.Page{
		page("root", "root"),
		page("section", "section", "root"),
		page("child-a", "child-a", "section"),
		page("child-b", "child-b", "section"),
		page("leaf-at-root", "leaf-at-root", "root"),
		page("standalone", "standalone"),
	}, relationProp)
	if err != nil {
		t.Fatalf("BuildFromRelation returned error: %v", err)
	}
	return tree
}

func TestOutputDirectory(t *testing.T) {
	tree := exampleTree(t)

	cases := []struct {
		id   string
		want string
	}{
		{"root", "root"},
		{"section", "root/section"},
		{"child-a", "root/section"},
		{"leaf-at-root", "root"},
		{"standalone", ""},
	}
	for _, tc := range cases {
		got, err := tree.OutputDirectory(tc.id)
		if err != nil {
			t.Fatalf("OutputDirectory(%q) returned error: %v", tc.id, err)
		}
		if got != tc.want {
			t.Fatalf("OutputDirectory(%q) = %q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestEffectiveSlug(t *testing.T) {
	tree := exampleTree(t)

	if got, _ := tree.EffectiveSlug("section"); got != "index" {
		t.Fatalf("EffectiveSlug(section) = %q, want index", got)
	}
	if got, _ := tree.EffectiveSlug("child-a"); got != "child-a" {
		t.Fatalf("EffectiveSlug(child-a) = %q, want child-a", got)
	}
	if got, _ := tree.EffectiveSlug("standalone"); got != "standalone" {
		t.Fatalf("EffectiveSlug(standalone) = %q, want standalone", got)
	}
}

func TestRelativePath(t *testing.T) {
	tree := exampleTree(t)

	cases := []struct {
		from string
		to   string
		want string
	}{
		{"child-a", "child-b", "child-b"},
		{"child-a", "section", "."},
		{"child-a", "leaf-at-root", "../leaf-at-root"},
		{"standalone", "child-a", "root/section/child-a"},
		{"leaf-at-root", "child-a", "section/child-a"},
		{"child-a", "root", ".."},
		{"child-a", "standalone", "../../standalone"},
	}
	for _, tc := range cases {
		got, err := tree.RelativePath(tc.from, tc.to)
		if err != nil {
			t.Fatalf("RelativePath(%q, %q) returned error: %v", tc.from, tc.to, err)
		}
		if got != tc.want {
			t.Fatalf("RelativePath(%q, %q) = %q, want %q", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestRelativePathWithoutSource(t *testing.T) {
	tree := exampleTree(t)

	if got, _ := tree.RelativePath("", "child-a"); got != "root/section/child-a" {
		t.Fatalf("absolute fallback = %q, want root/section/child-a", got)
	}
	if got, _ := tree.RelativePath("", "section"); got != "root/section" {
		t.Fatalf("absolute fallback to index page = %q, want root/section", got)
	}
}

func TestRelativePathUnknownNode(t *testing.T) {
	tree := exampleTree(t)

	if _, err := tree.RelativePath("child-a", "ghost"); !errors.Is(err, hierarchy.ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
	if _, err := tree.OutputDirectory("ghost"); !errors.Is(err, hierarchy.ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
	if _, err := tree.EffectiveSlug("ghost"); !errors.Is(err, hierarchy.ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
}
