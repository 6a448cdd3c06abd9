package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	if c.Len() == 0 {
		t.Fatal("default catalog is empty")
	}
	food, ok := c.Lookup("food")
	if !ok || food.Code != "FOOD" || food.Label != "Food" {
		t.Fatalf("unexpected FOOD lookup: %+v ok=%v", food, ok)
	}
	savings, ok := c.Lookup("SAVINGS")
	if !ok || !savings.Saving {
		t.Fatalf("SAVINGS should be a saving category: %+v", savings)
	}
	if c.Position("FOOD") != 0 {
		t.Fatalf("FOOD should be first, got %d", c.Position("FOOD"))
	}
	if c.Position("NOPE") != -1 {
		t.Fatal("unknown code should have position -1")
	}
	if byID, ok := c.LookupID(food.ID); !ok || byID.Code != "FOOD" {
		t.Fatalf("LookupID(%d) = %+v ok=%v", food.ID, byID, ok)
	}
	if _, ok := c.LookupID(0); ok {
		t.Fatal("id 0 should not resolve")
	}
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	cases := map[string]string{
		"empty":        ``,
		"no code":      "[[category]]\nlabel = \"x\"\n",
		"duplicate":    "[[category]]\ncode = \"A\"\n[[category]]\ncode = \"a\"\n",
		"duplicate id": "[[category]]\nid = 4\ncode = \"A\"\n[[category]]\nid = 4\ncode = \"B\"\n",
		"negative id":  "[[category]]\nid = -2\ncode = \"A\"\n",
		"bad toml":     "[[category]\n",
	}
	for name, doc := range cases {
		if _, err := Parse(doc); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.toml")
	doc := "[[category]]\ncode = \"rent\"\n\n[[category]]\ncode = \"fun\"\nlabel = \"Fun\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	all := c.All()
	if len(all) != 2 || all[0].Code != "RENT" || all[0].Label != "RENT" || all[1].Label != "Fun" || all[1].ID != 2 {
		t.Fatalf("unexpected categories: %+v", all)
	}

	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil || !strings.Contains(err.Error(), "read catalog file") {
		t.Fatalf("expected read error, got %v", err)
	}

	def, err := Load("")
	if err != nil || def.Len() != Default().Len() {
		t.Fatalf("empty path should load default: %v", err)
	}
}
