package reconcile

import (
	"testing"

	"github.com/rosterops/console/modules/roster/domain/types"
)

func TestNormalizeOwnerToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"山田 太郎", "山田太郎"},
		{"山田　太郎", "山田太郎"}, // ideographic space
		{"山田(営業)", "山田営業"},
		{"山田（営業）", "山田営業"}, // full-width parens
		{"Ｓｍｉｔｈ", "Smith"},  // full-width latin
		{"  ", ""},
	}
	for _, tc := range cases {
		if got := NormalizeOwnerToken(tc.in); got != tc.want {
			t.Fatalf("NormalizeOwnerToken(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseAliasTableYAML(t *testing.T) {
	table, err := ParseAliasTableYAML([]byte("version: 1\naliases:\n  yamada: 山田\n  suzu: 鈴木\n"))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if table["yamada"] != "山田" {
		t.Fatalf("table=%v", table)
	}
	if _, err := ParseAliasTableYAML([]byte("version: 7\naliases: {}")); err == nil {
		t.Fatal("expected version error")
	}
}

func TestOwnerResolver_Order(t *testing.T) {
	owners := []types.Owner{
		{ID: "o1", Name: "山田", Role: "sales"},
		{ID: "o2", Name: "鈴木", Role: "manager"},
	}
	table := AliasTable{
		"yamada": "山田",
		"ghost":  "退職者", // display name not in roster: silently dropped
	}
	r := NewOwnerResolver(table, owners)

	if id, ok := r.Resolve("yamada"); !ok || id != "o1" {
		t.Fatalf("alias resolve id=%q ok=%v", id, ok)
	}
	// direct normalized owner-name fallback
	if id, ok := r.Resolve("鈴木 "); !ok || id != "o2" {
		t.Fatalf("name resolve id=%q ok=%v", id, ok)
	}
	// alias to a departed owner never resolves
	if _, ok := r.Resolve("ghost"); ok {
		t.Fatal("ghost alias should not resolve")
	}
	if _, ok := r.Resolve(""); ok {
		t.Fatal("empty token should not resolve")
	}
}
