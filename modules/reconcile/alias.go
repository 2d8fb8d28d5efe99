package reconcile

import (
	"errors"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/width"
	"gopkg.in/yaml.v3"

	"github.com/rosterops/console/modules/roster/domain/types"
)

// AliasTable maps a short free-text token to a canonical owner display
// name. It is static configuration; binding to owner ids happens once
// per run against the live roster.
type AliasTable map[string]string

type aliasFile struct {
	Version int               `yaml:"version"`
	Aliases map[string]string `yaml:"aliases"`
}

func ParseAliasTableYAML(b []byte) (AliasTable, error) {
	var f aliasFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	if f.Version != 1 {
		return nil, errors.New("aliases: unsupported version")
	}
	return AliasTable(f.Aliases), nil
}

func LoadAliasTable(path string) (AliasTable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseAliasTableYAML(b)
}

// NormalizeOwnerToken folds full-width characters to their narrow
// forms, then strips all whitespace and parentheses. Tokens compare
// exactly after normalization; there is no case folding.
func NormalizeOwnerToken(s string) string {
	s = width.Narrow.String(s)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsSpace(r) || r == '(' || r == ')' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// OwnerResolver binds the static alias table to the live owner roster.
// An alias whose display name matches no current owner is silently
// dropped: it simply never resolves.
type OwnerResolver struct {
	byAlias map[string]string
	byName  map[string]string
}

func NewOwnerResolver(table AliasTable, owners []types.Owner) *OwnerResolver {
	idByName := make(map[string]string, len(owners))
	byName := make(map[string]string, len(owners))
	for _, o := range owners {
		idByName[o.Name] = o.ID
		byName[NormalizeOwnerToken(o.Name)] = o.ID
	}

	byAlias := make(map[string]string, len(table))
	for alias, displayName := range table {
		id, ok := idByName[displayName]
		if !ok {
			continue
		}
		byAlias[NormalizeOwnerToken(alias)] = id
	}
	return &OwnerResolver{byAlias: byAlias, byName: byName}
}

// Resolve maps a free-text owner name to an owner id: alias table
// first, then a direct match against normalized owner names.
func (r *OwnerResolver) Resolve(raw string) (string, bool) {
	token := NormalizeOwnerToken(raw)
	if token == "" {
		return "", false
	}
	if id, ok := r.byAlias[token]; ok {
		return id, true
	}
	if id, ok := r.byName[token]; ok {
		return id, true
	}
	return "", false
}
