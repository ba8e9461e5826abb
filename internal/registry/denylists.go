package registry

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed denylists.yaml
var denyListsYAML []byte

func builtinDenyLists() (map[string][]string, error) {
	lists, err := parseDenyLists(denyListsYAML)
	if err != nil {
		return nil, fmt.Errorf("parse built-in deny lists: %w", err)
	}
	return lists, nil
}

// LoadDenyLists reads a YAML file mapping category names to term lists.
func LoadDenyLists(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deny lists: %w", err)
	}
	lists, err := parseDenyLists(data)
	if err != nil {
		return nil, fmt.Errorf("parse deny lists %s: %w", path, err)
	}
	return lists, nil
}

func parseDenyLists(data []byte) (map[string][]string, error) {
	raw := map[string][]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(raw))
	for k, v := range raw {
		out[canonical(k)] = v
	}
	return out, nil
}

// DenyListCategories lists the categories whose terms can be replaced.
func DenyListCategories() []string {
	var out []string
	for _, def := range table {
		if def.denyList {
			out = append(out, def.name)
		}
	}
	return out
}

// ValidateDenyLists checks that every key names a deny-list category.
func ValidateDenyLists(lists map[string][]string) error {
	allowed := make(map[string]struct{})
	for _, n := range DenyListCategories() {
		allowed[n] = struct{}{}
	}
	var bad []string
	for k := range lists {
		if _, ok := allowed[canonical(k)]; !ok {
			bad = append(bad, k)
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return fmt.Errorf("unknown deny-list categories: %s", strings.Join(bad, ", "))
	}
	return nil
}
