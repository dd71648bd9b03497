// Package crm drives the CRM under test over HTTP: per-user sessions,
// approval settings, business records, approval actions and the status
// shown in the record list.
package crm

import (
	"fmt"
	"sort"
	"strings"
)

// Kind describes one approvable business type.
type Kind struct {
	// Singular prefixes form fields, for example "customer".
	Singular string
	// Plural is used in API paths, for example "customers".
	Plural string
	// ListPath is the HTML list page that renders approval status.
	ListPath string
	// TitleField is the form field carrying the record's display name.
	TitleField string
}

var kinds = map[string]Kind{
	"customer":    {Singular: "customer", Plural: "customers", ListPath: "/customers", TitleField: "name"},
	"contract":    {Singular: "contract", Plural: "contracts", ListPath: "/contracts", TitleField: "title"},
	"opportunity": {Singular: "opportunity", Plural: "opportunities", ListPath: "/opportunities", TitleField: "title"},
	"lead":        {Singular: "lead", Plural: "leads", ListPath: "/leads", TitleField: "name"},
}

var kindAliases = map[string]string{
	"客户": "customer",
	"合同": "contract",
	"商机": "opportunity",
	"线索": "lead",
}

// LookupKind finds a business kind by English or Chinese name.
func LookupKind(name string) (Kind, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := kindAliases[key]; ok {
		key = alias
	}
	k, ok := kinds[key]
	if !ok {
		return Kind{}, fmt.Errorf("unknown business kind %q (known: %s)", name, strings.Join(KindNames(), ", "))
	}
	return k, nil
}

// KindNames lists the supported kinds.
func KindNames() []string {
	names := make([]string, 0, len(kinds))
	for n := range kinds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (k Kind) field(name string) string {
	return fmt.Sprintf("%s[%s]", k.Singular, name)
}

func (k Kind) settingsPath() string {
	return fmt.Sprintf("/settings/%s_approve/update", k.Singular)
}

func (k Kind) switchField() string {
	return fmt.Sprintf("%s_approve[enable_%s_approve]", k.Singular, k.Singular)
}
