package storage

// Tables resolves the physical name of each logical table the engine owns.
// Hosts may override individual names (spec's tableNames configuration
// option); the set of logical tables itself is fixed.
type Tables struct {
	names map[string]string
}

var defaultTableNames = map[string]string{
	"principal_types":        "principal_types",
	"principals":             "principals",
	"users":                  "users",
	"agents":                 "agents",
	"service_accounts":       "service_accounts",
	"user_groups":            "user_groups",
	"user_group_memberships": "user_group_memberships",
	"resource_types":         "resource_types",
	"resources":              "resources",
	"roles":                  "roles",
	"permissions":            "permissions",
	"role_permissions":       "role_permissions",
	"grants":                 "grants",
	"schema_version":         "sqlzibar_schema",
}

// NewTables builds a Tables resolver, applying overrides keyed by logical
// table name on top of the fixed defaults.
func NewTables(overrides map[string]string) Tables {
	names := make(map[string]string, len(defaultTableNames))
	for k, v := range defaultTableNames {
		names[k] = v
	}
	for k, v := range overrides {
		if _, known := defaultTableNames[k]; known {
			names[k] = v
		}
	}
	return Tables{names: names}
}

// Name returns the physical name for a logical table. It panics on an
// unknown logical name — that is a programming error, not a runtime one.
func (t Tables) Name(logical string) string {
	name, ok := t.names[logical]
	if !ok {
		panic("storage: unknown logical table " + logical)
	}
	return name
}
