package jobconfig

import "strings"

// Role selects which side of a job the system fields are for
type Role string

const (
	RoleReader Role = "reader"
	RoleWriter Role = "writer"
)

// ResourceTypeDataTable is the platform's internal table store. Jobs touching it
// always run with the internal reader/writer pair.
const ResourceTypeDataTable = "DATATABLE"

// jdbcDialects maps relational resource types to the dialect the JDBC
// reader/writer is configured with.
var jdbcDialects = map[string]string{
	"POSTGRESQL": "postgresql",
	"POSTGRES":   "postgresql",
	"MYSQL":      "mysql",
	"MARIADB":    "mysql",
	"SQLSERVER":  "sqlserver",
	"ORACLE":     "oracle",
	"REDSHIFT":   "redshift",
	"SNOWFLAKE":  "snowflake",
	"SQLITE":     "sqlite",
}

var fileFormats = map[string]string{
	"CSV":     "csv",
	"JSON":    "json",
	"PARQUET": "parquet",
}

// SystemFields returns the platform defaults for one side of a job.
// The result depends only on (resourceType, role); lookup ignores case.
// Unknown or empty types yield an empty map.
func SystemFields(resourceType string, role Role) map[string]interface{} {
	key := strings.ToUpper(strings.TrimSpace(resourceType))
	kind := string(role)

	if key == ResourceTypeDataTable {
		return map[string]interface{}{
			kind:       "datatable-" + kind,
			"internal": true,
		}
	}
	if dialect, ok := jdbcDialects[key]; ok {
		return map[string]interface{}{
			kind:      "jdbc",
			"dialect": dialect,
		}
	}
	if format, ok := fileFormats[key]; ok {
		return map[string]interface{}{
			kind:     "file",
			"format": format,
		}
	}
	if key == "REST" || key == "HTTP" {
		return map[string]interface{}{
			kind: "http",
		}
	}
	return map[string]interface{}{}
}

// ApplySystemFields recomputes both sides' system fields from their resource types
func ApplySystemFields(r *Record) {
	r.Source.SystemFields = SystemFields(r.Source.ResourceType, RoleReader)
	r.Target.SystemFields = SystemFields(r.Target.ResourceType, RoleWriter)
}
