package display

import (
	"encoding/json"
	"flag"
	"os"
)

// IsCI reports whether output goes to a CI log rather than a person
func IsCI() bool {
	v := os.Getenv("CI")
	return v != "" && v != "0" && v != "false"
}

// MarshalJSON marshals JSON compactly in CI, indented for people
func MarshalJSON(v interface{}) ([]byte, error) {
	// Tests always get indented output so assertions stay readable
	if flag.Lookup("test.v") != nil {
		return json.MarshalIndent(v, "", "  ")
	}
	if IsCI() {
		return json.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}
