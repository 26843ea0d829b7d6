package model

import (
	"encoding/json"
	"strings"
)

// Property names with special meaning in a CTest manifest.
const (
	PropertyWorkingDirectory = "WORKING_DIRECTORY"
	PropertyEnvironment      = "ENVIRONMENT"
)

// TestDescriptor represents a single test entry from the CTest JSON manifest.
type TestDescriptor struct {
	// Unique test name within one manifest load, used as the canonical test ID
	Name string `json:"name"`
	// Build configuration label (e.g. "Debug"), if any
	Config string `json:"config,omitempty"`
	// Command line: executable followed by its arguments
	Command []string `json:"command"`
	// Test properties in manifest order
	Properties []Property `json:"properties,omitempty"`
}

// Property is a single named test property. Values are either a plain string
// or a list of strings in the manifest.
type Property struct {
	Name  string        `json:"name"`
	Value PropertyValue `json:"value"`
}

// PropertyValue holds a manifest property value, which CTest encodes as
// either a JSON string or a JSON array of strings.
type PropertyValue struct {
	String string
	List   []string
}

// UnmarshalJSON accepts both encodings.
func (v *PropertyValue) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &v.List)
	}
	return json.Unmarshal(data, &v.String)
}

// MarshalJSON writes back whichever form the value carries.
func (v PropertyValue) MarshalJSON() ([]byte, error) {
	if v.List != nil {
		return json.Marshal(v.List)
	}
	return json.Marshal(v.String)
}

// Strings returns the value as a list, wrapping a scalar value as a
// single-element list.
func (v PropertyValue) Strings() []string {
	if v.List != nil {
		return v.List
	}
	if v.String == "" {
		return nil
	}
	return []string{v.String}
}

// Property returns the value of the named property.
func (d *TestDescriptor) Property(name string) (PropertyValue, bool) {
	for _, p := range d.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return PropertyValue{}, false
}

// WorkingDirectory returns the test's WORKING_DIRECTORY property, if set.
func (d *TestDescriptor) WorkingDirectory() string {
	v, ok := d.Property(PropertyWorkingDirectory)
	if !ok {
		return ""
	}
	return v.String
}

// Environment parses the test's ENVIRONMENT property ("KEY=VALUE" entries)
// into a map. Entries without '=' are kept with an empty value.
func (d *TestDescriptor) Environment() map[string]string {
	v, ok := d.Property(PropertyEnvironment)
	if !ok {
		return nil
	}
	env := make(map[string]string)
	for _, entry := range v.Strings() {
		key, value, _ := strings.Cut(entry, "=")
		env[key] = value
	}
	return env
}
