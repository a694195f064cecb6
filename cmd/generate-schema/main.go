// Command generate-schema writes the JSON Schema of the structured
// configuration format (staticd.yaml, .toml or .json), for editor
// completion and CI validation of config files.
//
// Usage:
//
//	generate-schema [-o config.schema.json]
//	generate-schema -o - > schema.json
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/staticd/pkg/config"
	"github.com/spf13/pflag"
)

const schemaID = "https://github.com/marmos91/staticd/config.schema.json"

// requiredKeys are the settings every configuration must provide. Everything
// else has a default.
var requiredKeys = []string{"server.document_root", "server.thread_limit"}

func main() {
	flags := pflag.NewFlagSet("generate-schema", pflag.ContinueOnError)
	output := flags.StringP("output", "o", "config.schema.json", "Destination file, or - for stdout")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if !flags.Changed("output") && flags.NArg() > 0 {
		*output = flags.Arg(0)
	}

	data, err := buildSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *output == "-" {
		_, _ = os.Stdout.Write(data)
		return
	}

	if err := os.WriteFile(*output, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("JSON schema written to %s\n", *output)
}

// buildSchema reflects config.Config using the same field names viper
// decodes (mapstructure tags) and renders it as indented JSON.
func buildSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		FieldNameTag:               "mapstructure",
		RequiredFromJSONSchemaTags: true,
		Mapper:                     mapDuration,
	}

	schema := reflector.Reflect(&config.Config{})
	schema.ID = jsonschema.ID(schemaID)
	schema.Title = "staticd Configuration"
	schema.Description = "Configuration schema for the staticd static file server"

	for _, key := range requiredKeys {
		if err := markRequired(schema, key); err != nil {
			return nil, err
		}
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return append(data, '\n'), nil
}

// mapDuration describes time.Duration as the string form viper accepts
// ("10s", "1m30s") instead of the underlying int64.
func mapDuration(t reflect.Type) *jsonschema.Schema {
	if t != reflect.TypeOf(time.Duration(0)) {
		return nil
	}
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration, e.g. 10s or 1m30s",
	}
}

// markRequired adds the last segment of a dotted key to the required list of
// its parent object.
func markRequired(root *jsonschema.Schema, key string) error {
	parts := strings.Split(key, ".")
	parent := root
	for _, part := range parts[:len(parts)-1] {
		child, ok := parent.Properties.Get(part)
		if !ok {
			return fmt.Errorf("schema has no section %q (from %s)", part, key)
		}
		parent = child
	}

	leaf := parts[len(parts)-1]
	if _, ok := parent.Properties.Get(leaf); !ok {
		return fmt.Errorf("schema has no property %q (from %s)", leaf, key)
	}
	parent.Required = append(parent.Required, leaf)
	return nil
}
