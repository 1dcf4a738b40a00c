package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/comtradebench/greenbench/schemas"
)

// defaultPrinter is used to format schema validation error messages.
var defaultPrinter = message.NewPrinter(language.English)

// metadataSchema is the compiled JSON Schema for metadata.json.
var metadataSchema *jsonschema.Schema

// recordSchema is the compiled JSON Schema for one data.jsonl record.
var recordSchema *jsonschema.Schema

func init() {
	metadataSchema = mustCompileSchema(schemas.MetadataSchemaJSON, "metadata.schema.json")
	recordSchema = mustCompileSchema(schemas.RecordSchemaJSON, "record.schema.json")
}

func mustCompileSchema(raw string, name string) *jsonschema.Schema {
	var schemaDoc any
	if err := json.Unmarshal([]byte(raw), &schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// schemaError is one leaf schema violation. Field is the top-level property
// it concerns, empty when the violation is about the document itself.
type schemaError struct {
	Field   string
	Message string
}

func (e schemaError) String() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func validateAgainstSchema(schema *jsonschema.Schema, instance any) []schemaError {
	err := schema.Validate(instance)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []schemaError{{Message: fmt.Sprintf("schema: %v", err)}}
	}
	var errs []schemaError
	collectSchemaErrors(ve, &errs)
	return errs
}

func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]schemaError) {
	if len(ve.Causes) > 0 {
		for _, c := range ve.Causes {
			collectSchemaErrors(c, errs)
		}
		return
	}

	// a missing required property is reported at its parent; attribute it to
	// the property itself so callers can map it to a field
	if req, ok := ve.ErrorKind.(*kind.Required); ok && len(ve.InstanceLocation) == 0 {
		for _, m := range req.Missing {
			*errs = append(*errs, schemaError{Field: m, Message: "missing required field"})
		}
		return
	}

	loc := "/" + strings.Join(ve.InstanceLocation, "/")
	field := ""
	if len(ve.InstanceLocation) > 0 {
		field = ve.InstanceLocation[0]
	}
	*errs = append(*errs, schemaError{
		Field:   field,
		Message: fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(defaultPrinter)),
	})
}
