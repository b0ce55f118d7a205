package parse

import (
	"bytes"
	"text/template"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

const errorTemplateStr = `
Validation Errors:
{{ range . }}
- {{ . }}
{{ end }}
`

type ValidationResult struct {
	Valid            bool
	ValidationErrors string
}

// ValidateJSON checks a JSON document against a JSON schema. A failed check is
// not an error: the result carries Valid=false and a rendered error listing.
func ValidateJSON(jsonSchema string, document string) (*ValidationResult, error) {
	schemaLoader := gojsonschema.NewStringLoader(jsonSchema)
	documentLoader := gojsonschema.NewStringLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to validate json")
	}

	validationResult := &ValidationResult{
		Valid: result.Valid(),
	}

	if !result.Valid() {
		var errorDescriptions []string
		for _, desc := range result.Errors() {
			errorDescriptions = append(errorDescriptions, desc.String())
		}

		tmpl, err := template.New("errorTmpl").Parse(errorTemplateStr)
		if err != nil {
			return nil, errors.Wrap(err, "error parsing the template")
		}
		var renderedErrors bytes.Buffer
		err = tmpl.Execute(&renderedErrors, errorDescriptions)
		if err != nil {
			return nil, errors.Wrap(err, "error rendering the template")
		}
		validationResult.ValidationErrors = renderedErrors.String()
	}

	return validationResult, nil
}
