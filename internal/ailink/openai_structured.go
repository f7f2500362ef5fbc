package ailink

import (
	"errors"
	"strings"

	"github.com/codexplain/codexplain/internal/ailink/driver"
	"github.com/codexplain/codexplain/internal/ailink/prompt"
)

const defaultSchemaName = "codexplain_schema"

func responseFormatForProvider(driverName string, def *prompt.Prompt) *driver.ResponseFormat {
	if def == nil || driverName != ProviderOpenAI || len(def.Config.ResponseSchema) == 0 {
		return &driver.ResponseFormat{Type: driver.FormatJSONObject}
	}

	name := strings.TrimSpace(def.Config.Slug)
	if name == "" {
		name = defaultSchemaName
	}
	// OpenAI requires name to be alphanumeric/underscore.
	name = strings.NewReplacer("-", "_", ".", "_").Replace(name)
	return &driver.ResponseFormat{
		Type: driver.FormatJSONSchema,
		JSONSchema: &driver.JSONSchema{
			Name:   name,
			Strict: true,
			Schema: def.Config.ResponseSchema,
		},
	}
}

func isOpenAIUnsupportedSchemaError(err error) bool {
	if err == nil {
		return false
	}
	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil && perr.StatusCode == 400 {
		msg := strings.ToLower(perr.Message)
		return strings.Contains(msg, "json_schema") || strings.Contains(msg, "response_format")
	}
	return false
}

func fallbackToJSONObject(req *driver.Request) bool {
	if req == nil || req.ResponseFormat == nil || req.ResponseFormat.Type != driver.FormatJSONSchema {
		return false
	}
	req.ResponseFormat = &driver.ResponseFormat{Type: driver.FormatJSONObject}
	return true
}
