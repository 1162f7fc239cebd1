package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"
)

// Request body schemas, keyed by name.
var requestSchemas = map[string]string{
	"register": `{
		"type": "object",
		"additionalProperties": false,
		"required": ["email", "password"],
		"properties": {
			"email": {"type": "string", "minLength": 3, "maxLength": 254},
			"password": {"type": "string", "minLength": 8, "maxLength": 72},
			"name": {"type": "string", "maxLength": 200}
		}
	}`,
	"login": `{
		"type": "object",
		"additionalProperties": false,
		"required": ["email", "password"],
		"properties": {
			"email": {"type": "string", "minLength": 1},
			"password": {"type": "string", "minLength": 1}
		}
	}`,
	"token": `{
		"type": "object",
		"additionalProperties": false,
		"required": ["token"],
		"properties": {
			"token": {"type": "string", "minLength": 1}
		}
	}`,
	"acceptInvite": `{
		"type": "object",
		"additionalProperties": false,
		"required": ["token", "password"],
		"properties": {
			"token": {"type": "string", "minLength": 1},
			"password": {"type": "string", "minLength": 8, "maxLength": 72},
			"name": {"type": "string", "maxLength": 200}
		}
	}`,
	"resetRequest": `{
		"type": "object",
		"additionalProperties": false,
		"required": ["email"],
		"properties": {
			"email": {"type": "string", "minLength": 1}
		}
	}`,
	"resetConfirm": `{
		"type": "object",
		"additionalProperties": false,
		"required": ["token", "password"],
		"properties": {
			"token": {"type": "string", "minLength": 1},
			"password": {"type": "string", "minLength": 8, "maxLength": 72}
		}
	}`,
	"createAPIKey": `{
		"type": "object",
		"additionalProperties": false,
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 1, "maxLength": 100},
			"scopes": {
				"type": "array",
				"uniqueItems": true,
				"items": {"enum": ["read", "write", "admin"]}
			},
			"expiresAt": {"type": "string", "format": "date-time"}
		}
	}`,
	"invite": `{
		"type": "object",
		"additionalProperties": false,
		"required": ["email"],
		"properties": {
			"email": {"type": "string", "minLength": 3, "maxLength": 254},
			"name": {"type": "string", "maxLength": 200},
			"role": {"enum": ["admin", "member", "viewer"]}
		}
	}`,
	"changeRole": `{
		"type": "object",
		"additionalProperties": false,
		"required": ["role"],
		"properties": {
			"role": {"enum": ["admin", "member", "viewer"]}
		}
	}`,
	"createWorkflow": `{
		"type": "object",
		"additionalProperties": false,
		"required": ["goal"],
		"properties": {
			"goal": {"type": "string", "minLength": 1, "maxLength": 10000}
		}
	}`,
	"executeWorkflow": `{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"inputs": {},
			"async": {"type": "boolean"}
		}
	}`,
	"createTenant": `{
		"type": "object",
		"additionalProperties": false,
		"required": ["name", "slug"],
		"properties": {
			"name": {"type": "string", "minLength": 1, "maxLength": 200},
			"slug": {"type": "string", "pattern": "^[a-z0-9][a-z0-9-]{1,62}$"},
			"plan": {"enum": ["free", "pro", "enterprise"]},
			"quotas": {"$ref": "#/definitions/quotas"},
			"adminEmail": {"type": "string", "minLength": 3, "maxLength": 254},
			"adminName": {"type": "string", "maxLength": 200}
		},
		"definitions": ` + quotasSchema + `
	}`,
	"updateTenant": `{
		"type": "object",
		"additionalProperties": false,
		"minProperties": 1,
		"properties": {
			"name": {"type": "string", "minLength": 1, "maxLength": 200},
			"status": {"enum": ["active", "suspended", "pending"]},
			"plan": {"enum": ["free", "pro", "enterprise"]},
			"quotas": {"$ref": "#/definitions/quotas"}
		},
		"definitions": ` + quotasSchema + `
	}`,
}

const quotasSchema = `{
	"quotas": {
		"type": "object",
		"additionalProperties": false,
		"required": ["maxUsers", "maxAgents", "maxExecutionsPerMonth", "maxTokensPerMonth"],
		"properties": {
			"maxUsers": {"type": "integer", "minimum": 0},
			"maxAgents": {"type": "integer", "minimum": 0},
			"maxExecutionsPerMonth": {"type": "integer", "minimum": 0},
			"maxTokensPerMonth": {"type": "integer", "minimum": 0}
		}
	}
}`

var compiledSchemas = mustCompileSchemas(requestSchemas)

func mustCompileSchemas(sources map[string]string) map[string]*santhosh.Schema {
	out := make(map[string]*santhosh.Schema, len(sources))
	for name, src := range sources {
		compiler := santhosh.NewCompiler()
		compiler.Draft = santhosh.Draft7
		compiler.AssertFormat = true
		url := name + ".json"
		if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
			panic(fmt.Sprintf("request schema %s: %v", name, err))
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			panic(fmt.Sprintf("request schema %s: %v", name, err))
		}
		out[name] = schema
	}
	return out
}

// decodeBody reads one JSON document, validates it against the named schema
// and decodes it into dst. An empty body is treated as {}. On failure the
// 400 response is already written.
func decodeBody(w http.ResponseWriter, r *http.Request, schemaName string, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		data = []byte("{}")
	}

	var doc any
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	if err := compiledSchemas[schemaName].Validate(doc); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func validationMessage(err error) string {
	var ve *santhosh.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	return strings.Join(collectValidationErrors(ve), "; ")
}

func collectValidationErrors(ve *santhosh.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{loc + ": " + ve.Message}
	}
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectValidationErrors(cause)...)
	}
	return msgs
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}
