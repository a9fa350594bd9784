package media

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrMediaNotFound = errors.New("media not found")
	ErrLinkNotFound  = errors.New("media link not found")
)

// Rule kinds reported by ValidationError.
const (
	RuleResource   = "resource"
	RuleAccess     = "access"
	RulePermission = "permission"
	RuleSize       = "size"
	RulePixels     = "pixels"
	RuleExtension  = "extension"
	RuleMimeType   = "mimeType"
	RuleOwner      = "owner"
	RuleField      = "field"
)

// ValidationError maps a field name to the first rule it failed.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func invalid(field, rule string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: rule}}
}
