// Package common provides configuration, logging and identifier helpers.
//
// Configuration strings may reference keys of the key/value store with the
// {key-name} syntax, e.g. token = "{tushare_token}". References are replaced
// after the TOML files are merged; unknown keys are logged and left in place.
package common

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/ternarybob/arbor"
)

// keyRefPattern matches {key-name} references in strings
var keyRefPattern = regexp.MustCompile(`\{([a-zA-Z0-9_-]+)\}`)

// ReplaceKeyReferences replaces every {key-name} reference in input with its KV value.
func ReplaceKeyReferences(input string, kvMap map[string]string, logger arbor.ILogger) string {
	if input == "" {
		return input
	}

	return keyRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		keyName := match[1 : len(match)-1]
		if value, ok := kvMap[keyName]; ok {
			return value
		}
		logger.Warn().
			Str("reference", match).
			Msg("Unresolved key reference - key not found in KV store")
		return match
	})
}

// ReplaceInStruct replaces {key-name} references in the string and []string
// fields of a struct pointer, descending into nested structs.
func ReplaceInStruct(v interface{}, kvMap map[string]string, logger arbor.ILogger) error {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("ReplaceInStruct requires a struct pointer, got %T", v)
	}
	replaceInValue(val.Elem(), kvMap, logger)
	return nil
}

func replaceInValue(val reflect.Value, kvMap map[string]string, logger arbor.ILogger) {
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if !field.CanSet() {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			if replaced := ReplaceKeyReferences(field.String(), kvMap, logger); replaced != field.String() {
				field.SetString(replaced)
				logger.Debug().Str("field", val.Type().Field(i).Name).Msg("Replaced key reference in config field")
			}
		case reflect.Struct:
			replaceInValue(field, kvMap, logger)
		case reflect.Slice:
			if field.Type().Elem().Kind() != reflect.String {
				continue
			}
			for j := 0; j < field.Len(); j++ {
				elem := field.Index(j)
				elem.SetString(ReplaceKeyReferences(elem.String(), kvMap, logger))
			}
		}
	}
}
