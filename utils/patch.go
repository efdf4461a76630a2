package utils

import (
	"reflect"
	"strconv"
	"strings"
)

// UpdatesFromPtrDTO builds a map[string]any containing only non-nil *fields from a pointer DTO.
// It uses the `json` tag (before any comma options) as the column/key name.
// A non-nil pointer to a struct is flattened with its json name as prefix, so an *Address
// field tagged "address" yields "address_city", "address_street", ... matching GORM's
// embeddedPrefix. Optionally provide a renames map to translate json->db column
// (e.g., {"assigned_to":"assigned_to_id"}).
func UpdatesFromPtrDTO(dto any, renames map[string]string) map[string]any {
	res := make(map[string]any)
	v := reflect.ValueOf(dto)
	if v.Kind() != reflect.Ptr {
		return res
	}
	s := v.Elem()
	if s.Kind() != reflect.Struct {
		return res
	}
	t := s.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		fv := s.Field(i)
		if fv.Kind() != reflect.Ptr || fv.IsNil() {
			continue
		}
		name := jsonName(sf)
		if name == "" {
			continue
		}
		if renames != nil {
			if alt, ok := renames[name]; ok && alt != "" {
				name = alt
			}
		}
		ev := fv.Elem()
		if ev.Kind() == reflect.Struct && ev.Type().PkgPath() != "time" {
			flattenStruct(ev, name+"_", res)
			continue
		}
		res[name] = ev.Interface()
	}
	return res
}

func flattenStruct(s reflect.Value, prefix string, res map[string]any) {
	t := s.Type()
	for i := 0; i < t.NumField(); i++ {
		name := jsonName(t.Field(i))
		if name == "" {
			continue
		}
		res[prefix+name] = s.Field(i).Interface()
	}
}

func jsonName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if tag == "" || tag == "-" {
		return ""
	}
	return strings.Split(tag, ",")[0]
}

// ParseIntDefault parses a non-negative int, returning def for anything else.
func ParseIntDefault(s string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && v >= 0 {
		return v
	}
	return def
}
