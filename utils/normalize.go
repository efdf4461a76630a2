package utils

import (
	"reflect"
	"strings"
)

// NormalizePtrDTO trims *string fields on a pointer-to-struct DTO and lower-cases those
// tagged `normalize:"lower"`. Only non-nil pointer fields are touched; nils stay nil so
// GORM won't update them. Nested structs and slices of structs are normalized too.
func NormalizePtrDTO(dto any) {
	v := reflect.ValueOf(dto)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return
	}
	normalizeValue(v.Elem())
}

// NormalizeDTO is NormalizePtrDTO for create DTOs that use non-pointer fields.
func NormalizeDTO(dto any) {
	NormalizePtrDTO(dto)
}

func normalizeValue(s reflect.Value) {
	if s.Kind() != reflect.Struct {
		return
	}
	t := s.Type()
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		if !f.CanSet() {
			continue
		}
		lower := t.Field(i).Tag.Get("normalize") == "lower"
		if f.Kind() == reflect.Ptr {
			if f.IsNil() {
				continue
			}
			f = f.Elem()
		}
		switch f.Kind() {
		case reflect.String:
			str := strings.TrimSpace(f.String())
			if lower {
				str = strings.ToLower(str)
			}
			f.SetString(str)
		case reflect.Struct:
			normalizeValue(f)
		case reflect.Slice:
			for j := 0; j < f.Len(); j++ {
				el := f.Index(j)
				switch el.Kind() {
				case reflect.Struct:
					normalizeValue(el)
				case reflect.String:
					el.SetString(strings.TrimSpace(el.String()))
				}
			}
		}
	}
}
