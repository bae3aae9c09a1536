package domain

import (
	"strconv"
	"unicode/utf8"
)

const (
	maxUsernameLen = 50
	maxNameLen     = 100
	maxTitleLen    = 200
)

type validator struct {
	fields []FieldError
}

func (v *validator) length(field, value string, min, max int) {
	n := utf8.RuneCountInString(value)
	switch {
	case n < min:
		v.add(field, "must not be empty")
	case n > max:
		v.add(field, "must be at most "+strconv.Itoa(max)+" characters")
	}
}

func (v *validator) required(field string, present bool) {
	if !present {
		v.add(field, "is required")
	}
}

func (v *validator) order(field string, value *int) {
	if value != nil && *value < 0 {
		v.add(field, "must not be negative")
	}
}

func (v *validator) add(field, msg string) {
	v.fields = append(v.fields, FieldError{Field: field, Message: msg})
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}
