package epd

import (
	"errors"
	"strings"
)

var errEmptyRecord = errors.New("record is empty")

// Annotation is one "key value" operation of an EPD record.
type Annotation struct {
	Key   string
	Value string
}

// Record is a position followed by semicolon separated annotations, e.g. "<fen>;variant chess;sm e2e4".
type Record struct {
	FEN         string
	Annotations []Annotation
}

// Parse parses one line. Annotations keep their order; a repeated key replaces the earlier value.
func Parse(line string) (Record, error) {
	tokens := strings.Split(strings.TrimSpace(line), ";")

	fen := strings.TrimSpace(tokens[0])
	if fen == "" {
		return Record{}, errEmptyRecord
	}

	record := Record{FEN: fen}

	for _, token := range tokens[1:] {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		key, value, _ := strings.Cut(token, " ")
		record.Set(key, strings.TrimSpace(value))
	}

	return record, nil
}

// Get returns the value of an annotation.
func (r Record) Get(key string) (string, bool) {
	for _, annotation := range r.Annotations {
		if annotation.Key == key {
			return annotation.Value, true
		}
	}
	return "", false
}

// Set updates an annotation in place or appends it.
func (r *Record) Set(key, value string) {
	for i := range r.Annotations {
		if r.Annotations[i].Key == key {
			r.Annotations[i].Value = value
			return
		}
	}
	r.Annotations = append(r.Annotations, Annotation{Key: key, Value: value})
}

// Delete removes an annotation if present.
func (r *Record) Delete(key string) {
	for i := range r.Annotations {
		if r.Annotations[i].Key == key {
			r.Annotations = append(r.Annotations[:i], r.Annotations[i+1:]...)
			return
		}
	}
}

// String formats the record as one line without a trailing newline.
func (r Record) String() string {
	var builder strings.Builder
	builder.WriteString(r.FEN)

	for _, annotation := range r.Annotations {
		builder.WriteByte(';')
		builder.WriteString(annotation.Key)
		if annotation.Value != "" {
			builder.WriteByte(' ')
			builder.WriteString(annotation.Value)
		}
	}

	return builder.String()
}

// IsEmpty returns true for lines that do not contain a record, which are skipped silently.
func IsEmpty(line string) bool {
	return strings.TrimSpace(line) == ""
}
