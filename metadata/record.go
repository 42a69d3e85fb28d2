// Package metadata stores pre-rendered head markup per public path and language.
//
// Records are written in bulk by the population job and only read while
// serving requests.
package metadata

import (
	"errors"
	"fmt"
)

// RecordType tells what kind of content a record was rendered from.
type RecordType string

const (
	TypeFrontPage   RecordType = "front_page"
	TypeContentItem RecordType = "content_item"
)

// Column names usable in a Filter.
const (
	ColumnLangcode     = "langcode"
	ColumnAlias        = "alias"
	ColumnInternalPath = "internal_path"
	ColumnType         = "type"
	ColumnUIPath       = "ui_path"
)

var filterColumns = map[string]bool{
	ColumnLangcode:     true,
	ColumnAlias:        true,
	ColumnInternalPath: true,
	ColumnType:         true,
	ColumnUIPath:       true,
}

// Payload is the structured value stored with every record.
type Payload struct {
	Metatags string            `msgpack:"metatags"`
	Extra    map[string]string `msgpack:"extra,omitempty"`
}

type Record struct {
	Langcode     string
	Alias        string
	InternalPath string
	Type         RecordType
	Payload      Payload
	// RawPayload is the stored blob. Payload is only set when it was decoded.
	RawPayload []byte
	UIPath     string
}

// Filter is an exact-match conjunction of column values.
type Filter map[string]string

type FindOptions struct {
	// Raw skips decoding of the payload blob.
	Raw bool
}

var ErrUnknownColumn = errors.New("unknown filter column")

// PersistenceError is returned when the backing storage cannot be used.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("metadata %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// CorruptRecordError is returned when a stored payload cannot be decoded.
type CorruptRecordError struct {
	Alias    string
	Langcode string
	Err      error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt metadata record %s (%s): %v", e.Alias, e.Langcode, e.Err)
}

func (e *CorruptRecordError) Unwrap() error {
	return e.Err
}
