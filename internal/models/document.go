// Package models defines core data structures for documents, queries, search results and history.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Keys of the system fields inside a document's metadata view.
const (
	FieldID         = "id"
	FieldTitle      = "title"
	FieldContent    = "content"
	FieldDocType    = "doc_type"
	FieldInsertedAt = "timestamp"
	FieldDimension  = "dimension"
)

// Document is the unit stored in the metadata store and indexed by the vector index.
// Known system fields are typed; caller-supplied fields live in Fields.
type Document struct {
	ID         string                 `json:"id"`
	Title      string                 `json:"title,omitempty"`
	Content    string                 `json:"content,omitempty"`
	DocType    string                 `json:"doc_type,omitempty"`
	InsertedAt time.Time              `json:"timestamp"`
	Dimension  int                    `json:"dimension"`
	Embedding  []float32              `json:"embedding,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// HasEmbedding reports whether the document carries a vector of its declared dimension.
func (d *Document) HasEmbedding() bool {
	return d.Dimension > 0 && len(d.Embedding) == d.Dimension
}

// Field returns the value stored under key, looking at system fields first.
func (d *Document) Field(key string) (interface{}, bool) {
	switch key {
	case FieldID:
		return d.ID, true
	case FieldTitle:
		return d.Title, d.Title != ""
	case FieldContent:
		return d.Content, d.Content != ""
	case FieldDocType:
		return d.DocType, d.DocType != ""
	case FieldDimension:
		return d.Dimension, true
	case FieldInsertedAt:
		return d.InsertedAt, !d.InsertedAt.IsZero()
	}
	v, ok := d.Fields[key]
	return v, ok
}

// Metadata returns the flat key-value view of the document (system fields merged over Fields).
func (d *Document) Metadata() map[string]interface{} {
	out := make(map[string]interface{}, len(d.Fields)+6)
	for k, v := range d.Fields {
		out[k] = v
	}
	out[FieldID] = d.ID
	if d.Title != "" {
		out[FieldTitle] = d.Title
	}
	if d.Content != "" {
		out[FieldContent] = d.Content
	}
	if d.DocType != "" {
		out[FieldDocType] = d.DocType
	}
	out[FieldInsertedAt] = d.InsertedAt
	out[FieldDimension] = d.Dimension
	return out
}

// DocumentInput is the caller side of an insert: id, embedding and free-form metadata.
type DocumentInput struct {
	ID        string                 `json:"id"`
	Embedding []float32              `json:"embedding"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewDocument merges caller metadata with the system fields. Known string fields
// (title, content, doc_type) are lifted out of the map; caller values for id,
// timestamp and dimension are ignored in favour of the system ones.
func NewDocument(input *DocumentInput, dimension int, now time.Time) (*Document, error) {
	if strings.TrimSpace(input.ID) == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidDocument)
	}
	doc := &Document{
		ID:         input.ID,
		InsertedAt: now.UTC(),
		Dimension:  dimension,
		Embedding:  append([]float32(nil), input.Embedding...),
	}
	for k, v := range input.Metadata {
		switch k {
		case FieldID, FieldInsertedAt, FieldDimension:
			continue
		case FieldTitle, FieldContent, FieldDocType:
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be a string", ErrInvalidDocument, k)
			}
			switch k {
			case FieldTitle:
				doc.Title = s
			case FieldContent:
				doc.Content = s
			default:
				doc.DocType = s
			}
		default:
			if doc.Fields == nil {
				doc.Fields = make(map[string]interface{})
			}
			doc.Fields[k] = v
		}
	}
	return doc, nil
}
