// Package persist stores exported documents and records their metadata.
//
// Saving is two steps, store then record, and is not transactional: when
// recording fails after a successful store the blob stays behind without a
// metadata row pointing at it.
package persist

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned for a record id or blob key that does not exist.
var ErrNotFound = errors.New("not found")

// Report is the inspection metadata entered when saving.
type Report struct {
	InsuredName   string `json:"insuredName" yaml:"insuredName"`
	PolicyNumber  string `json:"policyNumber" yaml:"policyNumber"`
	Address       string `json:"address" yaml:"address"`
	DateInspected string `json:"dateInspected" yaml:"dateInspected"`
}

// Record is one saved document. ID is assigned by the Recorder and ignored
// when recording.
type Record struct {
	ID string `json:"id,omitempty"`
	Report
	PDFURL    string    `json:"pdfUrl"`
	PageCount int       `json:"pageCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store keeps document bytes and returns a URL they can be fetched from.
type Store interface {
	Store(ctx context.Context, data []byte, suggestedName string) (url string, err error)
}

// Recorder writes metadata records.
type Recorder interface {
	RecordMetadata(ctx context.Context, rec Record) (id string, err error)
}

// Gateway composes a Store and a Recorder.
type Gateway struct {
	Store    Store
	Recorder Recorder
}

// StoreError wraps a failure to store document bytes.
type StoreError struct {
	Name string
	Err  error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Name, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// RecordError wraps a failure to record metadata. URL is the stored blob the
// record would have pointed at.
type RecordError struct {
	URL string
	Err error
}

func (e *RecordError) Error() string { return fmt.Sprintf("record metadata for %s: %v", e.URL, e.Err) }
func (e *RecordError) Unwrap() error { return e.Err }

// Save stores data and then records rec with the resulting URL. Failures are
// returned as *StoreError or *RecordError; a successful store is never rolled
// back.
func (g Gateway) Save(ctx context.Context, data []byte, name string, rec Record) (url, id string, err error) {
	url, err = g.Store.Store(ctx, data, name)
	if err != nil {
		return "", "", &StoreError{Name: name, Err: err}
	}
	rec.PDFURL = url
	id, err = g.Recorder.RecordMetadata(ctx, rec)
	if err != nil {
		return url, "", &RecordError{URL: url, Err: err}
	}
	return url, id, nil
}
