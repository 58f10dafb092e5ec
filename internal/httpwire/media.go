package httpwire

import (
	"net/http"

	"github.com/elnormous/contenttype"
)

var (
	JSONMediaType        = contenttype.NewMediaType("application/json")
	EventStreamMediaType = contenttype.NewMediaType("text/event-stream")
)

// ContentTypeOK reports whether the request body is declared as JSON. A
// missing Content-Type is accepted.
func ContentTypeOK(r *http.Request) bool {
	if r.Header.Get("Content-Type") == "" {
		return true
	}
	mt, err := contenttype.GetMediaType(r)
	return err == nil && mt.Matches(JSONMediaType)
}

// Accepts reports whether the request's Accept header admits mt. A missing
// Accept header admits everything.
func Accepts(r *http.Request, mt contenttype.MediaType) bool {
	if r.Header.Get("Accept") == "" {
		return true
	}
	_, _, err := contenttype.GetAcceptableMediaType(r, []contenttype.MediaType{mt})
	return err == nil
}
