package shared

import (
	"encoding/json"
	"io"
	"net/http"
)

// Request bodies on this API are small JSON documents (credentials, a
// handful of sources); anything bigger is a client bug or abuse.
const maxRequestBody = 1 << 20

// DecodeJSON decodes the request body into v, rejecting unknown fields
// and bodies over 1 MiB. Source content itself never travels in a
// request body here: file sources are references into the document
// store, not uploads.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
