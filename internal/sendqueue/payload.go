package sendqueue

import (
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/roach88/bizsync/internal/entity"
	"github.com/roach88/bizsync/internal/store"
)

var allowedMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// isJSONContentType reports whether ct is application/json or a +json type.
func isJSONContentType(ct string) bool {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// normalize validates req and returns the payload to store.
// JSON payloads are rewritten in canonical form.
func normalize(req Request) (Request, error) {
	req.Method = strings.ToUpper(strings.TrimSpace(req.Method))
	if !allowedMethods[req.Method] {
		return req, fmt.Errorf("%w: method %q", ErrInvalidRequest, req.Method)
	}
	if strings.TrimSpace(req.Path) == "" {
		return req, fmt.Errorf("%w: empty path", ErrInvalidRequest)
	}
	if req.ContentType == "" {
		req.ContentType = "application/json"
	}
	if len(req.Payload) == 0 {
		if req.Method != http.MethodDelete {
			return req, fmt.Errorf("%w: empty payload for %s", ErrInvalidRequest, req.Method)
		}
		return req, nil
	}
	if isJSONContentType(req.ContentType) {
		canonical, err := entity.Canonicalize(req.Payload)
		if err != nil {
			return req, fmt.Errorf("%w: payload does not match content type %s: %v", ErrInvalidRequest, req.ContentType, err)
		}
		req.Payload = canonical
	}
	return req, nil
}

// validateEntry reports why a stored entry can never be delivered.
func validateEntry(e store.QueueEntry) error {
	if !allowedMethods[e.Method] {
		return fmt.Errorf("%w: method %q", ErrInvalidPayload, e.Method)
	}
	if e.Path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPayload)
	}
	if len(e.Payload) > 0 && isJSONContentType(e.ContentType) && !entity.IsJSON(e.Payload) {
		return fmt.Errorf("%w: payload is not %s", ErrInvalidPayload, e.ContentType)
	}
	if e.Digest != "" && e.Digest != payloadDigest(e.Payload) {
		return fmt.Errorf("%w: digest mismatch", ErrInvalidPayload)
	}
	return nil
}

func payloadDigest(payload []byte) string {
	return entity.Digest(entity.DomainQueuePayload, payload)
}
