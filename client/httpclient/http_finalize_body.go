package httpclient

import (
	"fmt"
	"net/http"

	"github.com/joy-dx/gosession/utils"
)

// FinalizeBody prepares BodyBytes and ContentType exactly once per call.
// Rules:
// - If BodyBytes is already set, we respect it.
// - GET and HEAD with an empty Body send no body at all.
// - Otherwise we build BodyBytes from Body+BodyType.
func (r *HTTPRequest) FinalizeBody() error {
	if r.BodyBytes != nil {
		return nil
	}
	if len(r.Body) == 0 && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		return nil
	}

	bodyBuf, ct, err := utils.PrepareBody(r.Body, r.BodyType)
	if err != nil {
		return fmt.Errorf("prepare body: %w", err)
	}

	r.BodyBytes = bodyBuf
	// Prefer explicit ContentType if some middleware set it.
	if r.ContentType == "" {
		r.ContentType = ct
	}
	return nil
}
