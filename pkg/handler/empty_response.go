package handler

import "net/http"

type emptyResponse struct {
	status int
}

func (e emptyResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(e.status)
	return nil
}

// Empty responds 204 No Content.
func Empty() Response { return emptyResponse{status: http.StatusNoContent} }

func EmptyWithStatus(status int) Response { return emptyResponse{status: status} }
