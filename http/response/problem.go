package response

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 problem details body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Extension members
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
	Errors  any    `json:"errors,omitempty"` // field-level validation errors
}

func (p *Problem) Render(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// ErrorProblem sends an RFC 7807 response. title doubles as the error code
// when it is one of the codes in this package.
func ErrorProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string, errors any) {
	prob := &Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  getTraceID(r),
		Errors:   errors,
	}
	if MapStatus(title) == status {
		prob.Code = title
	}
	prob.Render(w)
}
