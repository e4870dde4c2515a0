package pipeline

// Result is the outcome of one pipeline stage: either the request
// continues to the next stage, or the pipeline stops here with a status
// and a plain-text body. Making this explicit keeps the control flow
// visible instead of hiding it in middleware plumbing.
type Result struct {
	final  bool
	status int
	body   string
}

// Continue lets the request proceed to the next stage.
func Continue() Result {
	return Result{}
}

// Reject stops the pipeline with an error response.
func Reject(status int, body string) Result {
	return Result{final: true, status: status, body: body}
}

// Respond stops the pipeline with a success response.
func Respond(status int, body string) Result {
	return Result{final: true, status: status, body: body}
}

// Final reports whether the pipeline stops at this result.
func (r Result) Final() bool { return r.final }

// Status is the HTTP status to send when Final.
func (r Result) Status() int { return r.status }

// Body is the plain-text response body when Final.
func (r Result) Body() string { return r.body }
