// Package transporttest provides a scripted Transport for tests.
package transporttest

import (
	"context"
	"fmt"
	"sync"
)

// Call is one recorded transport invocation.
type Call struct {
	Op        string
	URL       string
	FieldName string
	FilePath  string
}

// Response is a scripted reply; Err takes precedence over Body.
type Response struct {
	Body []byte
	Err  error
}

// Recorder records every call and answers from a FIFO of scripted responses.
type Recorder struct {
	mu        sync.Mutex
	calls     []Call
	responses []Response
}

// New creates a recorder that will answer with the given responses in order.
func New(responses ...Response) *Recorder {
	return &Recorder{responses: responses}
}

// JSON is shorthand for a successful response with a literal body.
func JSON(body string) Response {
	return Response{Body: []byte(body)}
}

// Fail is shorthand for a failed response.
func Fail(err error) Response {
	return Response{Err: err}
}

// Push appends more scripted responses.
func (r *Recorder) Push(responses ...Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, responses...)
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *Recorder) Get(_ context.Context, url string) ([]byte, error) {
	return r.next(Call{Op: "GET", URL: url})
}

func (r *Recorder) PostMultipart(_ context.Context, url, fieldName, filePath string) ([]byte, error) {
	return r.next(Call{Op: "POST", URL: url, FieldName: fieldName, FilePath: filePath})
}

func (r *Recorder) next(call Call) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	if len(r.responses) == 0 {
		return nil, fmt.Errorf("transporttest: no scripted response for %s %s", call.Op, call.URL)
	}
	resp := r.responses[0]
	r.responses = r.responses[1:]
	if resp.Err != nil {
		return nil, resp.Err
	}
	return resp.Body, nil
}
