package testutil

import (
	"context"
	"sync"

	"github.com/c360/semwidgets/executor"
)

// FakeTransport answers executor requests with Handler and records them.
type FakeTransport struct {
	mu       sync.Mutex
	requests []executor.Request

	// Handler produces the response. A nil Handler answers 200 with a nil body.
	Handler func(req executor.Request) (*executor.Response, error)
}

// NewFakeTransport returns a transport that always answers 200 with data.
func NewFakeTransport(data any) *FakeTransport {
	return &FakeTransport{
		Handler: func(executor.Request) (*executor.Response, error) {
			return &executor.Response{Status: 200, Data: data}, nil
		},
	}
}

// Do records req and calls Handler.
func (f *FakeTransport) Do(ctx context.Context, req executor.Request) (*executor.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	handler := f.Handler
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if handler == nil {
		return &executor.Response{Status: 200}, nil
	}
	return handler(req)
}

// Requests returns a copy of the recorded requests.
func (f *FakeTransport) Requests() []executor.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]executor.Request(nil), f.requests...)
}

// Calls returns the number of recorded requests.
func (f *FakeTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
