package backend

import (
	"context"
	"fmt"
	"sync"
)

// StubEngine is an in-memory fake Engine used by default wiring and by
// tests that don't want to spawn a real backend process. It "loads" any
// file list successfully and copies one of the request's input payloads
// into every declared output (an empty payload when there are no
// inputs), which is enough to exercise the fleet and
// pipeline state machines without a real neural network.
type StubEngine struct {
	// FailLoad, when non-empty, is returned as the error from
	// LoadNetwork for any request whose first file matches it. Lets
	// tests exercise PATH_INVALID / NETWORK_NOT_LOADED without a real
	// filesystem.
	FailLoad map[string]error
	// Declared overrides the IOSpec returned for successfully loaded
	// networks, keyed by the first file path. Nil falls back to a
	// single "input"/"output" pair.
	Declared map[string]IOSpec
	// FailReshape, when non-nil, is returned as the error from every
	// call to Reshape. Lets tests exercise RESHAPE_FAILED.
	FailReshape error

	mu sync.Mutex
	// ReshapeCalls records every ReshapeSpec passed to Reshape, in
	// order, so tests can assert a self-reshape actually happened.
	ReshapeCalls []ReshapeSpec
}

type stubNetwork struct {
	files []string
	io    IOSpec
}

func (n *stubNetwork) Close() error { return nil }

type stubRequest struct{ net *stubNetwork }

func (r *stubRequest) Infer(_ context.Context, inputs map[string][]byte) (map[string][]byte, error) {
	out := make(map[string][]byte, len(r.net.io.Outputs))
	for name := range r.net.io.Outputs {
		if len(inputs) > 0 {
			for _, v := range inputs {
				out[name] = v
				break
			}
			continue
		}
		out[name] = []byte{}
	}
	return out, nil
}

// NewStubEngine constructs a StubEngine with no configured failures.
func NewStubEngine() *StubEngine {
	return &StubEngine{FailLoad: map[string]error{}, Declared: map[string]IOSpec{}}
}

func (e *StubEngine) LoadNetwork(_ context.Context, spec LoadSpec) (LoadedNetwork, IOSpec, error) {
	if len(spec.Files) == 0 {
		return nil, IOSpec{}, fmt.Errorf("path invalid: no files given")
	}
	key := spec.Files[0]
	if err, ok := e.FailLoad[key]; ok {
		return nil, IOSpec{}, err
	}
	io, ok := e.Declared[key]
	if !ok {
		io = IOSpec{
			Inputs:  map[string]TensorSpec{"input": {Datatype: "FP32", Shape: []int{1}}},
			Outputs: map[string]TensorSpec{"output": {Datatype: "FP32", Shape: []int{1}}},
		}
	}
	return &stubNetwork{files: spec.Files, io: io}, io, nil
}

func (e *StubEngine) GetIO(net LoadedNetwork) (IOSpec, error) {
	n, ok := net.(*stubNetwork)
	if !ok {
		return IOSpec{}, fmt.Errorf("not a stub network")
	}
	return n.io, nil
}

func (e *StubEngine) Reshape(_ context.Context, net LoadedNetwork, spec ReshapeSpec) error {
	n, ok := net.(*stubNetwork)
	if !ok {
		return fmt.Errorf("not a stub network")
	}
	e.mu.Lock()
	e.ReshapeCalls = append(e.ReshapeCalls, spec)
	failErr := e.FailReshape
	e.mu.Unlock()
	if failErr != nil {
		return failErr
	}
	_ = n
	return nil
}

// ReshapeCallCount returns how many times Reshape has been called so
// far, safe for concurrent use alongside Reshape itself.
func (e *StubEngine) ReshapeCallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ReshapeCalls)
}

func (e *StubEngine) CreateInferRequest(net LoadedNetwork) (InferRequestHandle, error) {
	n, ok := net.(*stubNetwork)
	if !ok {
		return nil, fmt.Errorf("not a stub network")
	}
	return &stubRequest{net: n}, nil
}
