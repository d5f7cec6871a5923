package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSONErrorSetsStatusAndBody(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSONError(rec, http.StatusBadRequest, "bad input")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["error"] != "bad input" {
		t.Fatalf("error field = %v", body["error"])
	}
}

type fakeHTTPError struct{ status int }

func (e fakeHTTPError) Error() string   { return "fake" }
func (e fakeHTTPError) StatusCode() int { return e.status }

func TestStatusForErrorHonorsHTTPErrorInterface(t *testing.T) {
	err := fakeHTTPError{status: http.StatusTeapot}
	if got := statusForError(err); got != http.StatusTeapot {
		t.Fatalf("statusForError = %d, want 418", got)
	}
}

func TestStatusForErrorDefaultsToInternal(t *testing.T) {
	if got := statusForError(errors.New("unmapped")); got != http.StatusInternalServerError {
		t.Fatalf("statusForError = %d, want 500", got)
	}
}
