package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/modeld/fleet/internal/modelfleet"
	"github.com/modeld/fleet/internal/pipeline"
)

// HTTPError lets a Service error carry its own HTTP status code.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg, "code": status})
}

// statusForError maps a core error kind (spec §7 taxonomy) to the HTTP
// status the transport layer surfaces it as.
func statusForError(err error) int {
	switch {
	case modelfleet.IsModelNameMissing(err), modelfleet.IsModelVersionMissing(err),
		modelfleet.IsVersionNotLoadedYet(err), modelfleet.IsVersionNotLoadedAnymore(err),
		pipeline.IsDefinitionNameMissing(err):
		return http.StatusNotFound
	case modelfleet.IsTooBusy(err):
		return http.StatusTooManyRequests
	case modelfleet.IsPathInvalid(err), modelfleet.IsNetworkNotLoaded(err), modelfleet.IsReshapeFailed(err),
		modelfleet.IsDeviceUnavailable(err),
		pipeline.IsDefinitionAlreadyExists(err), pipeline.IsNodeNameDuplicate(err),
		pipeline.IsMissingEntryOrExit(err), pipeline.IsMultipleEntryNodes(err), pipeline.IsMultipleExitNodes(err),
		pipeline.IsForbiddenModelDynamicParameter(err), pipeline.IsMissingDependency(err),
		pipeline.IsMissingOutput(err), pipeline.IsMissingInput(err), pipeline.IsMissingDependencyMapping(err),
		pipeline.IsCycleFound(err), pipeline.IsUnconnectedNodes(err):
		return http.StatusBadRequest
	default:
		if he, ok := err.(HTTPError); ok {
			return he.StatusCode()
		}
		return http.StatusInternalServerError
	}
}
