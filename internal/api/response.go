package api

import (
	"encoding/json"
	"net/http"

	"github.com/aopkg/aopkg-server/internal/store"
)

// VersionResponse is the wire shape of one published package version.
type VersionResponse struct {
	Name             string `json:"name"`
	Version          string `json:"version"`
	Author           string `json:"author"`
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	BotType          string `json:"bot_type"`
	BotVersion       string `json:"bot_version"`
	Repository       string `json:"github,omitempty"`
}

func toVersionResponse(rec *store.Version) VersionResponse {
	return VersionResponse{
		Name:             rec.Name,
		Version:          rec.Version.String(),
		Author:           rec.Author,
		ShortDescription: rec.ShortDescription,
		Description:      rec.DescriptionHTML,
		BotType:          string(rec.BotType),
		BotVersion:       rec.BotVersion.String(),
		Repository:       rec.Repository,
	}
}

func toVersionResponses(recs []*store.Version) []VersionResponse {
	out := make([]VersionResponse, len(recs))
	for i, rec := range recs {
		out[i] = toVersionResponse(rec)
	}
	return out
}

// WriteJSONResponse writes a JSON response with the given data.
func WriteJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// WriteErrorResponse writes a standardized error response.
func WriteErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	WriteJSONResponse(w, map[string]string{"error": message}, statusCode)
}
