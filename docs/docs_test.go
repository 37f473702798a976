package docs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"
)

func TestSwaggerDocListsRoutes(t *testing.T) {
	raw, err := swag.ReadDoc(SwaggerInfo.InstanceName())
	require.NoError(t, err)

	var doc struct {
		Paths       map[string]map[string]json.RawMessage `json:"paths"`
		Definitions map[string]json.RawMessage            `json:"definitions"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	routes := map[string]string{
		"/auth/firebase":                "post",
		"/reports":                      "post",
		"/reports/{id}":                 "patch",
		"/reports/{id}/matches":         "get",
		"/reports/{id}/matches/refresh": "post",
		"/matches/{id}/accept":          "patch",
		"/reports/{id}/flags":           "post",
		"/flags/{id}/resolve":           "patch",
		"/notifications/read-all":       "patch",
		"/vision/labels":                "post",
		"/reports/stream":               "get",
		"/reports/{id}/sightings":       "get",
		"/notifications/{id}/read":      "patch",
		"/auth/me/fcm-tokens":           "post",
		"/reports/{id}/status":          "patch",
		"/reports/{id}/photo":           "post",
		"/notifications/unread-count":   "get",
		"/flags":                        "get",
		"/matches/{id}/reject":          "patch",
		"/auth/me/preferences":          "patch",
	}
	for path, method := range routes {
		require.Contains(t, doc.Paths, path)
		require.Contains(t, doc.Paths[path], method, path)
	}

	for _, def := range []string{"reports.Report", "matching.MatchCandidate", "auth.AuthResponse", "response.APIResponse"} {
		require.Contains(t, doc.Definitions, def)
	}
}
