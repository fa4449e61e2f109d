package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

const gradeResponseFixture = `{
  "batch_id": "b-1",
  "total_files": 2,
  "success_count": 1,
  "error_count": 1,
  "average_score": 51.5,
  "download_result_url": "/api/download/result/b-1",
  "download_error_url": "/api/download/error/b-1",
  "items": [
    {"file_name": "a.docx", "student_id": "2024001", "student_name": "Lin", "score": 51.5, "score_rubric_max": 100, "score_rubric": 85.8,
     "detail_json": "{\"Structure\":9}", "comment": "Solid", "status": "success", "error_message": null, "raw_text_length": 4096,
     "raw_response": "{\"very\":\"large\"}", "aggregate_strategy": "mean", "grader_results": [{"model":"m1","score":50},{"model":"m2","score":53}]},
    {"file_name": "b.txt", "student_id": null, "student_name": null, "score": null, "score_rubric_max": null, "score_rubric": null,
     "detail_json": null, "comment": null, "status": "error", "error_message": "empty file", "raw_text_length": 0, "raw_response": "oops"}
  ]
}`

func TestSanitizeForCacheStripsOnlyRawResponse(t *testing.T) {
	var resp GradeResponse
	require.NoError(t, json.Unmarshal([]byte(gradeResponseFixture), &resp))

	sanitized := resp.SanitizeForCache()

	require.NotNil(t, resp.Items[0].RawResponse, "original must not be mutated")

	originalItems := itemsAsMaps(t, resp)
	sanitizedItems := itemsAsMaps(t, sanitized)
	require.Len(t, sanitizedItems, len(originalItems))
	for i := range originalItems {
		require.Equal(t, "null", string(sanitizedItems[i]["raw_response"]))
		delete(originalItems[i], "raw_response")
		delete(sanitizedItems[i], "raw_response")
		require.Equal(t, originalItems[i], sanitizedItems[i])
	}

	require.Equal(t, resp.BatchID, sanitized.BatchID)
	require.Equal(t, resp.TotalFiles, sanitized.TotalFiles)
	require.Equal(t, *resp.AverageScore, *sanitized.AverageScore)
	require.Equal(t, resp.DownloadResultURL, sanitized.DownloadResultURL)
}

func itemsAsMaps(t *testing.T, resp GradeResponse) []map[string]json.RawMessage {
	t.Helper()
	out := make([]map[string]json.RawMessage, 0, len(resp.Items))
	for _, item := range resp.Items {
		encoded, err := json.Marshal(item)
		require.NoError(t, err)
		var fields map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(encoded, &fields))
		out = append(out, fields)
	}
	return out
}

func TestDefaultGradeConfig(t *testing.T) {
	cfg := DefaultGradeConfig()
	require.Equal(t, "auto", cfg.Template)
	require.True(t, cfg.SkipFormatCheck)
	require.Equal(t, 60.0, cfg.ScoreTargetMax)
	require.NotNil(t, cfg.Models)

	clone := cfg.Clone()
	clone.Models = append(clone.Models, ModelEndpoint{APIURL: "http://x"})
	require.Empty(t, cfg.Models)
}
