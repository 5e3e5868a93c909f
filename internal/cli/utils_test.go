package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/curator/internal/models"
)

func sampleResults() []*models.RetrievalResult {
	return []*models.RetrievalResult{
		{
			Rank:        1,
			ID:          "c-1",
			Content:     "【技术特点与预期效果】\n\n作品名称：光影回廊",
			Metadata:    models.Metadata{"type": "tech_info", "item_name": "光影回廊", "zone": "A区"},
			Similarity:  0.82,
			Relevance:   0.91,
			Tier:        models.TierHigh,
			Explanation: "排名第1，高度相关（相似度 0.82），内容包含查询关键词",
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, "RFID", sampleResults(), OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded struct {
		Query   string                    `json:"query"`
		Count   int                       `json:"count"`
		Results []*models.RetrievalResult `json:"results"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Query != "RFID" || decoded.Count != 1 || decoded.Results[0].ID != "c-1" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, "RFID", sampleResults(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Found 1 results", "#1 | relevance 0.9100", "光影回廊 (A区)", "排名第1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	_ = WriteSearchResults(&buf, "无", nil, OutputText)
	if !strings.Contains(buf.String(), "No results") {
		t.Errorf("empty output: %s", buf.String())
	}
}

func TestWriteStats_Text(t *testing.T) {
	stats := &models.CollectionStats{
		TotalCount:  12,
		SampleSize:  12,
		ByType:      map[string]int{"tech_info": 2, "basic_info": 4},
		ByCategory:  map[string]int{"工业设计": 6},
		Zones:       []string{"A区", "B区"},
		Authors:     []string{"张三"},
		GeneratedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		FromCache:   true,
	}
	var buf bytes.Buffer
	if err := WriteStats(&buf, stats, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Chunks: 12 (sampled 12, cached at 2024-05-01 09:30:00)") {
		t.Errorf("header line missing:\n%s", out)
	}
	if strings.Index(out, "basic_info") > strings.Index(out, "tech_info") {
		t.Errorf("types should be sorted:\n%s", out)
	}
	if !strings.Contains(out, "Zones: A区、B区") {
		t.Errorf("zones line missing:\n%s", out)
	}
}

func TestWriteReport_Text(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	report := &models.IngestReport{
		RunID:            "run-1",
		Status:           models.RunStatusSucceeded,
		StartedAt:        start,
		FinishedAt:       start.Add(1500 * time.Millisecond),
		Files:            []string{"/data/a.xlsx"},
		SkippedFiles:     []string{"/data/old.xls"},
		RemovedSources:   []string{"/data/gone.xlsx"},
		FailedSheets:     []models.SheetFailure{{Source: "/data/a.xlsx", Sheet: "坏表", Error: "boom"}},
		Records:          3,
		TypeDistribution: map[string]int{"basic_info": 3},
	}
	var buf bytes.Buffer
	if err := WriteReport(&buf, report, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Run run-1 succeeded in 1.5s", "records: 3", "skipped: /data/old.xls", "removed: /data/gone.xlsx", "failed: /data/a.xlsx [坏表]: boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteItems(t *testing.T) {
	items := []*models.Item{{Zone: "A区", Category: "艺术与科技", Name: "光影回廊", Authors: "张三"}}
	var buf bytes.Buffer
	if err := WriteItems(&buf, items, 5, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "光影回廊 / 张三") || !strings.Contains(buf.String(), "1 of 5 items") {
		t.Errorf("output:\n%s", buf.String())
	}

	buf.Reset()
	if err := WriteItems(&buf, nil, 0, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"items": []`) {
		t.Errorf("nil items should encode as []:\n%s", buf.String())
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"json", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}
