package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"dungeonload/internal/engine"
	"dungeonload/internal/stats"
)

// ExportCSV exports samples to a JMeter-compatible CSV file.
// Schema: timeStamp,elapsed,label,responseCode,responseMessage,threadName,dataType,success,failureMessage,bytes,sentBytes,grpThreads,allThreads,URL,Latency,IdleTime,Connect
func ExportCSV(samples []stats.RequestSample, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := []string{
		"timeStamp", "elapsed", "label", "responseCode", "responseMessage",
		"threadName", "dataType", "success", "failureMessage", "bytes",
		"sentBytes", "grpThreads", "allThreads", "URL", "Latency", "IdleTime", "Connect",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, s := range samples {
		ms := strconv.FormatInt(s.Duration.Milliseconds(), 10)
		record := []string{
			strconv.FormatInt(s.Timestamp.UnixMilli(), 10),
			ms,
			s.Endpoint,
			strconv.Itoa(s.StatusCode),
			http.StatusText(s.StatusCode),
			fmt.Sprintf("VU-%d", s.VU),
			"text",
			strconv.FormatBool(!s.Failed),
			s.Err,
			strconv.FormatInt(s.Bytes, 10),
			"0", // sent bytes are not tracked
			"1",
			"1",
			s.URL,
			ms,
			"0",
			"0", // connect time is part of elapsed
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// ExportJSON exports samples to a JSON file.
func ExportJSON(samples []stats.RequestSample, filename string) error {
	return writeJSON(samples, filename)
}

// ExportSummary writes the frozen summary and threshold report of a run.
func ExportSummary(res *engine.Result, filename string) error {
	return writeJSON(res, filename)
}

// Files names the outputs written by ExportAll for prefix.
func Files(prefix string) (csvFile, jsonFile, summaryFile string) {
	return prefix + ".csv", prefix + ".json", prefix + "_summary.json"
}

// ExportAll writes the CSV, JSON, timeline and summary exports next to each
// other. Sample exports are skipped when no samples were kept.
func ExportAll(res *engine.Result, samples []stats.RequestSample, prefix string) error {
	csvFile, jsonFile, summaryFile := Files(prefix)
	if len(samples) > 0 {
		if err := ExportCSV(samples, csvFile); err != nil {
			return fmt.Errorf("export csv: %w", err)
		}
		if err := ExportJSON(samples, jsonFile); err != nil {
			return fmt.Errorf("export json: %w", err)
		}
		if err := ExportTimeline(samples, TimelineFile(prefix)); err != nil {
			return fmt.Errorf("export timeline: %w", err)
		}
	}
	if err := ExportSummary(res, summaryFile); err != nil {
		return fmt.Errorf("export summary: %w", err)
	}
	return nil
}

func writeJSON(v any, filename string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
