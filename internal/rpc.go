package internal

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/voltsys/batlog/libraries/server"
)

func writeJSON(w http.ResponseWriter, data interface{}) {
	server.WriteJSON(w, http.StatusOK, data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	server.WriteError(w, code, message)
}

type StatusResponse struct {
	Version     string      `json:"version"`
	Uptime      string      `json:"uptime"`
	Store       StoreInfo   `json:"store"`
	Poller      PollerStats `json:"poller"`
	Subscribers int         `json:"subscribers"`
}

func HandleStatus(version string, started time.Time, logs *LogStore, poller *Poller, broadcaster *RecordBroadcaster, w http.ResponseWriter, r *http.Request) {
	info, err := logs.Info()
	if err != nil {
		writeError(w, fmt.Sprintf("store scan failed: %v", err), http.StatusInternalServerError)
		return
	}
	metricStoreBytes.Set(float64(info.TotalBytes))

	resp := StatusResponse{
		Version: version,
		Uptime:  time.Since(started).Round(time.Second).String(),
		Store:   info,
	}
	if poller != nil {
		resp.Poller = poller.Stats()
	}
	if broadcaster != nil {
		resp.Subscribers = broadcaster.SubscriberCount()
	}
	writeJSON(w, resp)
}

type DeviceSummary struct {
	Serial  string    `json:"serial"`
	Records int       `json:"records"`
	Bytes   int64     `json:"bytes"`
	Meta    *SyncMeta `json:"meta,omitempty"`
}

func HandleDevices(logs *LogStore, meta *MetaStore, w http.ResponseWriter, r *http.Request) {
	serials, err := logs.Serials()
	if err != nil {
		writeError(w, fmt.Sprintf("store scan failed: %v", err), http.StatusInternalServerError)
		return
	}

	devices := make([]DeviceSummary, 0, len(serials))
	for _, serial := range serials {
		summary := DeviceSummary{Serial: serial}
		if count, err := logs.EntryCount(serial); err == nil {
			summary.Records = count
		}
		if size, err := logs.Size(serial); err == nil {
			summary.Bytes = size
		}
		if m, err := meta.Read(serial); err == nil {
			summary.Meta = &m
		}
		devices = append(devices, summary)
	}
	writeJSON(w, devices)
}

type DeviceLogResponse struct {
	Serial  string      `json:"serial"`
	Records []LogRecord `json:"records"`
	Total   int         `json:"total"`
}

// HandleDeviceLog returns the stored records for one device. An
// optional ?limit=N returns only the trailing N.
func HandleDeviceLog(logs *LogStore, serial string, w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	total, err := logs.EntryCount(serial)
	if err == ErrNotFound {
		writeError(w, fmt.Sprintf("no log for serial %s", serial), http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, fmt.Sprintf("log read failed: %v", err), http.StatusInternalServerError)
		return
	}

	var records []LogRecord
	if limit > 0 {
		records, err = logs.ReadLast(serial, limit)
	} else {
		records, err = logs.ReadAll(serial)
	}
	if err != nil {
		writeError(w, fmt.Sprintf("log read failed: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, DeviceLogResponse{Serial: serial, Records: records, Total: total})
}

func HandleDeviceReport(logs *LogStore, serial string, w http.ResponseWriter, r *http.Request) {
	report, err := BuildLogReport(logs, serial)
	if err == ErrNotFound {
		writeError(w, fmt.Sprintf("no log for serial %s", serial), http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, fmt.Sprintf("report failed: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, report)
}

func HandleDeviceExport(logs *LogStore, serial string, w http.ResponseWriter, r *http.Request) {
	if !logs.Exists(serial) {
		writeError(w, fmt.Sprintf("no log for serial %s", serial), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", serial+".blx"))
	if _, err := ExportLog(logs, serial, w); err != nil && err != ErrNotFound {
		writeError(w, fmt.Sprintf("export failed: %v", err), http.StatusInternalServerError)
	}
}

// DeviceSerialFromPath extracts the serial from /device/{serial}/{op}
// paths.
func DeviceSerialFromPath(path, suffix string) (string, bool) {
	trimmed := strings.TrimPrefix(path, "/device/")
	trimmed = strings.TrimSuffix(trimmed, suffix)
	if trimmed == "" || strings.Contains(trimmed, "/") || strings.Contains(trimmed, "..") {
		return "", false
	}
	return trimmed, true
}
