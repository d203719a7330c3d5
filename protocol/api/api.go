// api.go specifies the HTTP payloads exchanged between relay clients and the relay.
package api

// Statuses reported by the relay.
const (
	StatusRequestSent   = "request_sent"
	StatusDeviceOffline = "device_offline"
	StatusClipboardSent = "clipboard_sent"
	StatusRecorded      = "recorded"
	StatusRemoved       = "removed"
)

// SendFileRequest asks the relay to offer the file at Filepath to ClientIP.
// Filepath is resolved on the relay host.
type SendFileRequest struct {
	ClientIP string `json:"client_ip"`
	Filename string `json:"filename"`
	Filepath string `json:"filepath"`
}

// ClipboardRequest asks the relay to push Text to ClientIP. An empty Text
// pushes the clipboard of the relay host.
type ClipboardRequest struct {
	ClientIP string `json:"client_ip"`
	Text     string `json:"text"`
}

type StatusResponse struct {
	Status string  `json:"status"`
	IP     *string `json:"ip,omitempty"`
}

type DevicesResponse struct {
	Devices []string `json:"devices"`
}

type DetectIPResponse struct {
	IP string `json:"ip"`
}

type UploadResponse struct {
	Info     string `json:"info"`
	Filename string `json:"filename"`
}

// UploadField is the multipart form field carrying the uploaded file.
const UploadField = "file"
