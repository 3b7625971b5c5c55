package models

// DiscoveryResult is a point-in-time snapshot of a discovery scan. Callers
// poll for a fresh value until ScanComplete is true.
type DiscoveryResult struct {
	Hosts        []string `json:"hosts"`
	ScanComplete bool     `json:"scan_complete"`
	InProgress   bool     `json:"in_progress"`
}
