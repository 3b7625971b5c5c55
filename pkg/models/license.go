package models

// LicenseBand classifies how long a license remains valid.
type LicenseBand string

const (
	LicenseExpired LicenseBand = "expired"
	LicenseWarning LicenseBand = "warning"
	LicenseNotice  LicenseBand = "notice"
	LicenseOK      LicenseBand = "ok"
	LicenseError   LicenseBand = "error"
)

// LicenseStatus is the displayable outcome of a license check. Failures are
// carried in Status and Error rather than returned as Go errors.
type LicenseStatus struct {
	Host     string      `json:"host"`
	Status   string      `json:"status"`
	Error    string      `json:"error,omitempty"`
	DebugLog string      `json:"debug_log"`
	Band     LicenseBand `json:"band"`
	Expires  string      `json:"expires,omitempty"`
	Days     int         `json:"days"`
}

// SoftwareInfo aggregates the license checks run against a host.
type SoftwareInfo struct {
	CometLicenseExpiry string `json:"priint_comet_2017_expiry"`
}
