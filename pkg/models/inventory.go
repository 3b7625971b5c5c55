package models

// Canonical architecture tokens reported in InventoryRecord.Architecture.
const (
	ArchARM64 = "aarch64"
	ArchAMD64 = "x86_64"
)

// InventoryRecord is the hardware and software summary of one host.
// Fields the remote output did not provide are left empty.
type InventoryRecord struct {
	Title        string   `json:"title"`
	ProductName  string   `json:"product_name"`
	Serial       string   `json:"serial"`
	OSVersion    string   `json:"version"`
	User         string   `json:"user"`
	NetworkName  string   `json:"network_name"`
	Processor    string   `json:"processor"`
	Architecture string   `json:"architecture"`
	Memory       string   `json:"memory"`
	Graphics     string   `json:"graphics"`
	Storage      string   `json:"storage"`
	LANIP        string   `json:"lan_ip"`
	WiFiIP       string   `json:"wifi_ip"`
	WiFiName     string   `json:"wifi_name"`
	HomeUsers    []string `json:"home_users"`
}

// NewInventoryRecord returns an empty record whose slices are non-nil so the
// JSON form never carries null.
func NewInventoryRecord() *InventoryRecord {
	return &InventoryRecord{HomeUsers: []string{}}
}
