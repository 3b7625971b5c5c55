package inventory

import (
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/fleetscope/pkg/models"
)

// Diagnostic commands run against every host. All are read-only.
const (
	connTestCommand = "echo CONN_TEST_OK"
	connTestMarker  = "CONN_TEST_OK"
	hardwareCommand = "system_profiler SPHardwareDataType"
	softwareCommand = "system_profiler SPSoftwareDataType"
	networkCommand  = "echo '=== Network Interfaces ===' && " +
		"ifconfig | grep 'inet ' && " +
		"echo '=== Wifi Status ===' && " +
		"/System/Library/PrivateFrameworks/Apple80211.framework/Versions/Current/Resources/airport -I"
	storageCommand  = "df -h /"
	usersCommand    = "dscl . list /Users | grep -v '^_' | grep -v 'daemon' | grep -v 'nobody'"
	graphicsCommand = "system_profiler SPDisplaysDataType"

	wifiSectionMarker = "=== Wifi Status ==="
)

// parser fills fields of rec from one command's output. Missing labels
// leave fields empty; they are never errors.
type parser func(rec *models.InventoryRecord, output string, logger *zap.Logger)

// collector is one diagnostic command and the parser for its output.
type collector struct {
	name    string
	command string
	parse   parser
}

// battery is the fixed set of diagnostics behind one inventory record.
var battery = []collector{
	{name: "hardware", command: hardwareCommand, parse: parseHardware},
	{name: "software", command: softwareCommand, parse: parseSoftware},
	{name: "network", command: networkCommand, parse: parseNetwork},
	{name: "storage", command: storageCommand, parse: parseStorage},
	{name: "users", command: usersCommand, parse: parseUsers},
	{name: "graphics", command: graphicsCommand, parse: parseGraphics},
}

// valueAfterColon returns the trimmed text after the first colon, or "".
func valueAfterColon(line string) string {
	_, v, ok := strings.Cut(line, ":")
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// NormalizeArch maps a chip or processor description onto a canonical
// architecture token. Unknown values pass through unchanged.
func NormalizeArch(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case strings.Contains(v, "arm"), strings.HasPrefix(v, "apple m"):
		return models.ArchARM64
	case strings.Contains(v, "intel"):
		return models.ArchAMD64
	default:
		return value
	}
}

func parseHardware(rec *models.InventoryRecord, output string, logger *zap.Logger) {
	var chip, processorName, processorOther string
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		val := valueAfterColon(line)
		if val == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "Model Name:"):
			rec.ProductName = val
		case strings.HasPrefix(line, "Serial Number"):
			rec.Serial = val
		case strings.HasPrefix(line, "Processor Name"):
			processorName = val
		case strings.HasPrefix(line, "Processor "):
			if processorOther == "" {
				processorOther = val
			}
		case strings.HasPrefix(line, "Memory:"):
			rec.Memory = val
		case strings.HasPrefix(line, "Chip:"):
			chip = val
		}
	}

	rec.Processor = processorName
	if rec.Processor == "" {
		rec.Processor = processorOther
	}

	switch {
	case chip != "":
		rec.Architecture = NormalizeArch(chip)
		if rec.Processor == "" {
			rec.Processor = chip
		}
	case rec.Processor != "":
		// Intel Macs report no Chip line; only a recognized processor
		// family yields an architecture.
		if arch := NormalizeArch(rec.Processor); arch == models.ArchARM64 || arch == models.ArchAMD64 {
			rec.Architecture = arch
		}
	}

	if rec.ProductName == "" && rec.Serial == "" {
		logger.Warn("hardware summary had no recognizable fields")
	}
}

func parseSoftware(rec *models.InventoryRecord, output string, logger *zap.Logger) {
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		val := valueAfterColon(line)
		if val == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "System Version:"):
			rec.OSVersion = val
		case strings.HasPrefix(line, "Computer Name:"):
			rec.Title = val
		case strings.HasPrefix(line, "User Name:"):
			rec.User = val
		}
	}
	if rec.OSVersion == "" {
		logger.Warn("software summary had no system version")
	}
}

func parseNetwork(rec *models.InventoryRecord, output string, logger *zap.Logger) {
	interfaces, wireless, _ := strings.Cut(output, wifiSectionMarker)

	for _, raw := range strings.Split(interfaces, "\n") {
		line := strings.TrimSpace(raw)
		if !strings.HasPrefix(line, "inet ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || strings.HasPrefix(fields[1], "127.") {
			continue
		}
		ip := fields[1]
		switch {
		case rec.LANIP == "":
			rec.LANIP = ip
		case rec.WiFiIP == "" && ip != rec.LANIP:
			rec.WiFiIP = ip
		}
	}

	for _, raw := range strings.Split(wireless, "\n") {
		line := strings.TrimSpace(raw)
		if name, ok := strings.CutPrefix(line, "SSID: "); ok {
			if name = strings.TrimSpace(name); name != "" {
				rec.WiFiName = name
			}
		}
	}

	if rec.LANIP == "" {
		logger.Warn("no non-loopback address in interface listing")
	}
}

func parseStorage(rec *models.InventoryRecord, output string, logger *zap.Logger) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) >= 2 {
		if fields := strings.Fields(lines[1]); len(fields) >= 2 {
			rec.Storage = fields[1]
			return
		}
	}
	logger.Warn("could not parse filesystem usage", zap.Int("lines", len(lines)))
}

func parseUsers(rec *models.InventoryRecord, output string, _ *zap.Logger) {
	users := []string{}
	for _, raw := range strings.Split(output, "\n") {
		if u := strings.TrimSpace(raw); u != "" {
			users = append(users, u)
		}
	}
	rec.HomeUsers = users
}

func parseGraphics(rec *models.InventoryRecord, output string, logger *zap.Logger) {
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "Chipset Model:") {
			if val := valueAfterColon(line); val != "" {
				rec.Graphics = val
				return
			}
		}
	}
	logger.Warn("no graphics chipset information found")
}
