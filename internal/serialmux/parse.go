package serialmux

import "strings"

// Line kinds reported by AT-command modems.
const (
	LineOK      = "ok"
	LineError   = "error"
	LineGPSInfo = "gps_info"
	LineEcho    = "echo"
	LineUnknown = "unknown"
)

// GPSInfoToken prefixes the modem's reply to a position-info query.
const GPSInfoToken = "+CGPSINFO:"

// ClassifyLine inspects a line read from the modem and returns a simple kind
// token. Modems with echo enabled repeat every command back, so lines that
// start with "AT" are reported as echoes.
func ClassifyLine(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case line == "OK":
		return LineOK
	case line == "ERROR" || strings.HasPrefix(line, "+CME ERROR"):
		return LineError
	case strings.Contains(line, GPSInfoToken):
		return LineGPSInfo
	case strings.HasPrefix(strings.ToUpper(line), "AT"):
		return LineEcho
	default:
		return LineUnknown
	}
}
