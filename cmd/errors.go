package cmd

import "fmt"

// InvalidSettingError reports a flag, config key or environment value that
// cannot be used.
type InvalidSettingError struct {
	Name   string
	Value  string
	Reason string
}

func (e *InvalidSettingError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid value %q for %s", e.Value, e.Name)
	}
	return fmt.Sprintf("invalid value %q for %s: %s", e.Value, e.Name, e.Reason)
}

// ScanFailedError signals that one or more targets could not be scanned.
type ScanFailedError struct {
	Target string
	Failed int
	Total  int
}

func (e *ScanFailedError) Error() string {
	switch {
	case e.Total <= 1 && e.Target != "":
		return fmt.Sprintf("scan of %s failed", e.Target)
	case e.Total > 1:
		return fmt.Sprintf("%d of %d scans failed", e.Failed, e.Total)
	}
	return "scan failed"
}
