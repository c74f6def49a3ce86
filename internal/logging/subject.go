package logging

import "strings"

// FormatSubject builds the "Stage · record" prefix used in console output.
// Long record keys are shortened to their last path segment.
func FormatSubject(stage, recordKey string) string {
	stage = strings.TrimSpace(stage)
	recordKey = strings.TrimSpace(recordKey)
	parts := make([]string, 0, 2)
	if stage != "" {
		if len(stage) > 1 {
			parts = append(parts, strings.ToUpper(stage[:1])+strings.ToLower(stage[1:]))
		} else {
			parts = append(parts, strings.ToUpper(stage))
		}
	}
	if recordKey != "" {
		short := strings.TrimRight(recordKey, "/")
		if idx := strings.LastIndex(short, "/"); idx >= 0 && idx < len(short)-1 && len(short) > 48 {
			short = "…/" + short[idx+1:]
		}
		parts = append(parts, short)
	}
	return strings.Join(parts, " · ")
}
