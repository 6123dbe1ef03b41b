package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"AltPull/internal/domain/models"
)

const runKeyDigestLen = 16

// BuildRunKey returns "{source}-{symbol}-{digest}" where digest is the first 16 hex chars of
// sha256("{source_lower}|{SYMBOL_UPPER}|{start_iso}|{end_iso}"). Equal inputs after case and
// timezone normalization always produce the same key.
func BuildRunKey(in models.RunKeyInputs) string {
	source := strings.ToLower(strings.TrimSpace(in.Source))
	symbol := strings.TrimSpace(in.Symbol)

	payload := strings.Join([]string{source, strings.ToUpper(symbol), isoUTC(in.Start), isoUTC(in.End)}, "|")
	sum := sha256.Sum256([]byte(payload))
	return fmt.Sprintf("%s-%s-%s", source, strings.ToLower(symbol), hex.EncodeToString(sum[:])[:runKeyDigestLen])
}

// isoUTC renders t in UTC as "2006-01-02T15:04:05+00:00", adding 6 fractional digits for
// sub-second values and 9 when nanoseconds are present.
func isoUTC(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	u := t.UTC()
	layout := "2006-01-02T15:04:05-07:00"
	switch ns := u.Nanosecond(); {
	case ns%1000 != 0:
		layout = "2006-01-02T15:04:05.000000000-07:00"
	case ns != 0:
		layout = "2006-01-02T15:04:05.000000-07:00"
	}
	return u.Format(layout)
}
