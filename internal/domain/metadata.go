package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	MetaFilePath  = "file_path"
	MetaCaption   = "caption"
	MetaFileName  = "file_name"
	MetaTimestamp = "timestamp"
	MetaMimeType  = "mime_type"
)

// AssetMetadata is stored beside every vector. FilePath holds the public file locator;
// the key name is kept so records written by earlier tooling stay readable.
type AssetMetadata struct {
	FilePath  string
	Caption   string
	FileName  string
	MimeType  string
	Timestamp float64
}

func (m AssetMetadata) ToMap() map[string]any {
	out := map[string]any{
		MetaFilePath:  m.FilePath,
		MetaCaption:   m.Caption,
		MetaFileName:  m.FileName,
		MetaTimestamp: m.Timestamp,
	}
	if m.MimeType != "" {
		out[MetaMimeType] = m.MimeType
	}
	return out
}

// CreatedAt converts the unix-seconds timestamp back to a time.
func (m AssetMetadata) CreatedAt() time.Time {
	if m.Timestamp <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(m.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// MetadataFromMap reads index metadata leniently; missing keys stay zero.
func MetadataFromMap(in map[string]any) AssetMetadata {
	return AssetMetadata{
		FilePath:  metaString(in[MetaFilePath]),
		Caption:   metaString(in[MetaCaption]),
		FileName:  metaString(in[MetaFileName]),
		MimeType:  metaString(in[MetaMimeType]),
		Timestamp: metaFloat(in[MetaTimestamp]),
	}
}

func UnixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func metaString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func metaFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
