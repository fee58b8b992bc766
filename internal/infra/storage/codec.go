package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	domreg "github.com/bryanwahyu/acunetix-report-sender/internal/domain/registry"
	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
)

// encodeRecords writes the mapping as a JSON array ordered by scan id so the
// file diffs cleanly between runs.
func encodeRecords(records map[scans.ScanID]domreg.ProcessedRecord) ([]byte, error) {
	list := make([]domreg.ProcessedRecord, 0, len(records))
	for id, rec := range records {
		rec.ScanID = id
		list = append(list, rec)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ScanID < list[j].ScanID })
	return json.MarshalIndent(list, "", "  ")
}

// decodeRecords accepts the record array written by encodeRecords and the
// older plain array of scan ids.
func decodeRecords(data []byte) (map[scans.ScanID]domreg.ProcessedRecord, error) {
	out := make(map[scans.ScanID]domreg.ProcessedRecord)
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return out, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	for i, item := range raw {
		var id string
		if json.Unmarshal(item, &id) == nil {
			if id != "" {
				out[scans.ScanID(id)] = domreg.ProcessedRecord{ScanID: scans.ScanID(id)}
			}
			continue
		}
		var rec domreg.ProcessedRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			return nil, fmt.Errorf("decode registry entry %d: %w", i, err)
		}
		if rec.ScanID != "" {
			out[rec.ScanID] = rec
		}
	}
	return out, nil
}
