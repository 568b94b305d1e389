package discovery

import (
	"fmt"
	"slices"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// HubInfo holds the fields a hub advertises in its TXT records.
type HubInfo struct {
	Program string
	Version string
}

// EncodeHubTXT creates TXT records for a hub.
func EncodeHubTXT(info *HubInfo) TXTRecordMap {
	txt := TXTRecordMap{TXTKeyProgram: info.Program}
	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}
	return txt
}

// DecodeHubTXT parses hub TXT records.
func DecodeHubTXT(txt TXTRecordMap) (*HubInfo, error) {
	program, ok := txt[TXTKeyProgram]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyProgram)
	}
	if strings.TrimSpace(program) == "" {
		return nil, fmt.Errorf("%w: empty %s", ErrInvalidTXTRecord, TXTKeyProgram)
	}
	return &HubInfo{
		Program: program,
		Version: txt[TXTKeyVersion],
	}, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
// Keys are matched case-insensitively and stored in lower case.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if k == "" {
			continue
		}
		if !found {
			// Key without value (boolean flag)
			v = ""
		}
		txt[strings.ToLower(k)] = v
	}
	return txt
}
