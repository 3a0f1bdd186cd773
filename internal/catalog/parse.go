package catalog

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"howett.net/plist"

	"github.com/sagerenn/lexis/internal/dict"
)

// AppleAssetType marks Apple's dictionary asset catalogs.
const AppleAssetType = "com.apple.MobileAsset.DictionaryServices.dictionaryOSX"

// AppleType is the format type recorded for normalised Apple catalogs.
const AppleType = "apple"

// Parse decodes a catalog document. Sources named *.plist or *.xml are tried
// as property lists first; everything else, and property lists that fail to
// decode, are read as JSON. Apple asset catalogs are normalised to the native
// shape. All failures wrap dict.ErrFormat.
func Parse(content []byte, source string) (*Document, error) {
	lower := strings.ToLower(source)
	if strings.HasSuffix(lower, ".plist") || strings.HasSuffix(lower, ".xml") {
		var raw map[string]any
		if _, err := plist.Unmarshal(content, &raw); err == nil {
			return fromRaw(raw)
		}
	}
	var raw map[string]any
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse catalog %s: %w", dict.ErrFormat, source, err)
	}
	return fromRaw(raw)
}

func fromRaw(raw map[string]any) (*Document, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty catalog", dict.ErrFormat)
	}
	if _, ok := raw["AssetType"]; ok {
		return normalizeApple(raw)
	}
	if _, ok := raw["Assets"]; ok {
		return normalizeApple(raw)
	}
	return fromNative(raw)
}

func fromNative(raw map[string]any) (*Document, error) {
	items, ok := raw["dictionaries"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: catalog has no dictionaries list", dict.ErrFormat)
	}
	doc := &Document{
		Type:         stringOr(raw["type"], NativeType),
		Version:      intOr(raw["version"], 1),
		Dictionaries: make([]Descriptor, 0, len(items)),
	}
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: dictionary %d is not an object", dict.ErrFormat, i)
		}
		doc.Dictionaries = append(doc.Dictionaries, Descriptor{
			ID:          stringOr(m["id"], ""),
			Name:        stringOr(m["name"], ""),
			Lang:        stringOr(m["lang"], ""),
			Type:        stringOr(m["type"], ""),
			Version:     intOr(m["version"], 0),
			Size:        int64Or(m["size"], 0),
			Hash:        hashString(m["hash"]),
			HashAlgo:    stringOr(m["hash_algo"], "SHA-256"),
			URL:         stringOr(m["url"], ""),
			Copyright:   stringOr(m["copyright"], ""),
			Compression: stringOr(m["compression"], ""),
		})
	}
	return doc, nil
}

func normalizeApple(raw map[string]any) (*Document, error) {
	if at := stringOr(raw["AssetType"], ""); at != AppleAssetType {
		return nil, fmt.Errorf("%w: invalid Apple catalog type %q, expected %s", dict.ErrFormat, at, AppleAssetType)
	}
	var assets []any
	if v, ok := raw["Assets"]; ok {
		if assets, ok = v.([]any); !ok {
			return nil, fmt.Errorf("%w: Assets is not a list", dict.ErrFormat)
		}
	}
	doc := &Document{
		Type:         AppleType,
		Version:      intOr(raw["FormatVersion"], 1),
		Dictionaries: make([]Descriptor, 0, len(assets)),
	}
	for i, item := range assets {
		a, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: asset %d is not a dictionary", dict.ErrFormat, i)
		}
		u, err := assetURL(a)
		if err != nil {
			return nil, fmt.Errorf("%w: asset %d: %w", dict.ErrFormat, i, err)
		}
		doc.Dictionaries = append(doc.Dictionaries, Descriptor{
			ID:          stringOr(a["DictionaryIdentifier"], ""),
			Name:        stringOr(a["DictionaryPackageDisplayName"], ""),
			Lang:        stringOr(a["Language"], ""),
			Type:        stringOr(a["DictionaryType"], Monolingual),
			Version:     intOr(a["_ContentVersion"], 1),
			Size:        int64Or(a["_DownloadSize"], 0),
			Hash:        hashString(a["_Measurement"]),
			HashAlgo:    stringOr(a["_MeasurementAlgorithm"], "SHA-256"),
			URL:         u,
			Copyright:   stringOr(a["DictionaryCopyright"], ""),
			Compression: stringOr(a["_CompressionAlgorithm"], ""),
		})
	}
	return doc, nil
}

// assetURL joins __BaseURL with __RelativePath, or falls back to url.
func assetURL(a map[string]any) (string, error) {
	base, ok := a["__BaseURL"]
	if !ok {
		return stringOr(a["url"], ""), nil
	}
	b, err := url.Parse(stringOr(base, ""))
	if err != nil {
		return "", fmt.Errorf("base url: %w", err)
	}
	rel, err := url.Parse(stringOr(a["__RelativePath"], ""))
	if err != nil {
		return "", fmt.Errorf("relative path: %w", err)
	}
	return b.ResolveReference(rel).String(), nil
}

// hashString renders a measurement. Property lists carry it as raw data.
func hashString(v any) string {
	if b, ok := v.([]byte); ok {
		return hex.EncodeToString(b)
	}
	return stringOr(v, "")
}

func stringOr(v any, def string) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return def
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

func intOr(v any, def int) int {
	n, err := toInt64(v)
	if err != nil {
		return def
	}
	return int(n)
}

func int64Or(v any, def int64) int64 {
	n, err := toInt64(v)
	if err != nil {
		return def
	}
	return n
}

var errNotNumber = errors.New("not a number")

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, errNotNumber
		}
		return int64(n), nil
	case float64:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	default:
		return 0, errNotNumber
	}
}
