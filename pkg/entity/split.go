package entity

import (
	"strings"

	"golang.org/x/text/language"
)

// SplitCategory is the kind of configuration a split provides
type SplitCategory int

const (
	SplitFeature SplitCategory = iota
	SplitABI
	SplitDensity
	SplitLanguage
)

func (c SplitCategory) String() string {
	switch c {
	case SplitABI:
		return "abi"
	case SplitDensity:
		return "density"
	case SplitLanguage:
		return "language"
	default:
		return "feature"
	}
}

// MarshalText implements encoding.TextMarshaler
func (c SplitCategory) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// SplitInfo is the classified form of a split name. Value is normalized:
// "arm64-v8a", "xxhdpi", "zh-CN", or the feature name.
type SplitInfo struct {
	Category SplitCategory `json:"category" yaml:"category"`
	Value    string        `json:"value" yaml:"value"`
}

var knownABIs = map[string]bool{
	"arm64-v8a":   true,
	"armeabi-v7a": true,
	"armeabi":     true,
	"x86":         true,
	"x86_64":      true,
	"mips":        true,
	"mips64":      true,
	"riscv64":     true,
}

var knownDensities = map[string]bool{
	"ldpi":    true,
	"mdpi":    true,
	"tvdpi":   true,
	"hdpi":    true,
	"xhdpi":   true,
	"xxhdpi":  true,
	"xxxhdpi": true,
	"nodpi":   true,
	"anydpi":  true,
}

// NormalizeABI maps the spellings found in split names (arm64_v8a,
// x86-64) onto the names the platform reports
func NormalizeABI(abi string) string {
	s := strings.ToLower(strings.TrimSpace(abi))
	s = strings.ReplaceAll(s, "_v", "-v")
	return strings.ReplaceAll(s, "x86-64", "x86_64")
}

// IsABI reports whether s names a CPU ABI
func IsABI(s string) bool {
	return knownABIs[NormalizeABI(s)]
}

// SplitQualifier strips file and prefix decoration from a split name:
// "split_config.arm64_v8a.apk" -> "arm64_v8a",
// "split_feature.config.xxhdpi" -> "xxhdpi".
func SplitQualifier(name string) string {
	q := strings.TrimSuffix(name, ".apk")
	q = strings.TrimPrefix(q, "split_")
	q = strings.TrimPrefix(q, "base-")
	q = strings.TrimPrefix(q, "config.")
	if idx := strings.LastIndex(q, ".config."); idx >= 0 {
		q = q[idx+len(".config."):]
	}
	return q
}

// ParseSplitName classifies a split name
func ParseSplitName(name string) SplitInfo {
	raw := SplitQualifier(name)
	normalized := strings.ReplaceAll(raw, "_", "-")

	switch {
	case IsABI(raw):
		return SplitInfo{Category: SplitABI, Value: NormalizeABI(raw)}
	case isDensity(raw):
		return SplitInfo{Category: SplitDensity, Value: strings.ToLower(raw)}
	case isLanguage(normalized):
		return SplitInfo{Category: SplitLanguage, Value: normalized}
	default:
		return SplitInfo{Category: SplitFeature, Value: raw}
	}
}

func isDensity(s string) bool {
	s = strings.ToLower(s)
	if knownDensities[s] {
		return true
	}
	digits := strings.TrimSuffix(s, "dpi")
	if digits == s || digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isLanguage accepts a BCP 47 tag whose base language is a real two or
// three letter code. Android's legacy "zh-rCN" region form is accepted too.
func isLanguage(s string) bool {
	base := strings.SplitN(s, "-", 2)[0]
	if len(base) < 2 || len(base) > 3 {
		return false
	}
	for _, r := range base {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	b, err := language.ParseBase(base)
	if err != nil {
		return false
	}
	// ParseBase accepts any well-formed code; require a known ISO 639 code
	return b.ISO3() != "" && b.ISO3() != "und"
}

// LanguageTag converts a split language value to a language.Tag.
// "zh-rCN" becomes "zh-CN".
func LanguageTag(value string) (language.Tag, error) {
	parts := strings.Split(value, "-")
	for i := 1; i < len(parts); i++ {
		if len(parts[i]) == 3 && parts[i][0] == 'r' {
			parts[i] = parts[i][1:]
		}
	}
	return language.Parse(strings.Join(parts, "-"))
}
