package models

import (
	"fmt"
	"strings"
)

// Authorizer is the privilege backend used to talk to the package service
type Authorizer int

const (
	AuthorizerNone Authorizer = iota
	AuthorizerRoot
	AuthorizerShizuku
	AuthorizerDhizuku
	AuthorizerCustomize
)

var authorizerNames = []string{"none", "root", "shizuku", "dhizuku", "customize"}

func (a Authorizer) String() string {
	if int(a) >= 0 && int(a) < len(authorizerNames) {
		return authorizerNames[a]
	}
	return "none"
}

// MarshalText implements encoding.TextMarshaler
func (a Authorizer) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// ParseAuthorizer resolves an authorizer name
func ParseAuthorizer(name string) (Authorizer, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return AuthorizerNone, nil
	}
	for i, n := range authorizerNames {
		if n == name {
			return Authorizer(i), nil
		}
	}
	return AuthorizerNone, fmt.Errorf("unknown authorizer %q", name)
}

// Manufacturers the failure rules care about
const (
	ManufacturerSamsung = "samsung"
	ManufacturerRealme  = "realme"
	ManufacturerXiaomi  = "xiaomi"
	ManufacturerOppo    = "oppo"
	ManufacturerOnePlus = "oneplus"
)

// Android API levels referenced by gating rules
const (
	SDKUpsideDownCake  = 34
	SDKVanillaIceCream = 35
)

// PlatformContext describes the target device
type PlatformContext struct {
	SDK          int        `json:"sdk" yaml:"sdk"`
	Release      string     `json:"release,omitempty" yaml:"release,omitempty"`
	Manufacturer string     `json:"manufacturer" yaml:"manufacturer"`
	Model        string     `json:"model,omitempty" yaml:"model,omitempty"`
	ABIs         []string   `json:"abis" yaml:"abis"`
	Density      int        `json:"density,omitempty" yaml:"density,omitempty"`
	Locales      []string   `json:"locales,omitempty" yaml:"locales,omitempty"`
	Authorizer   Authorizer `json:"authorizer" yaml:"authorizer"`
}

// NormalizeManufacturer lower-cases and trims a ro.product.manufacturer value
func NormalizeManufacturer(m string) string {
	return strings.ToLower(strings.TrimSpace(m))
}

// IsManufacturer reports whether the device was built by one of the given vendors
func (p PlatformContext) IsManufacturer(names ...string) bool {
	current := NormalizeManufacturer(p.Manufacturer)
	for _, n := range names {
		if current == n {
			return true
		}
	}
	return false
}

// DensityBuckets returns the density qualifiers to try for this device,
// best first
func (p PlatformContext) DensityBuckets() []string {
	buckets := []struct {
		name string
		dpi  int
	}{
		{"ldpi", 120}, {"mdpi", 160}, {"tvdpi", 213}, {"hdpi", 240},
		{"xhdpi", 320}, {"xxhdpi", 480}, {"xxxhdpi", 640},
	}
	if p.Density <= 0 {
		return []string{"xxhdpi", "xhdpi", "xxxhdpi", "hdpi", "mdpi", "nodpi", "anydpi"}
	}

	// closest bucket at or above the device density wins, then descend
	idx := len(buckets) - 1
	for i, b := range buckets {
		if b.dpi >= p.Density {
			idx = i
			break
		}
	}
	var out []string
	for i := idx; i < len(buckets); i++ {
		out = append(out, buckets[i].name)
	}
	for i := idx - 1; i >= 0; i-- {
		out = append(out, buckets[i].name)
	}
	return append(out, "nodpi", "anydpi")
}
