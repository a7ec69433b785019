package entity

import (
	"sort"
	"strings"

	"golang.org/x/text/language"

	"github.com/wxxsfxyzm/installerx/pkg/models"
)

// DefaultSelection returns a copy of entities with the automatic selection
// for the container applied. Mixed module containers start with nothing
// selected so the user has to pick the install path.
func DefaultSelection(entities []SelectableEntity, container models.DataType, device models.PlatformContext) []SelectableEntity {
	out := make([]SelectableEntity, len(entities))
	for i, e := range entities {
		out[i] = SelectableEntity{App: e.App}
	}

	switch {
	case container.IsMixedModule():
		return out
	case container.IsMultiApp():
		selectBestBasePerPackage(out, device)
		return out
	}

	var splits []int
	for i, e := range out {
		switch e.App.(type) {
		case *BaseEntity, *DexMetadataEntity, *ModuleEntity:
			out[i].Selected = true
		case *SplitEntity:
			splits = append(splits, i)
		}
	}
	selectSplits(out, splits, device)
	return out
}

// ApplyDefaultSelection replaces the selection of r with the default one
func (r *PackageAnalysisResult) ApplyDefaultSelection(device models.PlatformContext) {
	r.Entities = DefaultSelection(r.Entities, r.ContainerType, device)
}

func abiRank(arch string, abis []string) int {
	if arch == "" {
		return len(abis)
	}
	arch = NormalizeABI(arch)
	for i, abi := range abis {
		if NormalizeABI(abi) == arch {
			return i
		}
	}
	return len(abis) + 1
}

func selectBestBasePerPackage(out []SelectableEntity, device models.PlatformContext) {
	byPackage := make(map[string][]int)
	var order []string
	for i, e := range out {
		if _, ok := e.App.(*BaseEntity); !ok {
			continue
		}
		name := e.App.PackageName()
		if _, seen := byPackage[name]; !seen {
			order = append(order, name)
		}
		byPackage[name] = append(byPackage[name], i)
	}

	for _, name := range order {
		candidates := byPackage[name]
		sort.SliceStable(candidates, func(a, b int) bool {
			ba := out[candidates[a]].App.(*BaseEntity)
			bb := out[candidates[b]].App.(*BaseEntity)
			if ra, rb := abiRank(ba.Arch, device.ABIs), abiRank(bb.Arch, device.ABIs); ra != rb {
				return ra < rb
			}
			if ba.VersionCode != bb.VersionCode {
				return ba.VersionCode > bb.VersionCode
			}
			return ba.VersionName > bb.VersionName
		})
		out[candidates[0]].Selected = true
	}
}

func selectSplits(out []SelectableEntity, splits []int, device models.PlatformContext) {
	byCategory := make(map[SplitCategory][]int)
	for _, i := range splits {
		s := out[i].App.(*SplitEntity)
		byCategory[s.Info.Category] = append(byCategory[s.Info.Category], i)
	}

	for _, i := range byCategory[SplitFeature] {
		out[i].Selected = true
	}

	abis := make([]string, len(device.ABIs))
	for i, abi := range device.ABIs {
		abis[i] = NormalizeABI(abi)
	}
	selectFirstMatch(out, byCategory[SplitABI], abis)
	selectFirstMatch(out, byCategory[SplitDensity], device.DensityBuckets())
	selectLanguage(out, byCategory[SplitLanguage], device.Locales)
}

// selectFirstMatch selects every split whose value equals the first
// preference that any split satisfies
func selectFirstMatch(out []SelectableEntity, indexes []int, preferences []string) {
	for _, want := range preferences {
		matched := false
		for _, i := range indexes {
			if out[i].App.(*SplitEntity).Info.Value == want {
				out[i].Selected = true
				matched = true
			}
		}
		if matched {
			return
		}
	}
}

func selectLanguage(out []SelectableEntity, indexes []int, locales []string) {
	if len(indexes) == 0 {
		return
	}
	if len(locales) == 0 {
		locales = []string{"en"}
	}

	tags := make(map[int]language.Tag, len(indexes))
	for _, i := range indexes {
		if tag, err := LanguageTag(out[i].App.(*SplitEntity).Info.Value); err == nil {
			tags[i] = tag
		}
	}

	for _, locale := range locales {
		want, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
		if err != nil {
			continue
		}

		matched := false
		for _, i := range indexes {
			if tag, ok := tags[i]; ok && tag == want {
				out[i].Selected = true
				matched = true
			}
		}
		if matched {
			return
		}

		wantBase, _ := want.Base()
		for _, i := range indexes {
			tag, ok := tags[i]
			if !ok {
				continue
			}
			if base, _ := tag.Base(); base == wantBase {
				out[i].Selected = true
				matched = true
			}
		}
		if matched {
			return
		}
	}
}
