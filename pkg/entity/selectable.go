package entity

import (
	"errors"
	"fmt"
	"sort"

	ierrors "github.com/wxxsfxyzm/installerx/internal/errors"
	"github.com/wxxsfxyzm/installerx/pkg/models"
)

var (
	// ErrEmptyAnalysis means the provider found nothing installable
	ErrEmptyAnalysis = errors.New("analysis produced no entities")
	// ErrTooManyPackages means a single-package session holds several packages
	ErrTooManyPackages = errors.New("session contains more packages than its mode permits")
	// ErrNotInstallable marks an attempt to install a non-leaf entity
	ErrNotInstallable = errors.New("entity is not installable")
	// ErrIndexOutOfRange marks a selection on an index the arena does not hold
	ErrIndexOutOfRange = errors.New("entity index out of range")
)

// SelectableEntity pairs an entity with its selection flag
type SelectableEntity struct {
	App      AppEntity `json:"app" yaml:"app"`
	Selected bool      `json:"selected" yaml:"selected"`
}

// PackageAnalysisResult holds everything discovered for one package.
// Entities is the arena: an entity is addressed by its index, which never
// changes for the lifetime of the session.
type PackageAnalysisResult struct {
	PackageName          string                      `json:"package_name" yaml:"package_name"`
	SessionMode          models.SessionMode          `json:"session_mode" yaml:"session_mode"`
	ContainerType        models.DataType             `json:"container_type" yaml:"container_type"`
	Entities             []SelectableEntity          `json:"entities" yaml:"entities"`
	InstalledAppInfo     *models.InstalledAppInfo    `json:"installed,omitempty" yaml:"installed,omitempty"`
	SignatureMatchStatus models.SignatureMatchStatus `json:"signature_match_status" yaml:"signature_match_status"`
}

// Clone copies the arena so the copy can be mutated independently
func (r PackageAnalysisResult) Clone() PackageAnalysisResult {
	out := r
	out.Entities = append([]SelectableEntity(nil), r.Entities...)
	if r.InstalledAppInfo != nil {
		info := *r.InstalledAppInfo
		out.InstalledAppInfo = &info
	}
	return out
}

// Selected returns the selected entities in declaration order
func (r PackageAnalysisResult) Selected() []SelectableEntity {
	var out []SelectableEntity
	for _, e := range r.Entities {
		if e.Selected {
			out = append(out, e)
		}
	}
	return out
}

// Apps returns the bare entities in declaration order
func (r PackageAnalysisResult) Apps() []AppEntity {
	out := make([]AppEntity, len(r.Entities))
	for i, e := range r.Entities {
		out[i] = e.App
	}
	return out
}

// PrimaryBase returns the selected base entity, or the best base when none is selected
func (r PackageAnalysisResult) PrimaryBase() *BaseEntity {
	for _, e := range r.Entities {
		if b, ok := e.App.(*BaseEntity); ok && e.Selected {
			return b
		}
	}
	for _, e := range SortedBest(r.Apps()) {
		if b, ok := e.(*BaseEntity); ok {
			return b
		}
	}
	return nil
}

func groupKey(e AppEntity) string {
	return e.PackageName() + "\x00" + e.Kind().String()
}

// ToggleSelection flips the selection of the entity at index.
//
// With isMultiSelect the entity is flipped alone. Otherwise the entities
// sharing its package and kind form a radio group: selecting an unselected
// member clears the rest of the group, and toggling the member that is
// already selected clears the whole group. That last case is an off switch,
// not a no-op, so a user can back out of a mixed module/app container
// entirely.
func (r *PackageAnalysisResult) ToggleSelection(index int, isMultiSelect bool) error {
	if index < 0 || index >= len(r.Entities) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(r.Entities))
	}

	target := &r.Entities[index]
	if isMultiSelect {
		target.Selected = !target.Selected
		return nil
	}

	wasSelected := target.Selected
	key := groupKey(target.App)
	for i := range r.Entities {
		if groupKey(r.Entities[i].App) == key {
			r.Entities[i].Selected = false
		}
	}
	if !wasSelected {
		target.Selected = true
	}
	return nil
}

func kindRank(e AppEntity) int {
	switch e.Kind() {
	case KindBase:
		return 0
	case KindModule:
		return 1
	default:
		return 2
	}
}

// SortedBest orders entities best first: bases, then modules, then the
// rest; within a kind the highest version code wins and ties keep
// declaration order.
func SortedBest(entities []AppEntity) []AppEntity {
	out := append([]AppEntity(nil), entities...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := kindRank(out[i]), kindRank(out[j])
		if ri != rj {
			return ri < rj
		}
		return VersionCodeOf(out[i]) > VersionCodeOf(out[j])
	})
	return out
}

// Best returns the first entity of SortedBest, or nil
func Best(entities []AppEntity) AppEntity {
	if len(entities) == 0 {
		return nil
	}
	return SortedBest(entities)[0]
}

// GroupByPackage groups entities by package identity in first-seen order.
// Selection flags start cleared.
func GroupByPackage(entities []AppEntity, container models.DataType) []PackageAnalysisResult {
	var results []PackageAnalysisResult
	index := make(map[string]int)

	for _, e := range entities {
		name := e.PackageName()
		i, ok := index[name]
		if !ok {
			i = len(results)
			index[name] = i
			results = append(results, PackageAnalysisResult{
				PackageName:   name,
				ContainerType: container,
			})
		}
		results[i].Entities = append(results[i].Entities, SelectableEntity{App: e})
	}

	return WithSessionMode(results)
}

// WithSessionMode stamps Batch on every result when there is more than one
func WithSessionMode(results []PackageAnalysisResult) []PackageAnalysisResult {
	mode := models.SessionModeSingle
	if len(results) > 1 {
		mode = models.SessionModeBatch
	}
	for i := range results {
		results[i].SessionMode = mode
	}
	return results
}

// Deduplicate drops repeated bases equal on package, version code and
// version name. Other kinds are kept as they are.
func Deduplicate(entities []AppEntity) []AppEntity {
	type key struct {
		pkg  string
		code int64
		name string
	}
	seen := make(map[key]bool)
	var out []AppEntity
	for _, e := range entities {
		if b, ok := e.(*BaseEntity); ok {
			k := key{b.Package, b.VersionCode, b.VersionName}
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		out = append(out, e)
	}
	return out
}

// Validate checks the analysis against the declared session mode
func Validate(results []PackageAnalysisResult, mode models.SessionMode) error {
	total := 0
	for _, r := range results {
		total += len(r.Entities)
	}
	if total == 0 {
		return ErrEmptyAnalysis
	}
	if mode == models.SessionModeSingle && len(results) > 1 {
		return ErrTooManyPackages
	}
	return nil
}

// ValidateSelection applies the same rule to what is currently selected
func ValidateSelection(results []PackageAnalysisResult, mode models.SessionMode) error {
	packages := 0
	for _, r := range results {
		if len(r.Selected()) > 0 {
			packages++
		}
	}
	if packages == 0 {
		return ErrEmptyAnalysis
	}
	if mode == models.SessionModeSingle && packages > 1 {
		return ErrTooManyPackages
	}
	return nil
}

// InstallResult is the outcome for one attempted entity
type InstallResult struct {
	Entity  SelectableEntity  `json:"entity" yaml:"entity"`
	Success bool              `json:"success" yaml:"success"`
	Error   *ierrors.Failure  `json:"error,omitempty" yaml:"error,omitempty"`
}

// ResultsFor builds one result per entity with the same outcome
func ResultsFor(entities []SelectableEntity, failure *ierrors.Failure) []InstallResult {
	out := make([]InstallResult, len(entities))
	for i, e := range entities {
		out[i] = InstallResult{Entity: e, Success: failure == nil, Error: failure}
	}
	return out
}
