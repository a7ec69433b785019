package session

import (
	ierrors "github.com/wxxsfxyzm/installerx/internal/errors"
	"github.com/wxxsfxyzm/installerx/pkg/entity"
)

// Blacklist refuses packages by name or by shared user id
type Blacklist struct {
	Packages    []string
	SharedUsers []string
	// Exemptions are packages allowed even when their shared user is listed
	Exemptions []string
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Check returns a BlacklistedPackage failure when base may not be installed
func (b Blacklist) Check(base *entity.BaseEntity) *ierrors.Failure {
	if base == nil {
		return nil
	}
	if contains(b.Packages, base.Package) {
		return ierrors.Newf(ierrors.BlacklistedPackage, "package %s is blacklisted", base.Package).
			WithContext("package", base.Package)
	}
	if base.SharedUserID != "" && contains(b.SharedUsers, base.SharedUserID) && !contains(b.Exemptions, base.Package) {
		return ierrors.Newf(ierrors.BlacklistedPackage, "shared user %s of %s is blacklisted", base.SharedUserID, base.Package).
			WithContext("package", base.Package).
			WithContext("shared_user_id", base.SharedUserID)
	}
	return nil
}

// Empty reports whether nothing is listed
func (b Blacklist) Empty() bool {
	return len(b.Packages) == 0 && len(b.SharedUsers) == 0
}
