package errors

import (
	"regexp"
	"strconv"
	"strings"
)

// tokenPatterns maps platform result tokens to failure types. Longer tokens
// sharing a prefix come first so they win.
var tokenPatterns = []struct {
	token string
	t     FailureType
}{
	{"INSTALL_FAILED_HYPEROS_ISOLATION_VIOLATION", PlatformIsolationViolation},
	{"INSTALL_FAILED_SHARED_USER_INCOMPATIBLE", SharedUserIncompatible},
	{"INSTALL_FAILED_MISSING_SHARED_LIBRARY", MissingSharedLibrary},
	{"INSTALL_FAILED_DEPRECATED_SDK_VERSION", DeprecatedSdkVersion},
	{"INSTALL_FAILED_REJECTED_BY_BUILDTYPE", RejectedByBuildType},
	{"INSTALL_FAILED_VERIFICATION_TIMEOUT", VerificationTimeout},
	{"INSTALL_FAILED_VERIFICATION_FAILURE", VerificationFailure},
	{"INSTALL_FAILED_INSUFFICIENT_STORAGE", InsufficientStorage},
	{"INSTALL_FAILED_CONFLICTING_PROVIDER", ConflictingProvider},
	{"INSTALL_FAILED_DUPLICATE_PERMISSION", DuplicatePermission},
	{"INSTALL_FAILED_CPU_ABI_INCOMPATIBLE", CPUAbiIncompatible},
	{"INSTALL_FAILED_UPDATE_INCOMPATIBLE", UpdateIncompatible},
	{"INSTALL_FAILED_VERSION_DOWNGRADE", VersionDowngrade},
	{"INSTALL_FAILED_NO_MATCHING_ABIS", CPUAbiIncompatible},
	{"INSTALL_FAILED_USER_RESTRICTED", UserRestricted},
	{"INSTALL_FAILED_MISSING_FEATURE", MissingFeature},
	{"INSTALL_FAILED_ALREADY_EXISTS", AlreadyExists},
	{"INSTALL_FAILED_MISSING_SPLIT", MissingSplit},
	{"INSTALL_FAILED_INVALID_APK", InvalidAPK},
	{"INSTALL_FAILED_OLDER_SDK", OlderSDK},
	{"INSTALL_FAILED_NEWER_SDK", NewerSDK},
	{"INSTALL_FAILED_TEST_ONLY", TestOnlyRejected},
	{"INSTALL_FAILED_ABORTED", Aborted},
	{"INSTALL_PARSE_FAILED_NO_CERTIFICATES", NoCertificates},
	{"INSTALL_PARSE_FAILED_", InvalidAPK},
	{"DELETE_FAILED_USER_RESTRICTED", UserRestricted},
	{"DELETE_FAILED_", UninstallFailed},
}

// installCodes maps legacy negative PackageManager status codes
var installCodes = map[int]FailureType{
	-1:    AlreadyExists,
	-2:    InvalidAPK,
	-4:    InsufficientStorage,
	-7:    UpdateIncompatible,
	-8:    SharedUserIncompatible,
	-9:    MissingSharedLibrary,
	-12:   OlderSDK,
	-13:   ConflictingProvider,
	-14:   NewerSDK,
	-15:   TestOnlyRejected,
	-16:   CPUAbiIncompatible,
	-17:   MissingFeature,
	-21:   VerificationTimeout,
	-22:   VerificationFailure,
	-25:   VersionDowngrade,
	-28:   MissingSplit,
	-29:   DeprecatedSdkVersion,
	-103:  NoCertificates,
	-111:  UserRestricted,
	-112:  DuplicatePermission,
	-113:  CPUAbiIncompatible,
	-115:  Aborted,
	-903:  OriginOSBlacklist,
	-1000: PlatformIsolationViolation,
	-3001: RejectedByBuildType,
}

// uninstallCodes maps DELETE_FAILED_* status codes
var uninstallCodes = map[int]FailureType{
	-1:    UninstallFailed,
	-2:    UninstallFailed,
	-3:    UserRestricted,
	-4:    UninstallFailed,
	-5:    Aborted,
	-1000: UninstallFailed,
}

var (
	statusCodePattern  = regexp.MustCompile(`(?:^|[\s\[=:(])(-\d{1,4})(?:[\]\s,)]|$)`)
	failureLinePattern = regexp.MustCompile(`(?m)^.*(?:Failure|FAILED|Error|Exception).*$`)
)

var permissionHints = []string{
	"android.permission.install_packages",
	"does not have permission to install",
	"not allowed to install packages",
	"request_install_packages",
}

// Classify maps the output of a failed install to a failure type. Output
// that matches nothing is Unclassified with the raw text kept.
func Classify(output string) *Failure {
	return classify(output, installCodes)
}

// ClassifyUninstall maps the output of a failed uninstall
func ClassifyUninstall(output string) *Failure {
	f := classify(output, uninstallCodes)
	if f.Type == Unclassified {
		f.Type = UninstallFailed
	}
	return f
}

func classify(output string, codes map[int]FailureType) *Failure {
	message := summarize(output)
	upper := strings.ToUpper(output)

	for _, p := range tokenPatterns {
		if idx := strings.Index(upper, p.token); idx >= 0 {
			code := p.token
			if strings.HasSuffix(code, "_") {
				code = readToken(upper[idx:])
			}
			return &Failure{Type: p.t, Code: code, Message: message}
		}
	}

	lower := strings.ToLower(output)
	for _, hint := range permissionHints {
		if strings.Contains(lower, hint) {
			return &Failure{Type: MissingInstallPermission, Message: message}
		}
	}

	for _, m := range statusCodePattern.FindAllStringSubmatch(output, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if t, ok := codes[n]; ok {
			return &Failure{Type: t, Code: m[1], Message: message}
		}
	}

	return &Failure{Type: Unclassified, Message: message}
}

func readToken(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool {
		return !(r == '_' || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	})
	if end < 0 {
		return s
	}
	return s[:end]
}

// summarize keeps the most telling line of the output
func summarize(output string) string {
	output = strings.TrimSpace(output)
	if line := failureLinePattern.FindString(output); line != "" {
		return strings.TrimSpace(line)
	}
	if idx := strings.IndexByte(output, '\n'); idx >= 0 {
		return strings.TrimSpace(output[:idx])
	}
	return output
}
