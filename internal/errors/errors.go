// Package errors classifies install and uninstall failures and derives
// remediation suggestions for them.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FailureType is the closed set of reasons an install or uninstall fails
type FailureType int

const (
	Unclassified FailureType = iota
	TestOnlyRejected
	ConflictingProvider
	DuplicatePermission
	UpdateIncompatible
	VersionDowngrade
	UserRestricted
	DeprecatedSdkVersion
	BlacklistedPackage
	MissingInstallPermission
	PlatformIsolationViolation
	AlreadyExists
	InvalidAPK
	InsufficientStorage
	OlderSDK
	NewerSDK
	CPUAbiIncompatible
	MissingSplit
	MissingSharedLibrary
	MissingFeature
	VerificationFailure
	VerificationTimeout
	NoCertificates
	SharedUserIncompatible
	Aborted
	RejectedByBuildType
	OriginOSBlacklist
	UninstallFailed
	ModuleInstallFailed
	Cancelled
	ParseError
	ResolveError
)

var failureTypeNames = map[FailureType]string{
	Unclassified:               "UNCLASSIFIED",
	TestOnlyRejected:           "TEST_ONLY_REJECTED",
	ConflictingProvider:        "CONFLICTING_PROVIDER",
	DuplicatePermission:        "DUPLICATE_PERMISSION",
	UpdateIncompatible:         "UPDATE_INCOMPATIBLE",
	VersionDowngrade:           "VERSION_DOWNGRADE",
	UserRestricted:             "USER_RESTRICTED",
	DeprecatedSdkVersion:       "DEPRECATED_SDK_VERSION",
	BlacklistedPackage:         "BLACKLISTED_PACKAGE",
	MissingInstallPermission:   "MISSING_INSTALL_PERMISSION",
	PlatformIsolationViolation: "PLATFORM_ISOLATION_VIOLATION",
	AlreadyExists:              "ALREADY_EXISTS",
	InvalidAPK:                 "INVALID_APK",
	InsufficientStorage:        "INSUFFICIENT_STORAGE",
	OlderSDK:                   "OLDER_SDK",
	NewerSDK:                   "NEWER_SDK",
	CPUAbiIncompatible:         "CPU_ABI_INCOMPATIBLE",
	MissingSplit:               "MISSING_SPLIT",
	MissingSharedLibrary:       "MISSING_SHARED_LIBRARY",
	MissingFeature:             "MISSING_FEATURE",
	VerificationFailure:        "VERIFICATION_FAILURE",
	VerificationTimeout:        "VERIFICATION_TIMEOUT",
	NoCertificates:             "NO_CERTIFICATES",
	SharedUserIncompatible:     "SHARED_USER_INCOMPATIBLE",
	Aborted:                    "ABORTED",
	RejectedByBuildType:        "REJECTED_BY_BUILD_TYPE",
	OriginOSBlacklist:          "ORIGIN_OS_BLACKLIST",
	UninstallFailed:            "UNINSTALL_FAILED",
	ModuleInstallFailed:        "MODULE_INSTALL_FAILED",
	Cancelled:                  "CANCELLED",
	ParseError:                 "PARSE_ERROR",
	ResolveError:               "RESOLVE_ERROR",
}

// String returns the string representation of the failure type
func (t FailureType) String() string {
	if name, ok := failureTypeNames[t]; ok {
		return name
	}
	return "UNCLASSIFIED"
}

// MarshalText implements encoding.TextMarshaler
func (t FailureType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// FailureTypes lists every member, in declaration order
func FailureTypes() []FailureType {
	out := make([]FailureType, 0, len(failureTypeNames))
	for t := range failureTypeNames {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Failure is a classified failure with its context
type Failure struct {
	Type    FailureType       `json:"type" yaml:"type"`
	Code    string            `json:"code,omitempty" yaml:"code,omitempty"`
	Message string            `json:"message" yaml:"message"`
	Cause   error             `json:"-" yaml:"-"`
	Context map[string]string `json:"context,omitempty" yaml:"context,omitempty"`
}

// Error implements the error interface
func (f *Failure) Error() string {
	msg := f.Message
	if msg == "" {
		msg = f.Type.String()
	}
	if f.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, f.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (f *Failure) Unwrap() error {
	return f.Cause
}

// Is matches another *Failure of the same type
func (f *Failure) Is(target error) bool {
	if t, ok := target.(*Failure); ok {
		return f.Type == t.Type
	}
	return false
}

// WithContext adds context to the failure
func (f *Failure) WithContext(key, value string) *Failure {
	if f.Context == nil {
		f.Context = make(map[string]string)
	}
	f.Context[key] = value
	return f
}

// WithCode sets the platform code
func (f *Failure) WithCode(code string) *Failure {
	f.Code = code
	return f
}

// FormatDetailed returns a multi-line description with context
func (f *Failure) FormatDetailed() string {
	var builder strings.Builder

	builder.WriteString(f.Type.String())
	if f.Code != "" {
		builder.WriteString(fmt.Sprintf(" [%s]", f.Code))
	}
	builder.WriteString(fmt.Sprintf(": %s\n", f.Error()))

	if len(f.Context) > 0 {
		keys := make([]string, 0, len(f.Context))
		for k := range f.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		builder.WriteString("Context:\n")
		for _, k := range keys {
			builder.WriteString(fmt.Sprintf("   %s: %s\n", k, f.Context[k]))
		}
	}

	return builder.String()
}

// New creates a failure of the given type
func New(t FailureType, message string) *Failure {
	return &Failure{Type: t, Message: message}
}

// Newf creates a failure with a formatted message
func Newf(t FailureType, format string, args ...interface{}) *Failure {
	return &Failure{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err into a failure of the given type
func Wrap(err error, t FailureType, message string) *Failure {
	return &Failure{Type: t, Message: message, Cause: err}
}

// Of is a sentinel for errors.Is comparisons against a type
func Of(t FailureType) error {
	return &Failure{Type: t}
}

// TypeOf extracts the failure type of err, Unclassified when it carries none
func TypeOf(err error) FailureType {
	var f *Failure
	if errors.As(err, &f) {
		return f.Type
	}
	return Unclassified
}

// AsFailure returns err as a *Failure, wrapping it as Unclassified if needed
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return Wrap(err, Unclassified, "operation failed")
}

// PendingApproval is returned by a backend that wrote a device session but
// holds the commit until the caller approves it
type PendingApproval struct {
	SessionID   string
	PackageName string
}

func (p *PendingApproval) Error() string {
	return fmt.Sprintf("session %s for %s is waiting for approval", p.SessionID, p.PackageName)
}
