package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxxsfxyzm/installerx/pkg/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   FailureType
		code   string
	}{
		{"downgrade token", "Performing Streamed Install\nFailure [INSTALL_FAILED_VERSION_DOWNGRADE: Downgrade detected]", VersionDowngrade, "INSTALL_FAILED_VERSION_DOWNGRADE"},
		{"test only", "Failure [INSTALL_FAILED_TEST_ONLY: installPackageLI]", TestOnlyRejected, "INSTALL_FAILED_TEST_ONLY"},
		{"lower case", "failure [install_failed_update_incompatible: signatures do not match]", UpdateIncompatible, "INSTALL_FAILED_UPDATE_INCOMPATIBLE"},
		{"shared user before update", "INSTALL_FAILED_SHARED_USER_INCOMPATIBLE", SharedUserIncompatible, "INSTALL_FAILED_SHARED_USER_INCOMPATIBLE"},
		{"no matching abis", "Failure [INSTALL_FAILED_NO_MATCHING_ABIS: Failed to extract native libraries, res=-113]", CPUAbiIncompatible, "INSTALL_FAILED_NO_MATCHING_ABIS"},
		{"deprecated sdk", "Failure [INSTALL_FAILED_DEPRECATED_SDK_VERSION: App package must target at least SDK version 23]", DeprecatedSdkVersion, "INSTALL_FAILED_DEPRECATED_SDK_VERSION"},
		{"parse failure", "Failure [INSTALL_PARSE_FAILED_MANIFEST_MALFORMED: bad]", InvalidAPK, "INSTALL_PARSE_FAILED_MANIFEST_MALFORMED"},
		{"no certificates", "INSTALL_PARSE_FAILED_NO_CERTIFICATES", NoCertificates, "INSTALL_PARSE_FAILED_NO_CERTIFICATES"},
		{"hyperos code", "Failure [-1000]", PlatformIsolationViolation, "-1000"},
		{"legacy downgrade code", "Failure [-25]", VersionDowngrade, "-25"},
		{"originos blacklist", "install result=-903", OriginOSBlacklist, "-903"},
		{"missing permission", "java.lang.SecurityException: Neither user 2000 nor current process has android.permission.INSTALL_PACKAGES.", MissingInstallPermission, ""},
		{"unknown", "Something exploded", Unclassified, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Classify(tt.output)
			require.NotNil(t, f)
			assert.Equal(t, tt.want, f.Type)
			assert.Equal(t, tt.code, f.Code)
			assert.NotEmpty(t, f.Message)
		})
	}
}

func TestClassifyUninstall(t *testing.T) {
	assert.Equal(t, UserRestricted, ClassifyUninstall("Failure [DELETE_FAILED_USER_RESTRICTED]").Type)
	assert.Equal(t, UninstallFailed, ClassifyUninstall("Failure [DELETE_FAILED_INTERNAL_ERROR]").Type)
	assert.Equal(t, UninstallFailed, ClassifyUninstall("Failure [-1]").Type)
	assert.Equal(t, UninstallFailed, ClassifyUninstall("weird").Type)
}

func TestFailureIsAndWrap(t *testing.T) {
	cause := errors.New("adb: closed")
	f := Wrap(cause, VersionDowngrade, "install failed").WithContext("package", "com.example")

	wrapped := fmt.Errorf("batch: %w", f)
	assert.True(t, errors.Is(wrapped, Of(VersionDowngrade)))
	assert.False(t, errors.Is(wrapped, Of(TestOnlyRejected)))
	assert.True(t, errors.Is(wrapped, cause))
	assert.Equal(t, VersionDowngrade, TypeOf(wrapped))
	assert.Equal(t, Unclassified, TypeOf(cause))

	assert.Contains(t, f.FormatDetailed(), "package: com.example")
	assert.Equal(t, "install failed: adb: closed", f.Error())
}

func TestAsFailure(t *testing.T) {
	assert.Nil(t, AsFailure(nil))
	assert.Equal(t, Unclassified, AsFailure(errors.New("x")).Type)

	f := New(Cancelled, "stop")
	assert.Same(t, f, AsFailure(fmt.Errorf("wrap: %w", f)))
}

func TestFailureTypeNames(t *testing.T) {
	for _, ft := range FailureTypes() {
		assert.NotEmpty(t, ft.String())
	}
	assert.Equal(t, "VERSION_DOWNGRADE", VersionDowngrade.String())
}

func ids(s []Suggestion) []string {
	var out []string
	for _, x := range s {
		out = append(out, x.ID)
	}
	return out
}

func ctxFor(auth models.Authorizer, sdk int, manufacturer string) SuggestionContext {
	return SuggestionContext{Platform: models.PlatformContext{Authorizer: auth, SDK: sdk, Manufacturer: manufacturer}}
}

func TestDeriveSuggestionsVersionDowngradeGating(t *testing.T) {
	downgrade := New(VersionDowngrade, "downgrade")

	tests := []struct {
		name string
		ctx  SuggestionContext
		want []string
	}{
		{"no authorizer old sdk", ctxFor(models.AuthorizerNone, 30, "google"), []string{"uninstall_and_retry"}},
		{"root old sdk", ctxFor(models.AuthorizerRoot, 30, "google"), []string{"uninstall_and_retry", "allow_downgrade"}},
		{"shizuku sdk 34", ctxFor(models.AuthorizerShizuku, 34, "google"), []string{"uninstall_and_retry", "uninstall_keep_data_and_retry"}},
		{"root sdk 35 samsung", ctxFor(models.AuthorizerRoot, 35, "Samsung"), []string{"uninstall_and_retry"}},
		{"root sdk 34 samsung", ctxFor(models.AuthorizerRoot, 34, "samsung"), []string{"uninstall_and_retry", "uninstall_keep_data_and_retry"}},
		{"root sdk 35 realme", ctxFor(models.AuthorizerRoot, 35, "realme"), []string{"uninstall_and_retry"}},
		{"dhizuku sdk 34", ctxFor(models.AuthorizerDhizuku, 34, "google"), []string{"uninstall_and_retry"}},
		{"none sdk 34", ctxFor(models.AuthorizerNone, 34, "google"), []string{"uninstall_and_retry"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(DeriveSuggestions(downgrade, tt.ctx)))
		})
	}
}

func TestDeriveSuggestionsTable(t *testing.T) {
	ctx := ctxFor(models.AuthorizerShizuku, 33, "xiaomi")

	tests := []struct {
		failure FailureType
		want    []string
	}{
		{TestOnlyRejected, []string{"allow_test"}},
		{UpdateIncompatible, []string{"uninstall_and_retry"}},
		{ConflictingProvider, []string{"uninstall_and_retry"}},
		{PlatformIsolationViolation, []string{"installer_miui"}},
		{UserRestricted, []string{"open_developer_settings"}},
		{DeprecatedSdkVersion, []string{"bypass_low_target_sdk"}},
		{BlacklistedPackage, []string{"bypass_blacklist"}},
		{MissingInstallPermission, nil},
		{DuplicatePermission, nil},
		{Unclassified, nil},
	}

	for _, tt := range tests {
		t.Run(tt.failure.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ids(DeriveSuggestions(New(tt.failure, "x"), ctx)))
		})
	}

	assert.Empty(t, DeriveSuggestions(nil, ctx))
}

func TestSuggestionRemedies(t *testing.T) {
	ctx := ctxFor(models.AuthorizerRoot, 30, "")

	s, ok := FindSuggestion(New(VersionDowngrade, ""), ctx, "allow_downgrade")
	require.True(t, ok)
	assert.Equal(t, models.InstallAllowDowngrade, s.Remedy.SetFlag)
	assert.Equal(t, FollowInstall, s.Remedy.Then)

	s, ok = FindSuggestion(New(PlatformIsolationViolation, ""), ctx, "installer_miui")
	require.True(t, ok)
	assert.Equal(t, InstallerPackageMIUI, s.Remedy.InstallerPackage)

	s, ok = FindSuggestion(New(UpdateIncompatible, ""), ctx, "uninstall_and_retry")
	require.True(t, ok)
	assert.True(t, s.Remedy.UninstallAndRetry)
	assert.False(t, s.Remedy.KeepData)

	_, ok = FindSuggestion(New(UpdateIncompatible, ""), ctx, "allow_downgrade")
	assert.False(t, ok)
}

func TestDeriveSuggestionsSkipsFlagsAlreadySet(t *testing.T) {
	ctx := ctxFor(models.AuthorizerRoot, 30, "")

	tests := []struct {
		failure FailureType
		flag    models.InstallFlags
		id      string
	}{
		{TestOnlyRejected, models.InstallAllowTest, "allow_test"},
		{VersionDowngrade, models.InstallAllowDowngrade, "allow_downgrade"},
		{DeprecatedSdkVersion, models.InstallBypassLowTargetSdkBlock, "bypass_low_target_sdk"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			failure := New(tt.failure, "x")
			assert.Contains(t, ids(DeriveSuggestions(failure, ctx)), tt.id)

			set := ctx
			set.Flags = tt.flag | models.InstallReplaceExisting
			assert.NotContains(t, ids(DeriveSuggestions(failure, set)), tt.id)
			_, ok := FindSuggestion(failure, set, tt.id)
			assert.False(t, ok)
		})
	}

	// remedies that set no flag are unaffected
	set := ctx
	set.Flags = models.InstallAllowDowngrade
	assert.Equal(t, []string{"uninstall_and_retry"}, ids(DeriveSuggestions(New(VersionDowngrade, "x"), set)))
}

type recordingLogger struct {
	errors, warns int
}

func (l *recordingLogger) Error(string, ...interface{}) { l.errors++ }
func (l *recordingLogger) Warn(string, ...interface{})  { l.warns++ }
func (l *recordingLogger) Debug(string, ...interface{}) {}

func TestHandler(t *testing.T) {
	log := &recordingLogger{}
	var observed []FailureType
	h := NewHandler(log, func(ft FailureType) { observed = append(observed, ft) })

	assert.Nil(t, h.Handle(nil))
	h.Handle(New(VersionDowngrade, "x"))
	h.Handle(New(Cancelled, "y"))
	h.Handle(errors.New("plain"))

	stats := h.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByType[VersionDowngrade])
	assert.Equal(t, 1, stats.ByType[Unclassified])
	assert.Equal(t, []FailureType{VersionDowngrade, Cancelled, Unclassified}, observed)
	assert.Equal(t, 2, log.errors)
	assert.Equal(t, 1, log.warns)

	h.Reset()
	assert.Equal(t, 0, h.Stats().Total)
}
