//go:build !windows

package i18n

// platformLocales returns nothing outside Windows; the locale
// environment variables already cover it.
func platformLocales() []string {
	return nil
}
