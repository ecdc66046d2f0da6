// SPDX-License-Identifier: GPL-3.0-or-later

package packet

// ResetSettingsForTesting allows changing the settings again.
func ResetSettingsForTesting(settings *Settings) {
	config.mu.Lock()
	config.frozen.Store(false)
	config.mu.Unlock()
	Configure(settings)
}
