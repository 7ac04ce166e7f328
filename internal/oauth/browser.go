package oauth

import (
	"log/slog"

	"github.com/skratchdot/open-golang/open"
)

// openBrowser launches the system browser at url. A failure is not fatal;
// the authorization URL is always printed so the user can open it by hand.
func openBrowser(url string) error {
	slog.Debug("Opening browser for authentication", "url", url)
	return open.Start(url)
}
