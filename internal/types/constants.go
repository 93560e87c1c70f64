package types

import (
	"os"
	"strings"
)

// ContextUserKey is where AuthMiddleware stores the resolved user on the
// request context.
const ContextUserKey = "user"

// AllowedOrigins is consulted by both the CORS layer and the websocket
// upgrader's origin check. The defaults cover the Vite dev server and a
// locally served build; deployments add their origins through CLIENT_URL or
// a comma-separated ALLOWED_ORIGINS.
var AllowedOrigins = calendarOrigins()

func calendarOrigins() []string {
	origins := []string{
		"http://localhost:3000",
		"http://localhost:5173",
	}

	if clientURL := os.Getenv("CLIENT_URL"); clientURL != "" {
		origins = append(origins, clientURL)
	}

	for _, origin := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}

	return origins
}
