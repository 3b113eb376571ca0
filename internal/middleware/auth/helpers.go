package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/tachyon_hub/internal/session"
	loggingmw "github.com/Skotchmaster/tachyon_hub/pkg/middleware/logging"
)

const CtxSession = "session"

// TokenFrom returns the session loaded for this request, if any.
func TokenFrom(c echo.Context) (session.Token, bool) {
	t, ok := c.Get(CtxSession).(session.Token)
	return t, ok
}

// MustToken is for handlers mounted behind RequireSession.
func MustToken(c echo.Context) (session.Token, error) {
	t, ok := TokenFrom(c)
	if !ok {
		return session.Token{}, echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	return t, nil
}

func setUserContext(c echo.Context, t session.Token) {
	c.Set(CtxSession, t)
	c.Set(loggingmw.UserKey, t.ExternalID)
}
