package middleware

import "github.com/gin-gonic/gin"

// HeaderNewUserToken is the response header used to hand a refreshed access
// token back to the caller, so clients can drop their stale copy.
const HeaderNewUserToken = "New-User-Token"

// RefreshedTokenEcho copies the rewritten User-Token request header into the
// New-User-Token response header when the validation filter refreshed the
// token. Must be registered after TokenValidation.
func RefreshedTokenEcho() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(KeyTokenRefreshed) {
			c.Header(HeaderNewUserToken, c.GetHeader(HeaderUserToken))
		}
		c.Next()
	}
}
