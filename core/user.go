package core

type (
	// User is the identity behind a session, as reported by the login provider.
	User struct {
		Subject   string `json:"subject"`
		Login     string `json:"login"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatarUrl"`
		Name      string `json:"name"`
		TenantID  string `json:"tenantId,omitempty"`
	}
)
