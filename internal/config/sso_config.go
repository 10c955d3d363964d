package config

type SSOConfig interface {
	GetSSOProvider() string
	GetSSOIssuerURL() string
	GetSSOClientID() string
	GetSSOClientSecret() string
	GetSSORedirectURL() string
	SSOEnabled() bool
}

type SSO struct {
	Provider     string `env:"SSO_PROVIDER"`
	IssuerURL    string `env:"SSO_ISSUER_URL"`
	ClientID     string `env:"SSO_CLIENT_ID"`
	ClientSecret string `env:"SSO_CLIENT_SECRET"`
	RedirectURL  string `env:"SSO_REDIRECT_URL" envDefault:"http://localhost:8085/auth/sso-callback"`
}

var _ SSOConfig = SSO{}

func (s SSO) GetSSOProvider() string {
	return s.Provider
}

func (s SSO) GetSSOIssuerURL() string {
	return s.IssuerURL
}

func (s SSO) GetSSOClientID() string {
	return s.ClientID
}

func (s SSO) GetSSOClientSecret() string {
	return s.ClientSecret
}

func (s SSO) GetSSORedirectURL() string {
	return s.RedirectURL
}

func (s SSO) SSOEnabled() bool {
	return s.IssuerURL != "" && s.ClientID != ""
}
