package afero

import "time"

const (
	maxRetryAttempts = 3
	retryBackoffStep = 250 * time.Millisecond

	defaultTimeout = 10 * time.Second
)

// TypeMetadevice is the typeId of controllable entries in the inventory;
// rooms and other groupings carry different typeIds and are never claimed.
const TypeMetadevice = "metadevice.device"

// ClientInfo describes one Afero-hosted platform (Hubspace, Myko, ...).
// All values are derived from the vendor mobile applications.
type ClientInfo struct {
	UserAgent   string
	APIHost     string
	DataHost    string
	OpenIDHost  string
	AuthRealm   string
	ClientID    string
	RedirectURI string
}

// Clients enumerates the supported Afero platforms keyed by platform name.
var Clients = map[string]ClientInfo{
	"hubspace": {
		UserAgent:   "Dart/2.15 (dart:io)",
		APIHost:     "api2.afero.net",
		DataHost:    "semantics2.afero.net",
		OpenIDHost:  "accounts.hubspaceconnect.com",
		AuthRealm:   "thd",
		ClientID:    "hubspace_android",
		RedirectURI: "hubspace-app://loginredirect",
	},
	"myko": {
		UserAgent:   "Dart/3.1 (dart:io)",
		APIHost:     "api2.sxz2xlhh.afero.net",
		DataHost:    "semantics2.sxz2xlhh.afero.net",
		OpenIDHost:  "accounts.mykoapp.com",
		AuthRealm:   "kfi",
		ClientID:    "kfi_android",
		RedirectURI: "kfi-app://loginredirect",
	},
}

// AccountURL returns the endpoint that resolves the account id for the login.
func (c ClientInfo) AccountURL() string {
	return "https://" + c.APIHost + "/v1/users/me"
}

// DataURL returns the endpoint serving the full metadevice inventory.
func (c ClientInfo) DataURL(accountID string) string {
	return "https://" + c.DataHost + "/v1/accounts/" + accountID + "/metadevices"
}

// StateURL returns the endpoint for pushing state values to one metadevice.
func (c ClientInfo) StateURL(accountID, deviceID string) string {
	return "https://" + c.DataHost + "/v1/accounts/" + accountID + "/metadevices/" + deviceID + "/state"
}

// TokenURL returns the OpenID token endpoint used for refresh grants.
func (c ClientInfo) TokenURL() string {
	return "https://" + c.OpenIDHost + "/auth/realms/" + c.AuthRealm + "/protocol/openid-connect/token"
}
