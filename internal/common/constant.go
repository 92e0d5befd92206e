package common

// AuthorizationHeaderName is the HTTP header used to carry the device
// access token on outbound requests.
const AuthorizationHeaderName = "Authorization"

// ZoneName is the well-known name of the journal zone. Every owner has
// exactly one zone with this name; participant devices discover inbound
// shares by scanning the shared scope for it.
const ZoneName = "CareJournal"
