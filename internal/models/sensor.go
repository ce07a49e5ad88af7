package models

// SensorSample is one decoded frame from a liquid sensor stream.
// Room is only populated on streams that are not already room-scoped.
type SensorSample struct {
	R       int    `json:"r"`
	G       int    `json:"g"`
	B       int    `json:"b"`
	IsBlood bool   `json:"isBlood"`
	Room    string `json:"room,omitempty"`
}

// PatientInfo is one directory record, keyed by room.
type PatientInfo struct {
	Room      string `json:"room"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	BloodType string `json:"bloodType"`
}

// Recognized ABO/Rh blood types for directory validation.
var BloodTypes = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

// ValidBloodType reports whether t is one of the eight ABO/Rh groups.
func ValidBloodType(t string) bool {
	for _, b := range BloodTypes {
		if b == t {
			return true
		}
	}
	return false
}

// TokenResponse is the body returned by the auth token endpoints.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}
