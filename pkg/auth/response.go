package auth

import (
	"encoding/json"
	"fmt"
)

// AuthAndSignResponse is the zinc auth response. Immutable once stored;
// shared between the session and the egress manager.
type AuthAndSignResponse struct {
	JwtToken               string   `json:"jwt_token"`
	BlindedTokenSignatures []string `json:"blinded_token_signature,omitempty"`
	SessionManagerIPs      []string `json:"session_manager_ips,omitempty"`
}

func DecodeAuthAndSignResponse(body []byte) (*AuthAndSignResponse, error) {
	var response AuthAndSignResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}
	if response.JwtToken == "" {
		return nil, fmt.Errorf("auth response has no jwt_token")
	}
	return &response, nil
}
