package poster

import "strings"

// Credentials are read from the environment (.env).
type Credentials struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
	BearerToken       string
	ClientID          string
	ClientSecret      string
}

func (c Credentials) OAuth1Complete() bool {
	return c.APIKey != "" && c.APISecret != "" && c.AccessToken != "" && c.AccessTokenSecret != ""
}

// AuthStatus describes which credentials are present. No network call.
type AuthStatus struct {
	Endpoint            string          `json:"endpoint"`
	OAuth1              map[string]bool `json:"oauth1"`
	OAuth1Complete      bool            `json:"oauth1_complete"`
	BearerPresent       bool            `json:"bearer_present"`
	OAuth2ClientPresent bool            `json:"oauth2_client_present"`
	Notes               []string        `json:"notes"`
}

func Status(endpoint string, c Credentials) AuthStatus {
	present := func(s string) bool { return strings.TrimSpace(s) != "" }
	st := AuthStatus{
		Endpoint: strings.TrimRight(endpoint, "/") + "/tweets",
		OAuth1: map[string]bool{
			"API_KEY":             present(c.APIKey),
			"API_SECRET":          present(c.APISecret),
			"ACCESS_TOKEN":        present(c.AccessToken),
			"ACCESS_TOKEN_SECRET": present(c.AccessTokenSecret),
		},
		OAuth1Complete:      c.OAuth1Complete(),
		BearerPresent:       present(c.BearerToken),
		OAuth2ClientPresent: present(c.ClientID) && present(c.ClientSecret),
	}
	if st.OAuth1Complete {
		st.Notes = append(st.Notes, "OAuth 1.0a keys present; posting possible if the app has write access.")
	} else {
		st.Notes = append(st.Notes, "OAuth 1.0a keys incomplete; posting will fail.")
	}
	if st.BearerPresent {
		st.Notes = append(st.Notes, "Bearer token present (used for lookups, never for posting).")
	}
	if st.OAuth2ClientPresent {
		st.Notes = append(st.Notes, "OAuth 2.0 client id/secret present (not required).")
	}
	st.Notes = append(st.Notes, "Posting typically requires a paid plan and 'Read and write' app permissions.")
	return st
}
