package broker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
)

// SessionChecksum computes the login checksum over the concatenated
// api_key + request_token + api_secret, hex encoded.
func SessionChecksum(apiKey, requestToken, apiSecret string) string {
	sum := sha256.Sum256([]byte(apiKey + requestToken + apiSecret))
	return hex.EncodeToString(sum[:])
}

// GenerateSession exchanges a login request token for an access token and
// installs it on the client.
func (c *Client) GenerateSession(ctx context.Context, requestToken, apiSecret string) (string, error) {
	form := url.Values{}
	form.Set("api_key", c.apiKey)
	form.Set("request_token", requestToken)
	form.Set("checksum", SessionChecksum(c.apiKey, requestToken, apiSecret))

	body, err := c.postForm(ctx, "/session/token", form)
	if err != nil {
		return "", err
	}

	var resp struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshal session response: %w", err)
	}
	if resp.Data.AccessToken == "" {
		return "", fmt.Errorf("session response missing access token")
	}

	c.SetAccessToken(resp.Data.AccessToken)
	return resp.Data.AccessToken, nil
}
