package credentials

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Canonical field names of the persisted credential record.
const (
	FieldRefreshToken = "refresh_token"
	FieldClientID     = "client_id"
	FieldClientSecret = "client_secret"
	FieldAccessToken  = "access_token"
	FieldTokenExpiry  = "token_expiry"
)

// expiryLayout matches the millisecond ISO-8601 form used by existing stored records.
const expiryLayout = "2006-01-02T15:04:05.000Z07:00"

type fieldAlias struct {
	canonical string
	keys      []string
}

// fieldAliases maps each canonical field to the source keys accepted for it,
// in lookup order.
var fieldAliases = []fieldAlias{
	{FieldRefreshToken, []string{"refresh_token", "refreshToken"}},
	{FieldClientID, []string{"client_id", "clientId"}},
	{FieldClientSecret, []string{"client_secret", "clientSecret"}},
	{FieldAccessToken, []string{"access_token", "accessToken"}},
	{FieldTokenExpiry, []string{"token_expiry", "tokenExpiry"}},
}

var requiredFields = []string{FieldRefreshToken, FieldClientID, FieldClientSecret}

var aliasKeys = func() map[string]bool {
	m := make(map[string]bool)
	for _, a := range fieldAliases {
		for _, k := range a.keys {
			m[k] = true
		}
	}
	return m
}()

// Credentials is the persisted credential record. Fields outside the alias
// table (a profile ARN, for instance) are kept in Extra and written back verbatim.
type Credentials struct {
	RefreshToken string
	ClientID     string
	ClientSecret string
	AccessToken  string
	TokenExpiry  *time.Time
	Extra        map[string]json.RawMessage
}

// Parse decodes a credential blob, resolving alias spellings to canonical fields.
func Parse(raw []byte) (*Credentials, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid credentials JSON")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("credentials JSON must be an object")
	}

	c := &Credentials{Extra: make(map[string]json.RawMessage)}
	for _, alias := range fieldAliases {
		value := resolveAlias(doc, alias.keys)
		if value == "" {
			continue
		}
		switch alias.canonical {
		case FieldRefreshToken:
			c.RefreshToken = value
		case FieldClientID:
			c.ClientID = value
		case FieldClientSecret:
			c.ClientSecret = value
		case FieldAccessToken:
			c.AccessToken = value
		case FieldTokenExpiry:
			expiry, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return nil, fmt.Errorf("invalid token_expiry %q: %w", value, err)
			}
			c.TokenExpiry = &expiry
		}
	}

	doc.ForEach(func(key, value gjson.Result) bool {
		if !aliasKeys[key.String()] {
			c.Extra[key.String()] = json.RawMessage(value.Raw)
		}
		return true
	})
	return c, nil
}

func resolveAlias(doc gjson.Result, keys []string) string {
	for _, key := range keys {
		v := doc.Get(key)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}

// Missing lists the canonical names of required fields that are empty.
func (c *Credentials) Missing() []string {
	var missing []string
	for _, field := range requiredFields {
		var v string
		switch field {
		case FieldRefreshToken:
			v = c.RefreshToken
		case FieldClientID:
			v = c.ClientID
		case FieldClientSecret:
			v = c.ClientSecret
		}
		if v == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// ProfileARN returns the passthrough profile identifier, if any.
func (c *Credentials) ProfileARN() string {
	for _, key := range []string{"profile_arn", "profileArn"} {
		raw, ok := c.Extra[key]
		if !ok {
			continue
		}
		if v := gjson.ParseBytes(raw); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// Clone returns a deep copy.
func (c *Credentials) Clone() *Credentials {
	if c == nil {
		return &Credentials{Extra: map[string]json.RawMessage{}}
	}
	out := *c
	if c.TokenExpiry != nil {
		expiry := *c.TokenExpiry
		out.TokenExpiry = &expiry
	}
	out.Extra = make(map[string]json.RawMessage, len(c.Extra))
	for k, v := range c.Extra {
		out.Extra[k] = v
	}
	return &out
}

// Merge overlays next onto c. Passthrough fields are merged key by key; the
// canonical fields and the access token/expiry pair come from next as a unit.
func (c *Credentials) Merge(next *Credentials) *Credentials {
	out := next.Clone()
	if c == nil {
		return out
	}
	for k, v := range c.Extra {
		if _, ok := out.Extra[k]; !ok {
			out.Extra[k] = v
		}
	}
	return out
}

// WithToken returns a copy carrying a new access token and expiry.
func (c *Credentials) WithToken(accessToken string, expiry time.Time) *Credentials {
	out := c.Clone()
	out.AccessToken = accessToken
	out.TokenExpiry = &expiry
	return out
}

func (c *Credentials) MarshalJSON() ([]byte, error) {
	fields := make(map[string]interface{}, len(c.Extra)+5)
	for k, v := range c.Extra {
		fields[k] = v
	}
	setIf := func(key, value string) {
		if value != "" {
			fields[key] = value
		}
	}
	setIf(FieldRefreshToken, c.RefreshToken)
	setIf(FieldClientID, c.ClientID)
	setIf(FieldClientSecret, c.ClientSecret)
	if c.AccessToken != "" {
		fields[FieldAccessToken] = c.AccessToken
	} else {
		fields[FieldAccessToken] = nil
	}
	if c.TokenExpiry != nil {
		fields[FieldTokenExpiry] = c.TokenExpiry.UTC().Format(expiryLayout)
	} else {
		fields[FieldTokenExpiry] = nil
	}
	return json.Marshal(fields)
}

func (c *Credentials) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*c = *parsed
	return nil
}
