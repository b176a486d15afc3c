package dataforseo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Language is one entry of the remote language catalog.
type Language struct {
	Name string `json:"language_name"`
	Code string `json:"language_code"`
}

// Location is one entry of the remote location catalog.
type Location struct {
	Code        int    `json:"location_code"`
	Name        string `json:"location_name"`
	CountryCode string `json:"country_iso_code"`
	Type        string `json:"location_type"`
}

// Languages returns the languages the configured SERP type supports.
func (c *Client) Languages(ctx context.Context) ([]Language, error) {
	endpoint := fmt.Sprintf("serp/%s/languages", c.serpType)
	env, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var out []Language
	if err := decodeCatalog(env, &out); err != nil {
		return nil, fmt.Errorf("decode languages: %w", err)
	}
	return out, nil
}

// Locations returns the location catalog, optionally narrowed to a country
// ISO code.
func (c *Client) Locations(ctx context.Context, countryISO string) ([]Location, error) {
	endpoint := fmt.Sprintf("serp/%s/locations", c.serpType)
	if countryISO != "" {
		endpoint += "/" + strings.ToLower(countryISO)
	}
	env, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var out []Location
	if err := decodeCatalog(env, &out); err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}
	return out, nil
}

// decodeCatalog flattens the result arrays of every task into dst, which must
// be a pointer to a slice.
func decodeCatalog[T any](env envelope, dst *[]T) error {
	for _, task := range env.Tasks {
		for _, raw := range task.Result {
			var item T
			if err := json.Unmarshal(raw, &item); err != nil {
				return err
			}
			*dst = append(*dst, item)
		}
	}
	return nil
}
