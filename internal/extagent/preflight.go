package extagent

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// wsURLToHTTP rewrites ws(s):// to http(s):// and strips the path, giving
// the relay's plain HTTP root for the preflight check.
func wsURLToHTTP(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("extagent: invalid relay url %q: %w", wsURL, err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = ""
	return u.String(), nil
}

func headOK(ctx context.Context, httpURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, httpURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("extagent: relay preflight against %s failed: %w", httpURL, err)
	}
	defer resp.Body.Close()
	return nil
}
