package engine

import (
	"fmt"
	"io"
	"net/url"
	"os"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"github.com/mengzhuo/cookiestxt"
)

// BrowserClient wraps tls-client with a Chrome TLS fingerprint.
// Requests appear as Chrome 131+ to TLS fingerprinting (JA3 hash).
type BrowserClient struct {
	client tls_client.HttpClient
}

// NewBrowserClient creates a client that impersonates Chrome 131.
// cookiesFile, when non-empty, is a Netscape-format cookie file whose
// youtube.com cookies are loaded into the jar.
func NewBrowserClient(cookiesFile string) (*BrowserClient, error) {
	jar := tls_client.NewCookieJar()

	if cookiesFile != "" {
		if err := loadCookies(jar, cookiesFile); err != nil {
			return nil, fmt.Errorf("load cookies: %w", err)
		}
	}

	opts := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(15),
		tls_client.WithClientProfile(profiles.Chrome_131),
		tls_client.WithNotFollowRedirects(),
		tls_client.WithCookieJar(jar),
		tls_client.WithInsecureSkipVerify(),
	}
	client, err := tls_client.NewHttpClient(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("tls-client init: %w", err)
	}
	return &BrowserClient{client: client}, nil
}

// loadCookies reads a Netscape cookies.txt file into the jar for youtube.com.
func loadCookies(jar tls_client.CookieJar, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cookies, err := cookiestxt.Parse(f)
	if err != nil {
		return err
	}

	// cookiestxt returns net/http cookies; the tls-client jar speaks fhttp.
	converted := make([]*fhttp.Cookie, 0, len(cookies))
	for _, c := range cookies {
		converted = append(converted, &fhttp.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}

	u, _ := url.Parse("https://www.youtube.com/")
	jar.SetCookies(u, converted)
	return nil
}

// Do executes a request with Chrome TLS fingerprint.
// Returns body bytes, HTTP status code, and any error.
func (bc *BrowserClient) Do(method, reqURL string, headers map[string]string, body io.Reader) ([]byte, int, error) {
	req, err := fhttp.NewRequest(method, reqURL, body)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	// Chrome-like header order matters for fingerprinting
	req.Header[fhttp.HeaderOrderKey] = []string{
		"accept",
		"accept-language",
		"accept-encoding",
		"referer",
		"cookie",
		"user-agent",
	}

	resp, err := bc.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("tls request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}

	return data, resp.StatusCode, nil
}

// Get is a convenience wrapper: GET with Chrome headers, non-200 becomes a
// typed status error so Classify can pick up 403/429 walls.
func (bc *BrowserClient) Get(reqURL string) ([]byte, error) {
	data, status, err := bc.Do("GET", reqURL, ChromeHeaders(), nil)
	if err != nil {
		return nil, err
	}
	if status != fhttp.StatusOK {
		return nil, &httpStatusError{StatusCode: status}
	}
	return data, nil
}
