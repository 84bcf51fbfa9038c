package stats

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultCollectorBaseURL hosts the API-key collector; the collection name is
// appended as /add/<collection>.
const DefaultCollectorBaseURL = "https://q42stats.ew.r.appspot.com"

const firestoreDocumentsURL = "https://firestore.googleapis.com/v1/projects/%s/databases/(default)/documents/%s"

var ErrInvalidConfiguration = errors.New("invalid stats configuration")

// Configuration is built once by the host and never mutated. Exactly one of
// APIKey and SharedSecret selects the wire protocol.
type Configuration struct {
	// Endpoint, when set, is used verbatim and overrides the derived URL.
	Endpoint string
	// Collection names the collector-side collection the snapshots land in.
	Collection string
	// FirebaseProject is required by the signed-checksum protocol when
	// Endpoint is empty.
	FirebaseProject string
	// CollectorBaseURL overrides DefaultCollectorBaseURL for the API-key protocol.
	CollectorBaseURL string

	APIKey       string
	SharedSecret string

	MinimumSubmitInterval time.Duration
	// Timeout bounds a single request; zero means 30 seconds.
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Protocol returns the wire protocol selected by the populated credential.
func (c Configuration) Protocol() (Protocol, error) {
	switch {
	case c.APIKey != "" && c.SharedSecret != "":
		return Protocol{}, fmt.Errorf("%w: api key and shared secret are mutually exclusive", ErrInvalidConfiguration)
	case c.APIKey != "":
		return APIKeyDiffProtocol(c.APIKey), nil
	case c.SharedSecret != "":
		return SignedChecksumProtocol(c.SharedSecret), nil
	default:
		return Protocol{}, fmt.Errorf("%w: either an api key or a shared secret is required", ErrInvalidConfiguration)
	}
}

// EndpointURL resolves the collector URL for the selected protocol.
func (c Configuration) EndpointURL() (*url.URL, error) {
	raw := c.Endpoint
	if raw == "" {
		p, err := c.Protocol()
		if err != nil {
			return nil, err
		}
		if c.Collection == "" {
			return nil, fmt.Errorf("%w: collection is required", ErrInvalidConfiguration)
		}
		switch p.Kind {
		case SignedChecksum:
			if c.FirebaseProject == "" {
				return nil, fmt.Errorf("%w: firebase project is required", ErrInvalidConfiguration)
			}
			raw = fmt.Sprintf(firestoreDocumentsURL, url.PathEscape(c.FirebaseProject), url.PathEscape(c.Collection))
		case APIKeyDiff:
			base := c.CollectorBaseURL
			if base == "" {
				base = DefaultCollectorBaseURL
			}
			raw = strings.TrimRight(base, "/") + "/add/" + url.PathEscape(c.Collection)
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: endpoint %q: %v", ErrInvalidConfiguration, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: endpoint %q must be an absolute http(s) URL", ErrInvalidConfiguration, raw)
	}
	return u, nil
}

// Validate checks everything New needs.
func (c Configuration) Validate() error {
	if _, err := c.Protocol(); err != nil {
		return err
	}
	if c.MinimumSubmitInterval <= 0 {
		return fmt.Errorf("%w: minimum submit interval must be positive", ErrInvalidConfiguration)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfiguration)
	}
	if _, err := c.EndpointURL(); err != nil {
		return err
	}
	return nil
}
