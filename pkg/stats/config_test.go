package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilal/devstats/pkg/state"
)

func TestConfiguration_Protocol(t *testing.T) {
	p, err := Configuration{APIKey: "k"}.Protocol()
	require.NoError(t, err)
	assert.Equal(t, APIKeyDiff, p.Kind)
	assert.False(t, p.CommitsBeforeCall())
	assert.True(t, p.UsesPrevious())

	p, err = Configuration{SharedSecret: "s"}.Protocol()
	require.NoError(t, err)
	assert.Equal(t, SignedChecksum, p.Kind)
	assert.True(t, p.CommitsBeforeCall())
	assert.False(t, p.UsesPrevious())

	_, err = Configuration{APIKey: "k", SharedSecret: "s"}.Protocol()
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = Configuration{}.Protocol()
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestConfiguration_EndpointURL(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Configuration
		want    string
		wantErr bool
	}{
		{
			name: "api key derives collector url",
			cfg:  Configuration{APIKey: "k", Collection: "ios"},
			want: "https://q42stats.ew.r.appspot.com/add/ios",
		},
		{
			name: "api key with custom base",
			cfg:  Configuration{APIKey: "k", Collection: "ios", CollectorBaseURL: "http://localhost:8080/"},
			want: "http://localhost:8080/add/ios",
		},
		{
			name: "signed checksum derives firestore url",
			cfg:  Configuration{SharedSecret: "s", FirebaseProject: "foobar", Collection: "somecollection"},
			want: "https://firestore.googleapis.com/v1/projects/foobar/databases/(default)/documents/somecollection",
		},
		{
			name: "explicit endpoint wins",
			cfg:  Configuration{APIKey: "k", Collection: "ios", Endpoint: "https://example.com/stats"},
			want: "https://example.com/stats",
		},
		{
			name:    "missing collection",
			cfg:     Configuration{APIKey: "k"},
			wantErr: true,
		},
		{
			name:    "signed checksum without project",
			cfg:     Configuration{SharedSecret: "s", Collection: "c"},
			wantErr: true,
		},
		{
			name:    "relative endpoint",
			cfg:     Configuration{APIKey: "k", Endpoint: "/stats"},
			wantErr: true,
		},
		{
			name:    "unsupported scheme",
			cfg:     Configuration{APIKey: "k", Endpoint: "ftp://example.com/stats"},
			wantErr: true,
		},
		{
			name:    "unparseable endpoint",
			cfg:     Configuration{APIKey: "k", Endpoint: "http://[::1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := tt.cfg.EndpointURL()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}
}

func TestConfiguration_Validate(t *testing.T) {
	ok := Configuration{APIKey: "k", Collection: "c", MinimumSubmitInterval: time.Hour}
	assert.NoError(t, ok.Validate())

	neg := ok
	neg.MinimumSubmitInterval = -time.Second
	assert.ErrorIs(t, neg.Validate(), ErrInvalidConfiguration)

	zero := ok
	zero.MinimumSubmitInterval = 0
	assert.ErrorIs(t, zero.Validate(), ErrInvalidConfiguration)

	negTimeout := ok
	negTimeout.Timeout = -time.Second
	assert.ErrorIs(t, negTimeout.Validate(), ErrInvalidConfiguration)
}

func TestNew_RejectsInvalidConfiguration(t *testing.T) {
	_, err := New(Configuration{APIKey: "k"}, state.NewMemoryStore())
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = New(Configuration{APIKey: "k", Collection: "c", MinimumSubmitInterval: time.Hour}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestNew_ExposesProtocolAndEndpoint(t *testing.T) {
	c, err := New(Configuration{
		SharedSecret:          "s",
		FirebaseProject:       "p",
		Collection:            "c",
		MinimumSubmitInterval: time.Hour,
	}, state.NewMemoryStore())
	require.NoError(t, err)
	defer c.Shutdown(context.Background())

	assert.Equal(t, SignedChecksum, c.Protocol().Kind)
	assert.Equal(t, "https://firestore.googleapis.com/v1/projects/p/databases/(default)/documents/c", c.Endpoint())
}
