package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResources(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr string
	}{
		{
			name: "single document",
			input: `kind: Subdomain
metadata:
  name: api
spec:
  port: 3000
`,
			want: []string{"api"},
		},
		{
			name: "multiple documents",
			input: `kind: Subdomain
metadata:
  name: api
spec:
  port: 3000
---
kind: Subdomain
metadata:
  name: app
spec:
  port: 8080
  ip: 203.0.113.20
  proxied: true
`,
			want: []string{"api", "app"},
		},
		{
			name:  "empty documents are skipped",
			input: "---\n---\n",
			want:  nil,
		},
		{
			name: "unknown kind",
			input: `kind: Service
metadata:
  name: api
`,
			wantErr: "unsupported resource kind",
		},
		{
			name: "missing name",
			input: `kind: Subdomain
spec:
  port: 3000
`,
			wantErr: "name is required",
		},
		{
			name:    "malformed yaml",
			input:   "kind: [",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resources, err := parseResources([]byte(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)

			var names []string
			for _, r := range resources {
				names = append(names, r.Metadata.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestParseResourcesSpec(t *testing.T) {
	resources, err := parseResources([]byte(`kind: Subdomain
metadata:
  name: app
spec:
  port: 8080
  ip: 203.0.113.20
  ttl: 300
  proxied: true
  email: ops@example.com
`))
	require.NoError(t, err)
	require.Len(t, resources, 1)

	spec := resources[0].Spec
	assert.Equal(t, 8080, spec.Port)
	assert.Equal(t, "203.0.113.20", spec.IP)
	assert.Equal(t, 300, spec.TTL)
	require.NotNil(t, spec.Proxied)
	assert.True(t, spec.IsProxied())
	assert.Equal(t, "ops@example.com", spec.Email)
}

func TestParseResourcesExplicitUnproxied(t *testing.T) {
	resources, err := parseResources([]byte(`kind: Subdomain
metadata:
  name: direct
spec:
  port: 8080
  proxied: false
---
kind: Subdomain
metadata:
  name: inherit
spec:
  port: 8081
`))
	require.NoError(t, err)
	require.Len(t, resources, 2)

	require.NotNil(t, resources[0].Spec.Proxied, "proxied: false must survive decoding")
	assert.False(t, *resources[0].Spec.Proxied)
	assert.Nil(t, resources[1].Spec.Proxied)
}
