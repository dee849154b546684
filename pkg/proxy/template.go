package proxy

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/cuemby/burrow/pkg/types"
)

// managedMarker tags server blocks written by this package
const managedMarker = "# managed by burrow"

var vhostTemplate = template.Must(template.New("vhost").Parse(`{{.Marker}}
# server_name={{.ServerName}} backend_port={{.BackendPort}}
server {
    listen 80;
    listen [::]:80;
    server_name {{.ServerName}};
{{- if .Webroot}}

    location /.well-known/acme-challenge/ {
        root {{.Webroot}};
    }
{{- end}}
{{- if .TLS}}

    location / {
        return 301 https://$host$request_uri;
    }
}

server {
    listen 443 ssl http2;
    listen [::]:443 ssl http2;
    server_name {{.ServerName}};

    ssl_certificate {{.TLSCertPath}};
    ssl_certificate_key {{.TLSKeyPath}};
    ssl_protocols TLSv1.2 TLSv1.3;
{{- end}}

    autoindex off;

    location / {
        proxy_pass http://{{.ProxyTarget}};
        proxy_http_version 1.1;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
    }
}
`))

type templateData struct {
	Marker      string
	ServerName  string
	ProxyTarget string
	BackendPort int
	TLS         bool
	TLSCertPath string
	TLSKeyPath  string
	Webroot     string
}

// render produces the nginx server block for vhost
func render(vhost *types.VirtualHost, webroot string) ([]byte, error) {
	data := templateData{
		Marker:      managedMarker,
		ServerName:  vhost.ServerName,
		ProxyTarget: vhost.ProxyTarget,
		BackendPort: vhost.BackendPort,
		TLS:         vhost.TLSCertPath != "" && vhost.TLSKeyPath != "",
		TLSCertPath: vhost.TLSCertPath,
		TLSKeyPath:  vhost.TLSKeyPath,
		Webroot:     webroot,
	}

	var buf bytes.Buffer
	if err := vhostTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render virtual host: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	reServerName = regexp.MustCompile(`(?m)^\s*server_name\s+([^;\s]+)\s*;`)
	reProxyPass  = regexp.MustCompile(`(?m)^\s*proxy_pass\s+(?:https?://)?([^;\s]+)\s*;`)
	reCert       = regexp.MustCompile(`(?m)^\s*ssl_certificate\s+([^;\s]+)\s*;`)
	reCertKey    = regexp.MustCompile(`(?m)^\s*ssl_certificate_key\s+([^;\s]+)\s*;`)
)

// parse recovers a virtual host from a server block written by render or by hand
func parse(content []byte) *types.VirtualHost {
	text := string(content)
	vhost := &types.VirtualHost{
		ServerName:  firstMatch(reServerName, text),
		ProxyTarget: strings.TrimSuffix(firstMatch(reProxyPass, text), "/"),
		TLSCertPath: firstMatch(reCert, text),
		TLSKeyPath:  firstMatch(reCertKey, text),
	}
	vhost.BackendPort = types.PortFromTarget(vhost.ProxyTarget)
	return vhost
}

func firstMatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func isManaged(content []byte) bool {
	return bytes.HasPrefix(content, []byte(managedMarker))
}
