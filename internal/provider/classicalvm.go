package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/slopbox/controlplane/internal/cbreaker"
)

// ClassicalVMProvider drives a conventional IaaS VM REST API: full boot
// times, a cloud-init bootstrap payload instead of per-file injection at
// create time, and CPU/memory metered independently of bandwidth
// (spec.md §4.3 "Classical-VM provider"). Because this provider's
// metrics API reports CPU and memory, the forward proxy's bandwidth-only
// short-circuit does not apply to it — the proxy checks plan caps and
// overage budget per request, in addition to the monitor's per-tick
// enforcement.
type ClassicalVMProvider struct {
	httpClient *http.Client
	breaker    *cbreaker.Breaker
	apiBase    string
	apiKey     string
}

func NewClassicalVMProvider(httpClient *http.Client, breaker *cbreaker.Breaker, apiBase, apiKey string) *ClassicalVMProvider {
	return &ClassicalVMProvider{httpClient: httpClient, breaker: breaker, apiBase: apiBase, apiKey: apiKey}
}

func (p *ClassicalVMProvider) Name() string { return "classicalvm" }

func (p *ClassicalVMProvider) MeteredResources() MeteredResources {
	return MeteredResources{Bandwidth: true, CPU: true, Memory: true}
}

// serverType maps requested millicores onto the provider's fixed catalog
// of server types (spec.md §4.3 "cpu_millicores→server-type mapping").
func serverType(cpuMillicores int) string {
	switch {
	case cpuMillicores <= 2000:
		return "cx22"
	case cpuMillicores <= 4000:
		return "cx32"
	case cpuMillicores <= 8000:
		return "cx42"
	default:
		return "cx52"
	}
}

// agentServiceName is the well-known systemd unit the classical-VM image
// ships with, pre-configured to read /etc/agent-env at start.
const agentServiceName = "controlplane-agent"

// renderCloudInit builds a #cloud-config document that writes the env map
// to a well-known file, materializes every injected file at its guest
// path, and starts the on-VPS agent service (spec.md §4.3 "Classical-VM
// provider"). File content is base64-encoded and written with
// cloud-init's `encoding: b64` so arbitrary bytes (including embedded
// shell metacharacters, backticks, or heredoc terminators) never get
// interpolated into a shell context — cloud-init's YAML parser, not a
// shell, is what decodes them on the guest. The only command run on the
// guest (`runcmd`) takes no templated arguments; the one user-controlled
// content that is later read by a shell is the env file, whose values
// renderEnvFile single-quotes.
func renderCloudInit(spec VpsSpec) string {
	var b strings.Builder
	b.WriteString("#cloud-config\n")

	if len(spec.Files) > 0 || len(spec.Env) > 0 {
		b.WriteString("write_files:\n")
		for _, f := range spec.Files {
			b.WriteString("  - path: ")
			b.WriteString(yamlQuote(f.GuestPath))
			b.WriteString("\n    encoding: b64\n    content: ")
			b.WriteString(base64.StdEncoding.EncodeToString(f.RawContent))
			b.WriteString("\n    permissions: '0600'\n")
		}
		if len(spec.Env) > 0 {
			b.WriteString("  - path: '/etc/agent-env'\n    encoding: b64\n    content: ")
			b.WriteString(base64.StdEncoding.EncodeToString([]byte(renderEnvFile(spec.Env))))
			b.WriteString("\n    permissions: '0600'\n")
		}
	}

	b.WriteString("runcmd:\n  - systemctl enable --now ")
	b.WriteString(agentServiceName)
	b.WriteString("\n")

	return b.String()
}

// renderEnvFile produces a shell-sourceable KEY=VALUE file. Values are
// single-quoted; each embedded quote closes the quoted string, emits a
// backslash-escaped quote and reopens it, since this content is consumed by `source` on
// the guest rather than by cloud-init's own YAML parser.
func renderEnvFile(env map[string]string) string {
	var b strings.Builder
	for k, v := range env {
		b.WriteString(k)
		b.WriteString("='")
		b.WriteString(strings.ReplaceAll(v, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// yamlQuote wraps a string in single quotes for embedding in a
// cloud-config document, escaping embedded single quotes per YAML's
// single-quoted scalar rule (doubling them) rather than switching to
// double-quoted escaping, since guest paths never contain control
// characters that would require it.
func yamlQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

type classicalCreateRequest struct {
	Name       string `json:"name"`
	Image      string `json:"image"`
	ServerType string `json:"server_type"`
	UserData   string `json:"user_data"`
}

type classicalVmResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	PrivateNet []struct {
		IP string `json:"ip"`
	} `json:"private_net"`
}

func classicalState(s string) State {
	switch s {
	case "initializing", "starting":
		return StateStarting
	case "running":
		return StateRunning
	case "off", "stopping":
		return StateStopped
	case "deleted":
		return StateDestroyed
	default:
		return StateUnknown
	}
}

func classicalAddress(r classicalVmResponse) string {
	if len(r.PrivateNet) > 0 {
		return r.PrivateNet[0].IP
	}
	return ""
}

func (p *ClassicalVMProvider) CreateVps(ctx context.Context, spec VpsSpec) (VpsInfo, error) {
	reqBody := classicalCreateRequest{
		Name:       spec.Name,
		Image:      spec.Image,
		ServerType: serverType(spec.CPUMillicores),
		UserData:   renderCloudInit(spec),
	}

	var out classicalVmResponse
	if err := p.doJSON(ctx, http.MethodPost, "/v1/servers", reqBody, &out); err != nil {
		return VpsInfo{}, err
	}

	return VpsInfo{RemoteID: out.ID, State: classicalState(out.Status), Address: classicalAddress(out)}, nil
}

func (p *ClassicalVMProvider) StartVps(ctx context.Context, remoteID string) error {
	return p.doJSON(ctx, http.MethodPost, "/v1/servers/"+remoteID+"/actions/poweron", nil, nil)
}

func (p *ClassicalVMProvider) StopVps(ctx context.Context, remoteID string) error {
	return p.doJSON(ctx, http.MethodPost, "/v1/servers/"+remoteID+"/actions/poweroff", nil, nil)
}

func (p *ClassicalVMProvider) DestroyVps(ctx context.Context, remoteID string) error {
	err := p.doJSON(ctx, http.MethodDelete, "/v1/servers/"+remoteID, nil, nil)
	var nf *ErrNotFound
	if err != nil && isNotFound(err, &nf) {
		return nil
	}
	return err
}

func (p *ClassicalVMProvider) GetVps(ctx context.Context, remoteID string) (VpsInfo, error) {
	var out classicalVmResponse
	if err := p.doJSON(ctx, http.MethodGet, "/v1/servers/"+remoteID, nil, &out); err != nil {
		return VpsInfo{}, err
	}
	return VpsInfo{RemoteID: out.ID, State: classicalState(out.Status), Address: classicalAddress(out)}, nil
}

func (p *ClassicalVMProvider) doJSON(ctx context.Context, method, path string, reqBody, out interface{}) error {
	return p.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var bodyReader io.Reader
		if reqBody != nil {
			b, err := json.Marshal(reqBody)
			if err != nil {
				return fmt.Errorf("provider/classicalvm: marshal request: %w", err)
			}
			bodyReader = bytes.NewReader(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, p.apiBase+path, bodyReader)
		if err != nil {
			return fmt.Errorf("provider/classicalvm: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("provider/classicalvm: request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return &ErrNotFound{RemoteID: path}
		}
		if resp.StatusCode >= 300 {
			b, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("provider/classicalvm: status %d: %s", resp.StatusCode, string(b))
		}
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}
