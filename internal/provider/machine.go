package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/slopbox/controlplane/internal/cbreaker"
)

// MachineProvider drives a microVM-style REST API: fast-booting,
// ephemeral virtual machines sized by a small set of named "guest
// sizes" rather than arbitrary CPU/memory tuples (spec.md §4.3
// "Machine-style provider"). It meters bandwidth only — CPU and memory
// usage are the monitor's responsibility via cumulative machine state,
// not a per-request metrics call (spec.md §4.1 bandwidth-only
// short-circuit).
type MachineProvider struct {
	httpClient *http.Client
	breaker    *cbreaker.Breaker
	apiBase    string
	apiKey     string
}

func NewMachineProvider(httpClient *http.Client, breaker *cbreaker.Breaker, apiBase, apiKey string) *MachineProvider {
	return &MachineProvider{httpClient: httpClient, breaker: breaker, apiBase: apiBase, apiKey: apiKey}
}

func (p *MachineProvider) Name() string { return "machine" }

func (p *MachineProvider) MeteredResources() MeteredResources {
	return MeteredResources{Bandwidth: true}
}

// guestSize maps requested millicores onto the provider's named size
// tiers. Memory/disk ride along with the chosen tier rather than being
// independently selectable (spec.md §4.3 "cpu_millicores→guest-size
// mapping").
func guestSize(cpuMillicores int) string {
	switch {
	case cpuMillicores <= 1000:
		return "shared-cpu-1x"
	case cpuMillicores <= 2000:
		return "shared-cpu-2x"
	case cpuMillicores <= 4000:
		return "performance-cpu-4x"
	default:
		return "performance-cpu-8x"
	}
}

type machineCreateRequest struct {
	Name   string            `json:"name"`
	Image  string            `json:"image"`
	Size   string            `json:"size"`
	DiskGB int               `json:"disk_gb"`
	Env    map[string]string `json:"env,omitempty"`
	Files  []machineFile     `json:"files,omitempty"`
}

type machineFile struct {
	GuestPath string `json:"guest_path"`
	Content   string `json:"raw_content"` // raw bytes as a UTF-8 string; this provider's create API takes file content inline, unencoded
}

type machineVpsResponse struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	PrivIP  string `json:"private_ip"`
	Machine struct {
		Name string `json:"name"`
	} `json:"machine"`
}

func machineState(s string) State {
	switch s {
	case "starting", "created":
		return StateStarting
	case "started":
		return StateRunning
	case "stopped", "stopping":
		return StateStopped
	case "destroyed":
		return StateDestroyed
	default:
		return StateUnknown
	}
}

func (p *MachineProvider) CreateVps(ctx context.Context, spec VpsSpec) (VpsInfo, error) {
	files := make([]machineFile, 0, len(spec.Files))
	for _, f := range spec.Files {
		files = append(files, machineFile{GuestPath: f.GuestPath, Content: string(f.RawContent)})
	}

	reqBody := machineCreateRequest{
		Name:   spec.Name,
		Image:  spec.Image,
		Size:   guestSize(spec.CPUMillicores),
		DiskGB: spec.DiskGB,
		Env:    spec.Env,
		Files:  files,
	}

	var out machineVpsResponse
	if err := p.doJSON(ctx, http.MethodPost, "/v1/machines", reqBody, &out); err != nil {
		return VpsInfo{}, err
	}

	return VpsInfo{
		RemoteID: out.ID,
		State:    machineState(out.State),
		Address:  machineAddress(out),
	}, nil
}

// machineAddress prefers the private IP assigned at boot; if the
// provider hasn't assigned one yet it synthesizes the internal DNS
// name every machine gets regardless of IP assignment timing, so the
// gateway has something to dial as soon as the machine is "starting".
func machineAddress(r machineVpsResponse) string {
	if r.PrivIP != "" {
		return r.PrivIP
	}
	if r.Machine.Name != "" {
		return r.Machine.Name + ".internal"
	}
	return ""
}

func (p *MachineProvider) StartVps(ctx context.Context, remoteID string) error {
	return p.doJSON(ctx, http.MethodPost, "/v1/machines/"+remoteID+"/start", nil, nil)
}

func (p *MachineProvider) StopVps(ctx context.Context, remoteID string) error {
	return p.doJSON(ctx, http.MethodPost, "/v1/machines/"+remoteID+"/stop", nil, nil)
}

func (p *MachineProvider) DestroyVps(ctx context.Context, remoteID string) error {
	err := p.doJSON(ctx, http.MethodDelete, "/v1/machines/"+remoteID, nil, nil)
	var nf *ErrNotFound
	if err != nil && isNotFound(err, &nf) {
		return nil
	}
	return err
}

func (p *MachineProvider) GetVps(ctx context.Context, remoteID string) (VpsInfo, error) {
	var out machineVpsResponse
	if err := p.doJSON(ctx, http.MethodGet, "/v1/machines/"+remoteID, nil, &out); err != nil {
		return VpsInfo{}, err
	}
	return VpsInfo{RemoteID: out.ID, State: machineState(out.State), Address: machineAddress(out)}, nil
}

func (p *MachineProvider) doJSON(ctx context.Context, method, path string, reqBody, out interface{}) error {
	return p.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var bodyReader io.Reader
		if reqBody != nil {
			b, err := json.Marshal(reqBody)
			if err != nil {
				return fmt.Errorf("provider/machine: marshal request: %w", err)
			}
			bodyReader = bytes.NewReader(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, p.apiBase+path, bodyReader)
		if err != nil {
			return fmt.Errorf("provider/machine: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("provider/machine: request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return &ErrNotFound{RemoteID: path}
		}
		if resp.StatusCode >= 300 {
			b, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("provider/machine: status %d: %s", resp.StatusCode, string(b))
		}
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

func isNotFound(err error, target **ErrNotFound) bool {
	nf, ok := err.(*ErrNotFound)
	if ok {
		*target = nf
	}
	return ok
}
