package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	RoleAdmin        = "admin"
	RoleCivilDefense = "civil_defense"
	RoleCitizen      = "citizen"
)

// RoleDirectory resolves an actor identity to a platform role. The identity
// service itself is an external collaborator; the pipeline only needs this
// one read.
type RoleDirectory interface {
	RoleOf(ctx context.Context, did string) (string, error)
}

func privilegedRole(role string) bool {
	return role == RoleAdmin || role == RoleCivilDefense
}

// actorRole resolves a role through the cache when one is configured.
func (eng *Engine) actorRole(ctx context.Context, did string) (string, error) {
	if eng.Roles == nil {
		return RoleCitizen, nil
	}
	if eng.Cache != nil {
		if cached, err := eng.Cache.Get(ctx, "role", did); err == nil && cached != "" {
			return cached, nil
		}
	}
	role, err := eng.Roles.RoleOf(ctx, did)
	if err != nil {
		return "", fmt.Errorf("resolving role for %s: %w", did, err)
	}
	if eng.Cache != nil {
		if err := eng.Cache.Set(ctx, "role", did, role); err != nil {
			eng.logger().Warn("role cache write failed", "err", err, "did", did)
		}
	}
	return role, nil
}

// StaticRoleDirectory is an in-memory role table, used in tests and in
// single-node deployments configured from flags.
type StaticRoleDirectory struct {
	lk      sync.RWMutex
	roles   map[string]string
	Default string
}

var _ RoleDirectory = (*StaticRoleDirectory)(nil)

func NewStaticRoleDirectory() *StaticRoleDirectory {
	return &StaticRoleDirectory{
		roles:   make(map[string]string),
		Default: RoleCitizen,
	}
}

func (d *StaticRoleDirectory) Insert(did, role string) {
	d.lk.Lock()
	defer d.lk.Unlock()
	d.roles[did] = role
}

func (d *StaticRoleDirectory) RoleOf(ctx context.Context, did string) (string, error) {
	d.lk.RLock()
	defer d.lk.RUnlock()
	if role, ok := d.roles[did]; ok {
		return role, nil
	}
	return d.Default, nil
}

// HTTPRoleDirectory reads roles from the platform identity service.
type HTTPRoleDirectory struct {
	Host   string
	Client *http.Client
}

var _ RoleDirectory = (*HTTPRoleDirectory)(nil)

func NewHTTPRoleDirectory(host string) *HTTPRoleDirectory {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	return &HTTPRoleDirectory{
		Host:   host,
		Client: rc.StandardClient(),
	}
}

func (d *HTTPRoleDirectory) RoleOf(ctx context.Context, did string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.Host+"/api/roles/"+did, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return RoleCitizen, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("role lookup failed. status=%d", resp.StatusCode)
	}
	var body struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.Role == "" {
		return RoleCitizen, nil
	}
	return body.Role, nil
}
