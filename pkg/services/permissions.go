package services

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/forgeline-inc/forgeline-engine/pkg/models"
)

// PermissionEvaluator decides whether a role may perform an action. It is
// pure and side-effect-free; callers handle logging and error surfacing.
type PermissionEvaluator interface {
	// Authorize checks the schema's permission block for the action.
	// Deny when the caller's priority is below the required role's, or when
	// the caller role does not normalize to any known role.
	Authorize(role models.Role, schema *models.EntitySchema, action models.EntityAction) bool

	// AuthorizeRoute checks the route-prefix table by longest-prefix match.
	// Unmatched prefixes require the lowest role, viewer.
	AuthorizeRoute(role models.Role, path string) bool

	// RequiredForRoute returns the minimum role the route table demands
	// for a path.
	RequiredForRoute(path string) models.Role
}

// defaultRouteTable holds the prefixes checked through AuthorizeRoute.
// Only record routes and the finance surface flow through it; the schema,
// audit and integration-log handlers gate themselves with static role
// middleware. Loaded overrides replace entries by prefix.
var defaultRouteTable = map[string]models.Role{
	"/finance":      models.RoleAdmin,
	"/api/entities": models.RoleViewer,
}

type permissionEvaluator struct {
	// prefixes sorted longest-first so the first match wins.
	prefixes []string
	table    map[string]models.Role
}

// NewPermissionEvaluator builds an evaluator from the defaults merged with
// the optional YAML route table at path (prefix -> role). An empty path
// keeps the defaults alone.
func NewPermissionEvaluator(routeTablePath string) (PermissionEvaluator, error) {
	table := make(map[string]models.Role, len(defaultRouteTable))
	for prefix, role := range defaultRouteTable {
		table[prefix] = role
	}

	if routeTablePath != "" {
		loaded, err := loadRouteTable(routeTablePath)
		if err != nil {
			return nil, err
		}
		for prefix, role := range loaded {
			table[prefix] = role
		}
	}

	prefixes := make([]string, 0, len(table))
	for prefix := range table {
		prefixes = append(prefixes, prefix)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		return len(prefixes[i]) > len(prefixes[j])
	})

	return &permissionEvaluator{prefixes: prefixes, table: table}, nil
}

var _ PermissionEvaluator = (*permissionEvaluator)(nil)

func (e *permissionEvaluator) Authorize(role models.Role, schema *models.EntitySchema, action models.EntityAction) bool {
	if !role.IsValid() {
		return false
	}

	required, ok := schema.Permissions.For(action)
	if !ok {
		return false
	}
	if required == models.RoleNone {
		// A schema that leaves an action ungated admits the lowest tier.
		required = models.RoleViewer
	}

	return role.AtLeast(required)
}

func (e *permissionEvaluator) AuthorizeRoute(role models.Role, path string) bool {
	if !role.IsValid() {
		return false
	}
	return role.AtLeast(e.RequiredForRoute(path))
}

func (e *permissionEvaluator) RequiredForRoute(path string) models.Role {
	for _, prefix := range e.prefixes {
		if strings.HasPrefix(path, prefix) {
			return e.table[prefix]
		}
	}
	return models.RoleViewer
}

// loadRouteTable reads a YAML mapping of route prefix to role name.
func loadRouteTable(path string) (map[string]models.Role, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route table: %w", err)
	}

	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse route table: %w", err)
	}

	table := make(map[string]models.Role, len(raw))
	for prefix, roleName := range raw {
		role := models.NormalizeRole(roleName)
		if role == models.RoleNone {
			return nil, fmt.Errorf("route table entry %q names unknown role %q", prefix, roleName)
		}
		table[prefix] = role
	}
	return table, nil
}
