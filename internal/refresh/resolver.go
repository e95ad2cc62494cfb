package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pbirefresh/internal/common/security"
	"pbirefresh/internal/powerbi"
)

// Resolver maps operator-supplied names to workspace and dataset IDs.
type Resolver struct {
	api     API
	confirm Confirmer
	cutoff  float64
	logger  *slog.Logger
}

// NewResolver returns a resolver using DefaultCutoff. A nil confirmer behaves like AutoReject.
func NewResolver(api API, confirm Confirmer, logger *slog.Logger) *Resolver {
	if confirm == nil {
		confirm = AutoReject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{api: api, confirm: confirm, cutoff: DefaultCutoff, logger: logger}
}

// ResolveWorkspace returns the workspace whose name equals name, ignoring case.
// There is no fuzzy fallback for workspaces.
func (r *Resolver) ResolveWorkspace(ctx context.Context, name string) (powerbi.Group, error) {
	groups, err := r.api.ListGroups(ctx)
	if err != nil {
		return powerbi.Group{}, err
	}
	for _, g := range groups {
		if strings.EqualFold(g.Name, name) {
			r.logger.Info("Workspace found", "workspace", g.Name, "id", security.MaskGUID(g.ID))
			return g, nil
		}
	}
	return powerbi.Group{}, fmt.Errorf("workspace %q: %w", name, ErrNotFound)
}

// ResolveDataset picks the candidate matching input.
// An exact match (ignoring case) returns without prompting. Otherwise the
// closest candidate above the cutoff is offered to the Confirmer: accepting
// resolves to it, declining returns ErrCancelled. With no candidate above the
// cutoff it returns ErrNotFound.
func (r *Resolver) ResolveDataset(ctx context.Context, input string, candidates []powerbi.Dataset) (powerbi.Dataset, error) {
	for _, ds := range candidates {
		if strings.EqualFold(ds.Name, input) {
			return ds, nil
		}
	}

	names := make([]string, len(candidates))
	for i, ds := range candidates {
		names[i] = ds.Name
	}

	suggestion, ok := ClosestMatch(input, names, r.cutoff)
	if !ok {
		return powerbi.Dataset{}, fmt.Errorf("dataset %q has no similar name: %w", input, ErrNotFound)
	}

	accepted, err := r.confirm.Confirm(ctx, input, suggestion)
	if err != nil {
		return powerbi.Dataset{}, fmt.Errorf("confirm suggestion %q: %w", suggestion, err)
	}
	if !accepted {
		return powerbi.Dataset{}, fmt.Errorf("suggestion %q declined: %w", suggestion, ErrCancelled)
	}

	r.logger.Info("Using suggested dataset", "input", input, "dataset", suggestion)
	for _, ds := range candidates {
		if ds.Name == suggestion {
			return ds, nil
		}
	}
	return powerbi.Dataset{}, fmt.Errorf("dataset %q: %w", suggestion, ErrNotFound)
}

// Candidates returns the datasets a run may target.
// With an empty allow-list this is every dataset in the workspace. Otherwise
// it is the allow-list, in its order and without repeats, with IDs filled
// from the workspace; a configured name missing from the workspace keeps an
// empty ID.
func (r *Resolver) Candidates(ctx context.Context, ws powerbi.Group, allow []string) ([]powerbi.Dataset, error) {
	catalog, err := r.api.ListDatasets(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	if len(allow) == 0 {
		return catalog, nil
	}

	byName := make(map[string]powerbi.Dataset, len(catalog))
	for _, ds := range catalog {
		byName[strings.ToLower(ds.Name)] = ds
	}

	out := make([]powerbi.Dataset, 0, len(allow))
	seen := make(map[string]bool, len(allow))
	for _, name := range allow {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		ds, ok := byName[key]
		if !ok {
			r.logger.Warn("Configured dataset not in workspace", "dataset", name, "workspace", ws.Name)
			ds = powerbi.Dataset{Name: strings.TrimSpace(name)}
		}
		out = append(out, ds)
	}
	return out, nil
}

// Targets resolves the datasets for one run. An empty input selects every
// candidate; otherwise the single dataset resolved from input is returned.
func (r *Resolver) Targets(ctx context.Context, ws powerbi.Group, input string, allow []string) ([]powerbi.Dataset, error) {
	candidates, err := r.Candidates(ctx, ws, allow)
	if err != nil {
		return nil, err
	}

	input = strings.TrimSpace(input)
	if input == "" {
		r.logger.Info("No dataset name given, running all datasets", "count", len(candidates))
		return candidates, nil
	}

	ds, err := r.ResolveDataset(ctx, input, candidates)
	if err != nil {
		return nil, err
	}
	return []powerbi.Dataset{ds}, nil
}
