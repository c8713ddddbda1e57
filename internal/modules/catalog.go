package modules

import (
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/yungbote/talentgraph-backend/internal/data/repos"
	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

// Seed writes one catalogue row per registered handler version. Existing
// rows (and their enabled flag) are left untouched.
func Seed(dbc dbctx.Context, repo repos.ModuleRepo, reg *Registry) (int, error) {
	created := 0
	for _, h := range reg.Handlers() {
		if _, err := semver.NewVersion(h.Version()); err != nil {
			return created, errors.Validation("modules.Seed", "module %s has invalid version %q", h.Key(), h.Version())
		}
		ok, err := repo.CreateIfAbsent(dbc, &types.Module{
			Key:     h.Key(),
			Version: h.Version(),
			Kind:    h.Kind(),
			Enabled: true,
		})
		if err != nil {
			return created, errors.MapDBError("modules.Seed", err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// LatestEnabled picks, per key, the enabled row with the highest semantic
// version. Rows with unparsable versions are ignored.
func LatestEnabled(rows []*types.Module) map[string]*types.Module {
	type candidate struct {
		row *types.Module
		ver *semver.Version
	}
	best := map[string]candidate{}
	for _, m := range rows {
		if m == nil || !m.Enabled {
			continue
		}
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			continue
		}
		cur, ok := best[m.Key]
		if !ok || v.GreaterThan(cur.ver) {
			best[m.Key] = candidate{row: m, ver: v}
		}
	}
	out := make(map[string]*types.Module, len(best))
	for k, c := range best {
		out[k] = c.row
	}
	return out
}

// ResolveLatest loads the catalogue for keys and returns the latest enabled
// row per key, in the order of keys. Keys without an enabled row are skipped.
func ResolveLatest(dbc dbctx.Context, repo repos.ModuleRepo, keys []string) ([]*types.Module, error) {
	rows, err := repo.ListEnabledByKeys(dbc, keys)
	if err != nil {
		return nil, errors.MapDBError("modules.ResolveLatest", err)
	}
	latest := LatestEnabled(rows)
	out := make([]*types.Module, 0, len(keys))
	seen := map[string]bool{}
	for _, k := range keys {
		if m, ok := latest[k]; ok && !seen[k] {
			out = append(out, m)
			seen[k] = true
		}
	}
	return out, nil
}

// Keys lists registered module keys, sorted.
func (r *Registry) Keys() []string {
	hs := r.Handlers()
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.Key()
	}
	sort.Strings(out)
	return out
}
