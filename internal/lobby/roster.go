package lobby

import (
	"slices"
	"sort"

	"github.com/DoyleJ11/codelobby/internal/types"
)

// roster is the live member list. Entries are unique by connection id and
// by username.
type roster struct {
	members []types.Member
}

// add inserts or refreshes a member. A username already held by another
// connection moves to the new connection.
func (r *roster) add(connID, name string) {
	match := func(m types.Member) bool { return m.ID == connID || m.Name == name }
	entry := types.Member{ID: connID, Name: name}

	// Keep the first matching slot so a rejoin does not reorder the list.
	idx := slices.IndexFunc(r.members, match)
	if idx < 0 {
		r.members = append(r.members, entry)
		return
	}
	r.members = slices.DeleteFunc(r.members, match)
	r.members = slices.Insert(r.members, idx, entry)
}

// remove drops every entry matching connID or name and returns how many went.
func (r *roster) remove(connID, name string) int {
	before := len(r.members)
	r.members = slices.DeleteFunc(r.members, func(m types.Member) bool {
		return m.ID == connID || (name != "" && m.Name == name)
	})
	return before - len(r.members)
}

func (r *roster) nameOf(connID string) (string, bool) {
	for _, m := range r.members {
		if m.ID == connID {
			return m.Name, true
		}
	}
	return "", false
}

func (r *roster) snapshot() []types.Member {
	out := make([]types.Member, len(r.members))
	copy(out, r.members)
	return out
}

func (r *roster) size() int { return len(r.members) }

type readySet struct {
	records []types.ReadyRecord
}

func (s *readySet) set(name string, ready bool) {
	for i := range s.records {
		if s.records[i].Name == name {
			s.records[i].IsReady = ready
			return
		}
	}
	s.records = append(s.records, types.ReadyRecord{Name: name, IsReady: ready})
}

func (s *readySet) remove(name string) bool {
	before := len(s.records)
	s.records = slices.DeleteFunc(s.records, func(r types.ReadyRecord) bool { return r.Name == name })
	return before != len(s.records)
}

func (s *readySet) snapshot() []types.ReadyRecord {
	out := make([]types.ReadyRecord, len(s.records))
	copy(out, s.records)
	return out
}

// ReadyPercent is readyCount/(rosterSize-1) as a percentage; the host is left
// out of the denominator. A host alone (or an empty lobby) is 0%. Only ready
// records of current members count.
func ReadyPercent(records []types.ReadyRecord, members []types.Member) float64 {
	if len(members) <= 1 {
		return 0
	}
	present := make(map[string]bool, len(members))
	for _, m := range members {
		present[m.Name] = true
	}
	ready := 0
	for _, r := range records {
		if r.IsReady && present[r.Name] {
			ready++
		}
	}
	return float64(ready) / float64(len(members)-1) * 100
}

func sortedNames(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func mergeSettings(dst, patch types.Settings) types.Settings {
	if dst == nil {
		dst = types.Settings{}
	}
	for k, v := range patch {
		dst[k] = v
	}
	return dst
}

func copySettings(s types.Settings) types.Settings {
	out := make(types.Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
