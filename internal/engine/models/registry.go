package models

import (
	id "covault/pkg/domain"
	dErrors "covault/pkg/domain-errors"
)

// Registry is the authoritative owner set and quorum threshold.
//
// Invariants:
//   - members is duplicate-free and insertion-ordered
//   - the membership index and the ordered slice always agree
//   - 1 <= quorum <= len(members), checked on every mutation to either
//     field; no operation may transiently violate this
//
// Mutators are reachable only through the engine's governance dispatch: a
// registry change is the execution side-effect of a quorum-approved ledger
// entry, never a direct call from a principal.
type Registry struct {
	order  []id.Principal
	index  map[id.Principal]struct{}
	quorum int
}

// NewRegistry builds a registry from the initial owner set. The set must be
// non-empty and duplicate-free, and the quorum must be satisfiable by it.
func NewRegistry(members []id.Principal, quorum int) (*Registry, error) {
	if len(members) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidQuorum, "initial member set cannot be empty")
	}
	r := &Registry{
		order: make([]id.Principal, 0, len(members)),
		index: make(map[id.Principal]struct{}, len(members)),
	}
	for _, m := range members {
		if m.IsNil() {
			return nil, dErrors.New(dErrors.CodeInvalidPrincipal, "initial member cannot be the zero identity")
		}
		if _, ok := r.index[m]; ok {
			return nil, dErrors.Newf(dErrors.CodeDuplicateMember, "initial member %s listed twice", m)
		}
		r.index[m] = struct{}{}
		r.order = append(r.order, m)
	}
	if quorum < 1 || quorum > len(r.order) {
		return nil, dErrors.Newf(dErrors.CodeInvalidQuorum, "quorum %d outside 1..%d", quorum, len(r.order))
	}
	r.quorum = quorum
	return r, nil
}

// IsMember reports whether p is a current owner.
func (r *Registry) IsMember(p id.Principal) bool {
	_, ok := r.index[p]
	return ok
}

// Members returns the owner set in insertion order.
func (r *Registry) Members() []id.Principal {
	out := make([]id.Principal, len(r.order))
	copy(out, r.order)
	return out
}

// Quorum returns the current confirmation threshold.
func (r *Registry) Quorum() int {
	return r.quorum
}

// Len returns the number of registered owners.
func (r *Registry) Len() int {
	return len(r.order)
}

// AddMember appends a new owner. The threshold is untouched.
func (r *Registry) AddMember(p id.Principal) error {
	if p.IsNil() {
		return dErrors.New(dErrors.CodeInvalidPrincipal, "cannot add the zero identity")
	}
	if _, ok := r.index[p]; ok {
		return dErrors.Newf(dErrors.CodeDuplicateMember, "%s is already a member", p)
	}
	r.index[p] = struct{}{}
	r.order = append(r.order, p)
	return nil
}

// RemoveMember removes an owner. Removal is rejected when it would leave the
// current threshold unsatisfiable by the remaining set.
func (r *Registry) RemoveMember(p id.Principal) error {
	if _, ok := r.index[p]; !ok {
		return dErrors.Newf(dErrors.CodeUnknownMember, "%s is not a member", p)
	}
	if r.quorum > len(r.order)-1 {
		return dErrors.Newf(dErrors.CodeQuorumUnsafe,
			"removing %s would leave %d members below quorum %d", p, len(r.order)-1, r.quorum)
	}
	delete(r.index, p)
	for i, m := range r.order {
		if m == p {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetQuorum changes the confirmation threshold.
func (r *Registry) SetQuorum(n int) error {
	if n < 1 || n > len(r.order) {
		return dErrors.Newf(dErrors.CodeInvalidQuorum, "quorum %d outside 1..%d", n, len(r.order))
	}
	r.quorum = n
	return nil
}
